package scheduler

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Symbols           []string `envconfig:"SYMBOLS" default:"BTC/USDT,ETH/USDT,BNB/USDT"`
	CycleSeconds      int      `envconfig:"CYCLE_SECONDS" default:"30"`
	WeightLR          float64  `envconfig:"WEIGHT_LR" default:"0.04"`
	SkipIfExposed     bool     `envconfig:"SKIP_IF_EXPOSED" default:"false"` // off keeps adding positions on an exposed symbol
	HousekeepingEvery int      `envconfig:"HOUSEKEEPING_EVERY" default:"10"`
	Workers           int      `envconfig:"SCHEDULER_WORKERS" default:"8"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

func (c Config) Interval() time.Duration {
	return time.Duration(c.CycleSeconds) * time.Second
}

func (c Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("SYMBOLS must list at least one instrument")
	}
	if c.CycleSeconds <= 0 {
		return fmt.Errorf("CYCLE_SECONDS must be positive, got %d", c.CycleSeconds)
	}
	if c.WeightLR <= 0 {
		return fmt.Errorf("WEIGHT_LR must be positive, got %v", c.WeightLR)
	}
	return nil
}
