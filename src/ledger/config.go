package ledger

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	TradeUSD float64       `envconfig:"TRADE_USD" default:"100.0"`
	TPPct    float64       `envconfig:"TP_PCT" default:"2.0"`
	SLPct    float64       `envconfig:"SL_PCT" default:"3.0"`
	MaxHold  time.Duration `envconfig:"MAX_HOLD" default:"0s"` // 0 disables the timeout close
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// Validate rejects settings that would make every open or close meaningless.
func (c Config) Validate() error {
	if c.TradeUSD <= 0 {
		return fmt.Errorf("TRADE_USD must be positive, got %v", c.TradeUSD)
	}
	if c.TPPct <= 0 || c.SLPct <= 0 {
		return fmt.Errorf("TP_PCT and SL_PCT must be positive, got %v/%v", c.TPPct, c.SLPct)
	}
	if c.SLPct >= 100 {
		return fmt.Errorf("SL_PCT must be below 100, got %v", c.SLPct)
	}
	if c.MaxHold < 0 {
		return fmt.Errorf("MAX_HOLD must not be negative, got %s", c.MaxHold)
	}
	return nil
}
