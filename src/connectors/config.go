package connectors

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

const BinanceTestnetBaseURL = "https://testnet.binance.vision"

type Config struct {
	LiveOrders        bool    `envconfig:"LIVE_ORDERS" default:"false"`
	UseBinanceTestnet bool    `envconfig:"USE_BINANCE_TESTNET" default:"true"`
	BinanceAPIKey     string  `envconfig:"BINANCE_API_KEY"`
	BinanceAPISecret  string  `envconfig:"BINANCE_API_SECRET"`
	BinanceRPS        float64 `envconfig:"BINANCE_RPS" default:"5"` // requests per second across all symbols
	BinanceBurst      int     `envconfig:"BINANCE_BURST" default:"5"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
