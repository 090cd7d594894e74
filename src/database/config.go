package database

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver       string `envconfig:"DB_DRIVER" default:"sqlite"` // sqlite | postgres
	Path         string `envconfig:"DB_PATH" default:"trades.db"`
	DatabaseURL  string `envconfig:"DATABASE_URL"` // postgres DSN, used when DB_DRIVER=postgres
	GormLogLevel int    `envconfig:"GORM_LOG_LEVEL" default:"2"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
