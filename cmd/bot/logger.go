package bot

import (
	"strings"

	"consensusbot/src/tracing"

	logger "github.com/sirupsen/logrus"
)

func SetupLogger(cfg Config) {
	level, err := logger.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = logger.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.LogFormat, "json") {
		logger.SetFormatter(&logger.JSONFormatter{})
	} else {
		logger.SetFormatter(&logger.TextFormatter{
			FullTimestamp: true,
		})
	}

	logger.AddHook(tracing.Hook{})
}
