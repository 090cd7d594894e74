package bot

import (
	"errors"
	"fmt"
	"strings"

	"consensusbot/src/connectors"
	"consensusbot/src/database"
	"consensusbot/src/ledger"
	"consensusbot/src/scheduler"
	"consensusbot/src/server"
	"consensusbot/src/signals"
	"consensusbot/src/tracing"
)

// ErrInvalidConfig marks a contradiction in the startup configuration. The process must not start.
var ErrInvalidConfig = errors.New("invalid configuration")

// Settings is every package configuration the bot is assembled from, read once at startup.
type Settings struct {
	Log        Config
	Scheduler  scheduler.Config
	Ledger     ledger.Config
	Signals    signals.Config
	Connectors connectors.Config
	Database   database.Config
	Server     server.Config
	Tracing    tracing.Config
}

func LoadSettings() Settings {
	return Settings{
		Log:        GetConfig(),
		Scheduler:  scheduler.GetConfig(),
		Ledger:     ledger.GetConfig(),
		Signals:    signals.GetConfig(),
		Connectors: connectors.GetConfig(),
		Database:   database.GetConfig(),
		Server:     *server.GetConfig(),
		Tracing:    tracing.GetConfig(),
	}
}

// Validate returns an error wrapping ErrInvalidConfig for settings the bot cannot run with.
func (s Settings) Validate() error {
	if err := s.Ledger.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := s.Scheduler.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if s.Connectors.LiveOrders {
		if strings.TrimSpace(s.Connectors.BinanceAPIKey) == "" || strings.TrimSpace(s.Connectors.BinanceAPISecret) == "" {
			return fmt.Errorf("%w: LIVE_ORDERS requires BINANCE_API_KEY and BINANCE_API_SECRET", ErrInvalidConfig)
		}
	}
	if s.Signals.PanelFile == "" && len(nonEmpty(s.Signals.EngineNames)) == 0 {
		return fmt.Errorf("%w: ENGINE_NAMES is empty and no PANEL_FILE is set", ErrInvalidConfig)
	}
	return nil
}

func nonEmpty(in []string) []string {
	out := in[:0:0]
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
