package signals

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	EngineNames   []string      `envconfig:"ENGINE_NAMES" default:"GPT-5,Grok,Gemini,Claude,DeepSeek,Perplexity,Mistral,Llama-3,Falcon"`
	PanelFile     string        `envconfig:"PANEL_FILE"`      // optional YAML routing file
	SignalBaseURL string        `envconfig:"SIGNAL_BASE_URL"` // empty keeps every source on the random stub
	SignalTimeout time.Duration `envconfig:"SIGNAL_TIMEOUT" default:"10s"`
	RandomSeed    int64         `envconfig:"RANDOM_SEED" default:"0"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
