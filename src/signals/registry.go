package signals

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"consensusbot/src/model"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	BackendRandom = "random"
	BackendHTTP   = "http"
)

// EngineConfig is one entry of the panel file.
type EngineConfig struct {
	Name    string `yaml:"name"`
	Backend string `yaml:"backend"`  // random | http, empty means the default backend
	BaseURL string `yaml:"base_url"` // overrides SIGNAL_BASE_URL for this engine
	Enabled *bool  `yaml:"enabled"`
}

func (e EngineConfig) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// PanelFile is the top-level YAML structure of PANEL_FILE.
type PanelFile struct {
	Engines []EngineConfig `yaml:"engines"`
}

// LoadPanelFile reads the engine list from a YAML file.
func LoadPanelFile(path string) (PanelFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PanelFile{}, err
	}

	var file PanelFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return PanelFile{}, fmt.Errorf("parse panel file %s: %w", path, err)
	}

	seen := make(map[string]bool, len(file.Engines))
	for i, e := range file.Engines {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return PanelFile{}, fmt.Errorf("panel file %s: engine #%d has no name", path, i+1)
		}
		if seen[name] {
			return PanelFile{}, fmt.Errorf("panel file %s: engine %q listed twice", path, name)
		}
		seen[name] = true
		file.Engines[i].Name = name
	}
	return file, nil
}

// Registry routes each source id to the backend that answers for it.
type Registry struct {
	fallback Source
	routes   map[string]Source
}

func NewRegistry(fallback Source) *Registry {
	return &Registry{fallback: fallback, routes: map[string]Source{}}
}

func (r *Registry) Route(sourceID string, s Source) {
	r.routes[sourceID] = s
}

func (r *Registry) Poll(ctx context.Context, sourceID, symbol string) (model.Vote, error) {
	if s, ok := r.routes[sourceID]; ok {
		return s.Poll(ctx, sourceID, symbol)
	}
	if r.fallback == nil {
		return model.Vote{}, fmt.Errorf("no backend for source %q", sourceID)
	}
	return r.fallback.Poll(ctx, sourceID, symbol)
}

// BuildPanel assembles the panel from configuration. Without a panel file the ids come from
// ENGINE_NAMES and all of them share the default backend: HTTP when SIGNAL_BASE_URL is set,
// the random stub otherwise.
func BuildPanel(log *logrus.Entry, cfg Config) (*Panel, error) {
	random := NewRandomSource(cfg.RandomSeed)

	var fallback Source = random
	httpSources := map[string]*HTTPSource{}
	httpFor := func(baseURL string) (*HTTPSource, error) {
		if s, ok := httpSources[baseURL]; ok {
			return s, nil
		}
		s, err := NewHTTPSource(baseURL, cfg.SignalTimeout)
		if err != nil {
			return nil, err
		}
		httpSources[baseURL] = s
		return s, nil
	}
	if cfg.SignalBaseURL != "" {
		s, err := httpFor(cfg.SignalBaseURL)
		if err != nil {
			return nil, err
		}
		fallback = s
	}

	registry := NewRegistry(fallback)
	ids := cleanIDs(cfg.EngineNames)

	if cfg.PanelFile != "" {
		file, err := LoadPanelFile(cfg.PanelFile)
		if err != nil {
			return nil, err
		}
		ids = ids[:0]
		for _, e := range file.Engines {
			if !e.IsEnabled() {
				continue
			}
			ids = append(ids, e.Name)

			switch strings.ToLower(e.Backend) {
			case "":
				if e.BaseURL == "" {
					continue
				}
				fallthrough
			case BackendHTTP:
				base := e.BaseURL
				if base == "" {
					base = cfg.SignalBaseURL
				}
				if base == "" {
					return nil, fmt.Errorf("engine %q uses the http backend but no base url is set", e.Name)
				}
				s, err := httpFor(base)
				if err != nil {
					return nil, err
				}
				registry.Route(e.Name, s)
			case BackendRandom:
				registry.Route(e.Name, random)
			default:
				return nil, fmt.Errorf("engine %q: unknown backend %q", e.Name, e.Backend)
			}
		}
	}

	if len(ids) == 0 {
		return nil, errors.New("signal panel is empty")
	}

	return NewPanel(log, ids, registry), nil
}

func cleanIDs(names []string) []string {
	out := make([]string, 0, len(names))
	seen := map[string]bool{}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
