package weights

import (
	"sync"
	"time"

	"consensusbot/src/model"
)

// Store is the live weight map shared by the scheduler and the status API.
type Store struct {
	learningRate float64
	now          func() time.Time

	mu      sync.RWMutex
	weights map[string]float64
}

// NewStore seeds the map with persisted weights, and DefaultWeight for any panel source that
// has none yet. Persisted values are clamped on the way in.
func NewStore(learningRate float64, sources []string, persisted map[string]float64) *Store {
	w := make(map[string]float64, len(sources)+len(persisted))
	for src, v := range persisted {
		w[src] = Clamp(v)
	}
	for _, src := range sources {
		if _, ok := w[src]; !ok {
			w[src] = DefaultWeight
		}
	}

	return &Store{learningRate: learningRate, now: time.Now, weights: w}
}

// Apply runs Update against the current map and stores the result. The read-modify-write is
// atomic, so trades closed concurrently never lose each other's updates.
func (s *Store) Apply(trade model.Trade, votes []model.Vote) (map[string]float64, []model.EngineHistory) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed, history := Update(trade, votes, s.weights, s.learningRate, s.now())
	for src, v := range changed {
		s.weights[src] = v
	}
	return changed, history
}

func (s *Store) Get(source string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.weights[source]; ok {
		return v
	}
	return DefaultWeight
}

func (s *Store) Snapshot() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]float64, len(s.weights))
	for k, v := range s.weights {
		out[k] = v
	}
	return out
}
