package signals

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"consensusbot/src/model"
)

// RandomSource is the stand-in for a real model: buy 42%, sell 42%, hold 16%, with confidence
// drawn uniformly from [0.45, 0.95] and rounded to two decimals.
type RandomSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomSource(seed int64) *RandomSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomSource{rng: rand.New(rand.NewSource(seed))}
}

func (s *RandomSource) Poll(ctx context.Context, sourceID, symbol string) (model.Vote, error) {
	if err := ctx.Err(); err != nil {
		return model.Vote{}, err
	}

	s.mu.Lock()
	r := s.rng.Float64()
	c := 0.45 + s.rng.Float64()*(0.95-0.45)
	s.mu.Unlock()

	action := model.ActionHold
	switch {
	case r < 0.42:
		action = model.ActionBuy
	case r < 0.84:
		action = model.ActionSell
	}

	return model.Vote{
		Source:     sourceID,
		Action:     action,
		Confidence: math.Round(c*100) / 100,
		Rationale:  fmt.Sprintf("%s %s", sourceID, action),
	}, nil
}
