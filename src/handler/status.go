package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"consensusbot/src/model"
	"consensusbot/src/repository"
	"consensusbot/src/scheduler"

	logger "github.com/sirupsen/logrus"
)

type weightSnapshotter interface {
	Snapshot() map[string]float64
}

type positionLister interface {
	Positions() []model.Position
}

type tradeFinder interface {
	FindLatest(ctx context.Context, symbol string, limit int) ([]model.Trade, error)
	Summary(ctx context.Context) (repository.TradeSummary, error)
}

type schedulerStatus interface {
	State() scheduler.State
	Cycles() uint64
	Live() bool
}

// WeightEntry is one row of the /weights response.
type WeightEntry struct {
	Engine string  `json:"engine"`
	Weight float64 `json:"weight"`
}

// StatusResponse is the body of /status.
type StatusResponse struct {
	State         scheduler.State `json:"state"`
	Cycles        uint64          `json:"cycles"`
	Live          bool            `json:"live"`
	OpenPositions int             `json:"open_positions"`
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Error("failed to encode response")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// WeightsHandler lists the current weights, heaviest first.
func WeightsHandler(store weightSnapshotter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := store.Snapshot()
		out := make([]WeightEntry, 0, len(snap))
		for engine, weight := range snap {
			out = append(out, WeightEntry{Engine: engine, Weight: weight})
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Weight != out[j].Weight {
				return out[i].Weight > out[j].Weight
			}
			return out[i].Engine < out[j].Engine
		})
		writeJSON(w, out)
	}
}

func PositionsHandler(positions positionLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, positions.Positions())
	}
}

// TradesHandler lists the latest closed trades. Supports symbol and limit (1..500, default 20).
func TradesHandler(repo tradeFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
			parsed, err := strconv.Atoi(limitParam)
			if err != nil || parsed <= 0 || parsed > 500 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		trades, err := repo.FindLatest(r.Context(), r.URL.Query().Get("symbol"), limit)
		if err != nil {
			logger.WithError(err).Error("failed to list trades")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if trades == nil {
			trades = []model.Trade{}
		}
		writeJSON(w, trades)
	}
}

func TradeSummaryHandler(repo tradeFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := repo.Summary(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to summarize trades")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, summary)
	}
}

func StatusHandler(s schedulerStatus, positions positionLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, StatusResponse{
			State:         s.State(),
			Cycles:        s.Cycles(),
			Live:          s.Live(),
			OpenPositions: len(positions.Positions()),
		})
	}
}
