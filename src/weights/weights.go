package weights

import (
	"math"
	"time"

	"consensusbot/src/model"
)

const (
	MinWeight     = 0.1
	MaxWeight     = 20.0
	DefaultWeight = 1.0
)

// Clamp bounds w to [MinWeight, MaxWeight]. Clamping twice is the same as clamping once.
func Clamp(w float64) float64 {
	return math.Max(MinWeight, math.Min(w, MaxWeight))
}

// Update computes the new weight of every source that voted on the closed trade.
//
// pnl is the trade's stored dollar P&L, already rounded to cents. A trade whose rounded P&L is
// zero changes nothing, even when it was recorded as a win. Otherwise, for each vote:
//
//	profitableSide = buy if pnl > 0 else sell
//	alignment      = +1 if the vote matches profitableSide else -1 (hold is always -1)
//	score          = confidence * alignment * sqrt(|pnl| + 1)
//	newWeight      = clamp(oldWeight * exp(learningRate * score))
//
// current is not modified. The returned map holds only the sources that changed; history holds
// one attribution row per vote, in vote order.
func Update(trade model.Trade, votes []model.Vote, current map[string]float64, learningRate float64, now time.Time) (map[string]float64, []model.EngineHistory) {
	pnl := trade.PnlUSD
	if pnl == 0 {
		return map[string]float64{}, nil
	}

	profitableSide := model.ActionSell
	if pnl > 0 {
		profitableSide = model.ActionBuy
	}
	magnitude := math.Sqrt(math.Abs(pnl) + 1.0)

	updated := make(map[string]float64, len(votes))
	history := make([]model.EngineHistory, 0, len(votes))
	for _, v := range votes {
		alignment := -1.0
		if v.Action == profitableSide {
			alignment = 1.0
		}
		score := v.Confidence * alignment * magnitude

		old, ok := updated[v.Source]
		if !ok {
			old, ok = current[v.Source]
			if !ok {
				old = DefaultWeight
			}
		}
		updated[v.Source] = Clamp(old * math.Exp(learningRate*score))

		history = append(history, model.EngineHistory{
			Source:     v.Source,
			RecordedAt: now.UTC(),
			TradeID:    trade.ID,
			PositionID: trade.PositionID,
			Pnl:        pnl,
			Score:      score,
		})
	}

	return updated, history
}
