package aggregator

import "consensusbot/src/model"

// Decide tallies votes into buy/sell/hold buckets and returns the action of the single
// largest bucket. Any tie for the maximum, including the empty input, resolves to hold.
// Confidence plays no part in the count.
func Decide(votes []model.Vote) model.Decision {
	counts := make(map[model.Action]int, len(model.Actions))
	for _, a := range model.Actions {
		counts[a] = 0
	}
	for _, v := range votes {
		if !v.Action.Valid() {
			continue
		}
		counts[v.Action]++
	}

	maxCount := 0
	for _, a := range model.Actions {
		if counts[a] > maxCount {
			maxCount = counts[a]
		}
	}

	var winners []model.Action
	for _, a := range model.Actions {
		if counts[a] == maxCount {
			winners = append(winners, a)
		}
	}

	if len(winners) != 1 {
		return model.Decision{Action: model.ActionHold, Counts: counts}
	}
	return model.Decision{Action: winners[0], Counts: counts}
}
