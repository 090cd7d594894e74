package model

// Action is the opinion a signal source expresses about an instrument.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Actions lists every valid action in tally order.
var Actions = []Action{ActionBuy, ActionSell, ActionHold}

// Valid reports whether a is one of buy, sell or hold.
func (a Action) Valid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionHold:
		return true
	default:
		return false
	}
}

// Vote is one source's opinion on one instrument for one cycle. It is never mutated.
type Vote struct {
	Source     string  `json:"source"`
	Action     Action  `json:"vote"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// Decision is the aggregated action for one instrument in one cycle.
type Decision struct {
	Action Action         `json:"decision"`
	Counts map[Action]int `json:"counts"`
}
