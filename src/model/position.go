package model

import "time"

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// SideForAction maps a buy decision to a long position and a sell decision to a short one.
// Hold has no side.
func SideForAction(a Action) (Side, bool) {
	switch a {
	case ActionBuy:
		return SideLong, true
	case ActionSell:
		return SideShort, true
	default:
		return "", false
	}
}

// Position is an open trade tracked by the ledger. Target and stop are fixed at open time.
type Position struct {
	ID          uint      `json:"id"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	EntryPrice  float64   `json:"entry"`
	Quantity    float64   `json:"qty"`
	TargetPrice float64   `json:"tp"`
	StopPrice   float64   `json:"sl"`
	OpenedAt    time.Time `json:"open_time"`
	Votes       []Vote    `json:"responses,omitempty"`
}
