package model

import "time"

const (
	TradeResultWin  = "win"
	TradeResultLoss = "loss"
)

// CloseReason explains why a position left the ledger.
type CloseReason string

const (
	CloseReasonTargetHit CloseReason = "target-hit"
	CloseReasonStopHit   CloseReason = "stop-hit"
	CloseReasonTimeout   CloseReason = "timeout"
)

// Trade is the immutable record of a closed position.
type Trade struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	PositionID uint        `gorm:"index;not null" json:"trade_id"`
	Symbol     string      `gorm:"size:50;index;not null" json:"symbol"`
	Side       Side        `gorm:"size:10;not null" json:"side"`
	EntryPrice float64     `gorm:"column:entry" json:"entry"`
	ExitPrice  float64     `gorm:"column:exit" json:"exit"`
	PnlUSD     float64     `gorm:"column:pnl_usd" json:"pnl_usd"`
	PnlPct     float64     `gorm:"column:pnl_pct" json:"pnl_pct"`
	Result     string      `gorm:"size:10;not null" json:"result"`
	Reason     CloseReason `gorm:"size:20" json:"reason"`
	OpenedAt   time.Time   `json:"opened_at"`
	ClosedAt   time.Time   `gorm:"index" json:"time"`
	Details    Position    `gorm:"serializer:json;type:text" json:"details"`
	CreatedAt  time.Time   `json:"created_at"`
}

func (Trade) TableName() string {
	return "trades"
}

func (t Trade) IsWin() bool {
	return t.Result == TradeResultWin
}
