package model

import "time"

// EngineWeight is the learned influence of one signal source.
type EngineWeight struct {
	Source    string    `gorm:"primaryKey;size:100;column:engine" json:"engine"`
	Weight    float64   `gorm:"not null;default:1" json:"weight"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (EngineWeight) TableName() string {
	return "engine_weights"
}

// EngineHistory is an attribution row written for every weight update.
// It is an audit trail only and is never read back by the weight adapter.
type EngineHistory struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Source     string    `gorm:"size:100;index;column:engine" json:"engine"`
	RecordedAt time.Time `gorm:"column:time;index" json:"time"`
	TradeID    uint      `gorm:"index" json:"trade_id"` // 0 when the trade row could not be stored
	PositionID uint      `json:"position_id"`
	Pnl        float64   `json:"pnl"`
	Score      float64   `gorm:"column:contrib" json:"contrib"`
}

func (EngineHistory) TableName() string {
	return "engine_history"
}
