package model

import "time"

const (
	OrderExecutionStatusFilled = "filled"
	OrderExecutionStatusError  = "error"
)

const (
	OrderDirectionEntry = "entry"
	OrderDirectionExit  = "exit"
)

// Fill is what the exchange reports back for a market order: the average price paid and the
// base quantity actually traded.
type Fill struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"qty"`
}

// OrderExecutionLog stores every market order sent to the exchange when live trading is on,
// including the ones the exchange rejected.
type OrderExecutionLog struct {
	ID uint `gorm:"primaryKey" json:"id"`

	PositionID *uint  `gorm:"index" json:"position_id,omitempty"` // set for exit orders
	Symbol     string `gorm:"size:50;index" json:"symbol"`
	Side       Side   `gorm:"size:10" json:"side"`
	OrderDir   string `gorm:"size:10;not null" json:"order_dir"` // entry, exit

	NotionalUSD    float64  `json:"notional_usd"`
	RequestedPrice float64  `json:"requested_price"`
	FillPrice      *float64 `json:"fill_price,omitempty"`
	FillQuantity   *float64 `json:"fill_qty,omitempty"`

	Status       string    `gorm:"size:20;not null" json:"status"` // see OrderExecutionStatus* constants
	ErrorMessage *string   `gorm:"type:text" json:"error_message,omitempty"`
	RequestedAt  time.Time `json:"requested_at"`
	CreatedAt    time.Time `json:"created_at"`
}

func (OrderExecutionLog) TableName() string {
	return "order_execution_logs"
}
