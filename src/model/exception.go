package model

import "time"

// Exception records a collaborator failure that the scheduler swallowed so the cycle could
// continue. Kept for auditing; nothing reads it back.
type Exception struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Where the error happened
	Service string `gorm:"size:100;index" json:"service"` // e.g. "scheduler"
	Module  string `gorm:"size:100;index" json:"module"`  // e.g. "price_source"
	Method  string `gorm:"size:100" json:"method"`        // e.g. "Price"

	Message string `gorm:"type:text" json:"message"`
	Level   string `gorm:"size:20;index" json:"level"` // warn | error

	// Extra context, JSON encoded
	Context string `gorm:"type:text" json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
