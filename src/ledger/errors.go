package ledger

import (
	"errors"
	"fmt"

	"consensusbot/src/model"
)

var (
	ErrInvalidPrice    = errors.New("invalid price")
	ErrUnknownPosition = errors.New("unknown position")
	ErrInvalidQuantity = errors.New("invalid quantity")
)

// InvalidPriceError is returned when a position would be opened or closed at a non-positive price.
type InvalidPriceError struct {
	Symbol string
	Price  float64
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("invalid price %v for %s", e.Price, e.Symbol)
}

func (e *InvalidPriceError) Unwrap() error { return ErrInvalidPrice }

// UnknownPositionError is returned when a close targets an id that is not open.
type UnknownPositionError struct {
	ID uint
}

func (e *UnknownPositionError) Error() string {
	return fmt.Sprintf("position %d is not open", e.ID)
}

func (e *UnknownPositionError) Unwrap() error { return ErrUnknownPosition }

// InvalidSideError is returned when Open receives a side other than long or short.
type InvalidSideError struct {
	Side model.Side
}

func (e *InvalidSideError) Error() string {
	return fmt.Sprintf("invalid side %q", e.Side)
}
