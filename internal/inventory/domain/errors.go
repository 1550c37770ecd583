package domain

import "errors"

var (
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrProductNotFound     = errors.New("product not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrInvalidQuantity     = errors.New("quantity must be positive")

	// ErrConflict is returned by a store when a conditional transition finds the
	// reservation in a different status than expected.
	ErrConflict = errors.New("reservation status changed")
)
