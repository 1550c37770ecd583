package domain

import (
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

func (s ReservationStatus) Terminal() bool {
	switch s {
	case ReservationConfirmed, ReservationReleased, ReservationExpired:
		return true
	}
	return false
}

type Reservation struct {
	ID         string
	ProductID  string
	OwnerID    string
	Quantity   int
	ReservedAt time.Time
	ExpiresAt  time.Time
	Status     ReservationStatus
	UpdatedAt  time.Time
}

func NewReservation(productID, ownerID string, quantity int, now time.Time, ttl time.Duration) Reservation {
	now = now.UTC()
	return Reservation{
		ID:         uuid.NewString(),
		ProductID:  productID,
		OwnerID:    ownerID,
		Quantity:   quantity,
		ReservedAt: now,
		ExpiresAt:  now.Add(ttl),
		Status:     ReservationActive,
		UpdatedAt:  now,
	}
}

// Stale reports whether the hold is still ACTIVE past its expiry.
func (r Reservation) Stale(now time.Time) bool {
	return r.Status == ReservationActive && now.After(r.ExpiresAt)
}
