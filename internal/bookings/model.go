// Package bookings admits, stores and cancels appointment bookings against
// per-date slot capacity.
package bookings

import (
	"time"

	"cloud.google.com/go/civil"
)

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// Booking is one patient's claim on one slot of a date.
type Booking struct {
	ID          string     `json:"id"`
	Date        civil.Date `json:"date"`
	Status      Status     `json:"status"`
	PatientRef  string     `json:"patient_ref"`
	CreatedAt   time.Time  `json:"created_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// IsActive reports whether the booking still holds a slot.
func (b *Booking) IsActive() bool {
	return b.Status == StatusPending || b.Status == StatusConfirmed
}

func (b *Booking) clone() *Booking {
	out := *b
	if b.CancelledAt != nil {
		at := *b.CancelledAt
		out.CancelledAt = &at
	}
	return &out
}
