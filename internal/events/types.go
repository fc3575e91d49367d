package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event type names carried in Envelope.Type.
const (
	TypeBookingCreated   = "booking.created.v1"
	TypeBookingCancelled = "booking.cancelled.v1"
	TypeCapacityChanged  = "slots.capacity_changed.v1"
)

// Envelope is the wire shape shared by every transport (bus, Redis, outbox, SQS, WebSocket).
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload into a fresh envelope.
func NewEnvelope(eventType string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal payload: %w", err)
	}
	return Envelope{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    data,
	}, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("events: decode %s: %w", e.Type, err)
	}
	return nil
}

type BookingCreatedV1 struct {
	BookingID  string    `json:"booking_id"`
	Date       string    `json:"date"`
	PatientRef string    `json:"patient_ref"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

type BookingCancelledV1 struct {
	BookingID   string    `json:"booking_id"`
	Date        string    `json:"date"`
	PatientRef  string    `json:"patient_ref"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// CapacityChangedV1 is emitted when an administrator adds, changes or removes slots.
type CapacityChangedV1 struct {
	Date             string    `json:"date"`
	Capacity         int       `json:"capacity"`
	PreviousCapacity *int      `json:"previous_capacity,omitempty"`
	Removed          bool      `json:"removed,omitempty"`
	Actor            string    `json:"actor,omitempty"`
	ChangedAt        time.Time `json:"changed_at"`
}
