// Package audit keeps an append-only trail of slot and booking changes.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// EventType names the change being recorded.
type EventType string

const (
	// EventSlotsConfigured is logged when an administrator sets capacity for a date.
	EventSlotsConfigured EventType = "slots.configured"
	// EventSlotsRemoved is logged when a date's configuration is deleted.
	EventSlotsRemoved EventType = "slots.removed"
	// EventBookingCreated is logged when a booking is admitted.
	EventBookingCreated EventType = "booking.created"
	// EventBookingCancelled is logged when a booking moves to cancelled.
	EventBookingCancelled EventType = "booking.cancelled"
)

// Entry represents an immutable audit record.
type Entry struct {
	ID        string          `json:"id"`
	EventType EventType       `json:"event_type"`
	Actor     string          `json:"actor,omitempty"`
	Subject   string          `json:"subject"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Details contains event-specific fields.
type Details struct {
	Date             string `json:"date,omitempty"`
	Capacity         *int   `json:"capacity,omitempty"`
	PreviousCapacity *int   `json:"previous_capacity,omitempty"`
	PatientRef       string `json:"patient_ref,omitempty"`
	Forced           bool   `json:"forced,omitempty"`
}

// Log writes and reads audit_events.
type Log struct {
	db *sql.DB
}

// NewLog creates an audit log over db.
func NewLog(db *sql.DB) *Log {
	if db == nil {
		panic("audit: sql db required")
	}
	return &Log{db: db}
}

// Record appends entry.
func (l *Log) Record(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if len(entry.Details) == 0 {
		entry.Details = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO audit_events (id, event_type, actor, subject, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := l.db.ExecContext(ctx, query,
		entry.ID,
		string(entry.EventType),
		nullString(entry.Actor),
		entry.Subject,
		[]byte(entry.Details),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to record event: %w", err)
	}
	return nil
}

// Filter specifies criteria for querying audit entries.
type Filter struct {
	EventTypes []EventType
	Subject    string
	Since      time.Time
	Until      time.Time
	Limit      int
}

// Query returns matching entries, newest first.
func (l *Log) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	query := `
		SELECT id, event_type, actor, subject, details, created_at
		FROM audit_events
		WHERE 1 = 1
	`
	var args []any
	argIdx := 1

	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			types[i] = string(t)
		}
		query += fmt.Sprintf(" AND event_type = ANY($%d)", argIdx)
		args = append(args, pq.Array(types))
		argIdx++
	}
	if filter.Subject != "" {
		query += fmt.Sprintf(" AND subject = $%d", argIdx)
		args = append(args, filter.Subject)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.Since)
		argIdx++
	}
	if !filter.Until.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			eventType string
			actor     sql.NullString
			details   []byte
		)
		if err := rows.Scan(&e.ID, &eventType, &actor, &e.Subject, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		e.EventType = EventType(eventType)
		e.Actor = actor.String
		e.Details = details
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: failed to read events: %w", err)
	}
	return entries, nil
}

// MarshalDetails encodes d for Entry.Details.
func MarshalDetails(d Details) json.RawMessage {
	data, err := json.Marshal(d)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
