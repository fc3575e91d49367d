package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/bitecare-clinic/internal/database"
)

const bookingColumns = `id, date, status, patient_ref, created_at, cancelled_at`

// PostgresStore persists bookings in the bookings table.
type PostgresStore struct {
	pool database.Pool
	now  func() time.Time
}

// NewPostgresStore creates a store backed by pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("bookings: pgx pool required")
	}
	return newPostgresStoreWithPool(pool)
}

func newPostgresStoreWithPool(pool database.Pool) *PostgresStore {
	if pool == nil {
		panic("bookings: pool required")
	}
	return &PostgresStore{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// CountActive counts pending and confirmed bookings for date.
func (s *PostgresStore) CountActive(ctx context.Context, date civil.Date) (int, error) {
	count, err := countActive(ctx, s.pool, date)
	if err != nil {
		return 0, fmt.Errorf("bookings: count active: %w", database.Unavailable(err))
	}
	return count, nil
}

// Insert writes booking, filling in id, status and creation time when unset.
func (s *PostgresStore) Insert(ctx context.Context, booking *Booking) (*Booking, error) {
	row, err := s.prepare(booking)
	if err != nil {
		return nil, err
	}
	out, err := insert(ctx, s.pool, row)
	if err != nil {
		return nil, fmt.Errorf("bookings: insert: %w", database.Unavailable(err))
	}
	return out, nil
}

// AdmitWithinCapacity locks the date's slot configuration row, counts active
// bookings and inserts booking in one transaction. Concurrent admissions for
// the same date queue on the row lock, across every API instance.
func (s *PostgresStore) AdmitWithinCapacity(ctx context.Context, booking *Booking) (*Booking, error) {
	row, err := s.prepare(booking)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("bookings: begin admission: %w", database.Unavailable(err))
	}
	committed := false
	defer func() {
		if !committed {
			database.Rollback(ctx, tx)
		}
	}()

	var capacity int
	lockQuery := `SELECT capacity FROM slot_configurations WHERE date = $1 FOR UPDATE`
	if err := tx.QueryRow(ctx, lockQuery, database.Date(row.Date)).Scan(&capacity); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoCapacityConfigured
		}
		return nil, fmt.Errorf("bookings: lock slots: %w", database.Unavailable(err))
	}

	booked, err := countActive(ctx, tx, row.Date)
	if err != nil {
		return nil, fmt.Errorf("bookings: count active: %w", database.Unavailable(err))
	}
	if booked >= capacity {
		return nil, ErrCapacityExceeded
	}

	out, err := insert(ctx, tx, row)
	if err != nil {
		return nil, fmt.Errorf("bookings: insert: %w", database.Unavailable(err))
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("bookings: commit admission: %w", database.Unavailable(err))
	}
	committed = true
	return out, nil
}

// Cancel marks the booking cancelled. Repeat calls keep the first cancellation time.
func (s *PostgresStore) Cancel(ctx context.Context, id string) (*Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	query := `
		UPDATE bookings
		SET status = 'cancelled', cancelled_at = COALESCE(cancelled_at, now())
		WHERE id = $1
		RETURNING ` + bookingColumns
	b, err := scanBooking(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bookings: cancel: %w", database.Unavailable(err))
	}
	return b, nil
}

// Get returns the booking with id or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	b, err := scanBooking(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bookings: get: %w", database.Unavailable(err))
	}
	return b, nil
}

// ListByDate returns every booking for date, cancelled included, oldest first.
func (s *PostgresStore) ListByDate(ctx context.Context, date civil.Date) ([]*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE date = $1 ORDER BY created_at, id`
	return s.list(ctx, query, database.Date(date))
}

// ListByPatient returns the patient's bookings, oldest first.
func (s *PostgresStore) ListByPatient(ctx context.Context, patientRef string) ([]*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE patient_ref = $1 ORDER BY created_at, id`
	return s.list(ctx, query, patientRef)
}

func (s *PostgresStore) list(ctx context.Context, query string, arg any) ([]*Booking, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("bookings: list: %w", database.Unavailable(err))
	}
	defer rows.Close()

	out := make([]*Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("bookings: scan: %w", database.Unavailable(err))
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookings: list: %w", database.Unavailable(err))
	}
	return out, nil
}

func (s *PostgresStore) prepare(booking *Booking) (*Booking, error) {
	row := booking.clone()
	if row.ID == "" {
		row.ID = uuid.NewString()
	} else if _, err := uuid.Parse(row.ID); err != nil {
		return nil, fmt.Errorf("bookings: invalid id %q: %w", row.ID, err)
	}
	if row.Status == "" {
		row.Status = StatusConfirmed
	}
	if !row.Status.Valid() {
		return nil, fmt.Errorf("bookings: invalid status %q", row.Status)
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}
	return row, nil
}

// querier is satisfied by both the pool and a pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func countActive(ctx context.Context, q querier, date civil.Date) (int, error) {
	query := `
		SELECT count(*)
		FROM bookings
		WHERE date = $1 AND status IN ('pending', 'confirmed')
	`
	var count int
	if err := q.QueryRow(ctx, query, database.Date(date)).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func insert(ctx context.Context, q querier, b *Booking) (*Booking, error) {
	query := `
		INSERT INTO bookings (id, date, status, patient_ref, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + bookingColumns
	return scanBooking(q.QueryRow(ctx, query, b.ID, database.Date(b.Date), string(b.Status), b.PatientRef, b.CreatedAt))
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var (
		b           Booking
		day         time.Time
		status      string
		cancelledAt *time.Time
	)
	if err := row.Scan(&b.ID, &day, &status, &b.PatientRef, &b.CreatedAt, &cancelledAt); err != nil {
		return nil, err
	}
	b.Date = database.CivilDate(day)
	b.Status = Status(status)
	b.CreatedAt = b.CreatedAt.UTC()
	if cancelledAt != nil {
		at := cancelledAt.UTC()
		b.CancelledAt = &at
	}
	return &b, nil
}
