package slots

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/bitecare-clinic/internal/database"
)

// PostgresStore persists configurations in the slot_configurations table.
type PostgresStore struct {
	pool database.Pool
}

// NewPostgresStore initializes a store backed by pgxpool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("slots: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

func newPostgresStoreWithPool(pool database.Pool) *PostgresStore {
	if pool == nil {
		panic("slots: pool required")
	}
	return &PostgresStore{pool: pool}
}

// Get fetches the configuration for date.
func (s *PostgresStore) Get(ctx context.Context, date civil.Date) (*Configuration, error) {
	query := `
		SELECT date, capacity, updated_at
		FROM slot_configurations
		WHERE date = $1
	`
	cfg, err := scanConfiguration(s.pool.QueryRow(ctx, query, database.Date(date)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("slots: select failed: %w", database.Unavailable(err))
	}
	return cfg, nil
}

// Upsert writes capacity for date in a single statement.
func (s *PostgresStore) Upsert(ctx context.Context, date civil.Date, capacity int) (*Configuration, error) {
	if err := ValidateCapacity(capacity); err != nil {
		return nil, err
	}
	if !date.IsValid() {
		return nil, ErrInvalidDate
	}

	query := `
		INSERT INTO slot_configurations (date, capacity, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (date) DO UPDATE
		SET capacity = EXCLUDED.capacity, updated_at = EXCLUDED.updated_at
		RETURNING date, capacity, updated_at
	`
	cfg, err := scanConfiguration(s.pool.QueryRow(ctx, query, database.Date(date), capacity))
	if err != nil {
		return nil, fmt.Errorf("slots: upsert failed: %w", database.Unavailable(err))
	}
	return cfg, nil
}

// Update rewrites capacity for an existing row. It never creates one, so a
// concurrent Delete is not undone.
func (s *PostgresStore) Update(ctx context.Context, date civil.Date, capacity int) (*Configuration, error) {
	if err := ValidateCapacity(capacity); err != nil {
		return nil, err
	}

	query := `
		UPDATE slot_configurations
		SET capacity = $2, updated_at = now()
		WHERE date = $1
		RETURNING date, capacity, updated_at
	`
	cfg, err := scanConfiguration(s.pool.QueryRow(ctx, query, database.Date(date), capacity))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("slots: update failed: %w", database.Unavailable(err))
	}
	return cfg, nil
}

// Delete removes the row for date. Deleting a missing date succeeds.
func (s *PostgresStore) Delete(ctx context.Context, date civil.Date) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM slot_configurations WHERE date = $1`, database.Date(date)); err != nil {
		return fmt.Errorf("slots: delete failed: %w", database.Unavailable(err))
	}
	return nil
}

// List returns configurations in [from, to], oldest first.
func (s *PostgresStore) List(ctx context.Context, from, to civil.Date) ([]*Configuration, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}

	query := `
		SELECT date, capacity, updated_at
		FROM slot_configurations
		WHERE date BETWEEN $1 AND $2
		ORDER BY date
	`
	rows, err := s.pool.Query(ctx, query, database.Date(from), database.Date(to))
	if err != nil {
		return nil, fmt.Errorf("slots: list failed: %w", database.Unavailable(err))
	}
	defer rows.Close()

	var out []*Configuration
	for rows.Next() {
		cfg, err := scanConfiguration(rows)
		if err != nil {
			return nil, fmt.Errorf("slots: scan failed: %w", database.Unavailable(err))
		}
		out = append(out, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("slots: list failed: %w", database.Unavailable(err))
	}
	return out, nil
}

func scanConfiguration(row pgx.Row) (*Configuration, error) {
	var (
		day       time.Time
		cfg       Configuration
		updatedAt time.Time
	)
	if err := row.Scan(&day, &cfg.Capacity, &updatedAt); err != nil {
		return nil, err
	}
	cfg.Date = database.CivilDate(day)
	cfg.UpdatedAt = updatedAt.UTC()
	return &cfg, nil
}
