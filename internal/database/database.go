// Package database holds the PostgreSQL plumbing shared by the stores.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnavailable marks failures of the underlying persistence layer.
// Callers may retry these; the stores never do.
var ErrUnavailable = errors.New("store unavailable")

// Pool is the subset of pgxpool.Pool the stores use. pgxmock pools satisfy it too.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Open connects a pgx pool and verifies it with a ping.
func Open(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("database: parse url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: connect: %w", Unavailable(err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database: ping: %w", Unavailable(err))
	}
	return pool, nil
}

// Unavailable tags err as a persistence failure while keeping it unwrappable.
// Context cancellation is passed through untouched.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// Rollback discards tx even when ctx is already cancelled.
func Rollback(ctx context.Context, tx pgx.Tx) {
	_ = tx.Rollback(context.WithoutCancel(ctx))
}

// Date converts a calendar date into a pgx DATE parameter.
func Date(d civil.Date) pgtype.Date {
	return pgtype.Date{
		Time:  d.In(time.UTC),
		Valid: true,
	}
}

// CivilDate converts a scanned DATE column back into a calendar date.
func CivilDate(t time.Time) civil.Date {
	return civil.DateOf(t.UTC())
}
