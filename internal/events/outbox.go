package events

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/bitecare-clinic/internal/database"
	"github.com/wolfman30/bitecare-clinic/pkg/logging"
)

// DeliveryHandler emits events to downstream transports.
type DeliveryHandler interface {
	Handle(ctx context.Context, env Envelope) error
}

// Claim defaults for FetchPending.
const (
	defaultClaimLease  = 30 * time.Second
	defaultMaxAttempts = 10
)

// OutboxStore persists events for reliable delivery.
type OutboxStore struct {
	pool        database.Pool
	claimLease  time.Duration
	maxAttempts int
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return newOutboxStoreWithPool(pool)
}

func newOutboxStoreWithPool(pool database.Pool) *OutboxStore {
	if pool == nil {
		panic("events: pool required")
	}
	return &OutboxStore{
		pool:        pool,
		claimLease:  defaultClaimLease,
		maxAttempts: defaultMaxAttempts,
	}
}

// WithClaimPolicy sets how long a fetched entry stays hidden from other
// workers and how many fetches an entry gets before it is left alone.
func (s *OutboxStore) WithClaimPolicy(lease time.Duration, maxAttempts int) *OutboxStore {
	if lease > 0 {
		s.claimLease = lease
	}
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
	return s
}

// Publish records env in the outbox so the outbox worker can ship it.
func (s *OutboxStore) Publish(ctx context.Context, env Envelope) error {
	id, err := uuid.Parse(env.ID)
	if err != nil {
		return fmt.Errorf("events: outbox id: %w", err)
	}
	query := `
		INSERT INTO outbox (id, type, payload, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := s.pool.Exec(ctx, query, id, env.Type, []byte(env.Payload), env.OccurredAt); err != nil {
		return fmt.Errorf("events: insert outbox: %w", database.Unavailable(err))
	}
	return nil
}

// FetchPending claims up to limit undelivered entries. Claimed rows are
// skipped by concurrent workers until their lease runs out, so an entry that
// keeps failing is retried after the lease instead of blocking newer ones.
func (s *OutboxStore) FetchPending(ctx context.Context, limit int32) ([]Envelope, error) {
	query := `
		WITH claimed AS (
			SELECT id
			FROM outbox
			WHERE delivered_at IS NULL
				AND attempts < $3
				AND (claimed_until IS NULL OR claimed_until < now())
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox o
		SET attempts = o.attempts + 1,
			claimed_until = now() + make_interval(secs => $2)
		FROM claimed
		WHERE o.id = claimed.id
		RETURNING o.id, o.type, o.payload, o.created_at
	`
	rows, err := s.pool.Query(ctx, query, limit, s.claimLease.Seconds(), s.maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", database.Unavailable(err))
	}
	defer rows.Close()

	var entries []Envelope
	for rows.Next() {
		var (
			id      uuid.UUID
			env     Envelope
			payload []byte
		)
		if err := rows.Scan(&id, &env.Type, &payload, &env.OccurredAt); err != nil {
			return nil, fmt.Errorf("events: scan outbox: %w", err)
		}
		env.ID = id.String()
		env.Payload = append([]byte(nil), payload...)
		entries = append(entries, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", database.Unavailable(err))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].OccurredAt.Before(entries[j].OccurredAt) })
	return entries, nil
}

func (s *OutboxStore) MarkDelivered(ctx context.Context, id string) (bool, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false, fmt.Errorf("events: outbox id: %w", err)
	}
	query := `
		UPDATE outbox
		SET delivered_at = now()
		WHERE id = $1 AND delivered_at IS NULL
	`
	ct, err := s.pool.Exec(ctx, query, parsed)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", database.Unavailable(err))
	}
	return ct.RowsAffected() == 1, nil
}

type outboxReader interface {
	FetchPending(ctx context.Context, limit int32) ([]Envelope, error)
	MarkDelivered(ctx context.Context, id string) (bool, error)
}

// Deliverer polls the outbox and invokes the handler.
type Deliverer struct {
	store     outboxReader
	handler   DeliveryHandler
	logger    *logging.Logger
	batchSize int32
	interval  time.Duration
}

func NewDeliverer(store *OutboxStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	return newDeliverer(store, handler, logger)
}

func newDeliverer(store outboxReader, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		store:     store,
		handler:   handler,
		logger:    logger,
		batchSize: 25,
		interval:  2 * time.Second,
	}
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// Start drains the outbox every interval until ctx is cancelled.
func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

// drain delivers one batch and returns how many entries were handed off.
func (d *Deliverer) drain(ctx context.Context) int {
	entries, err := d.store.FetchPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return 0
	}
	delivered := 0
	for _, entry := range entries {
		if err := d.handler.Handle(ctx, entry); err != nil {
			d.logger.Error("outbox delivery failed", "error", err, "event_id", entry.ID, "type", entry.Type)
			continue
		}
		delivered++
		if ok, err := d.store.MarkDelivered(ctx, entry.ID); err != nil {
			d.logger.Error("failed to mark outbox delivered", "error", err, "event_id", entry.ID)
		} else if ok {
			d.logger.Debug("outbox delivered", "event_id", entry.ID, "type", entry.Type)
		}
	}
	return delivered
}
