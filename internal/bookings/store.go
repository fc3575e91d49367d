package bookings

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// Store defines the interface for booking storage
type Store interface {
	CountActive(ctx context.Context, date civil.Date) (int, error)
	Insert(ctx context.Context, booking *Booking) (*Booking, error)
	Cancel(ctx context.Context, id string) (*Booking, error)
	Get(ctx context.Context, id string) (*Booking, error)
	ListByDate(ctx context.Context, date civil.Date) ([]*Booking, error)
	ListByPatient(ctx context.Context, patientRef string) ([]*Booking, error)
}

// AtomicAdmitter is implemented by stores that can check capacity and insert
// in one transaction, holding a lock on the date's slot configuration.
// It returns ErrNoCapacityConfigured or ErrCapacityExceeded on rejection.
type AtomicAdmitter interface {
	AdmitWithinCapacity(ctx context.Context, booking *Booking) (*Booking, error)
}

// MemoryStore keeps bookings in process memory. It backs single-instance
// deployments and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	bookings map[string]*Booking
	order    []string
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings: make(map[string]*Booking),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CountActive counts pending and confirmed bookings for date.
func (s *MemoryStore) CountActive(ctx context.Context, date civil.Date) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, b := range s.bookings {
		if b.Date == date && b.IsActive() {
			count++
		}
	}
	return count, nil
}

// Insert stores a copy of booking, filling in id, status and creation time when unset.
func (s *MemoryStore) Insert(ctx context.Context, booking *Booking) (*Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stored := booking.clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.Status == "" {
		stored.Status = StatusConfirmed
	}
	if !stored.Status.Valid() {
		return nil, fmt.Errorf("bookings: invalid status %q", stored.Status)
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bookings[stored.ID]; exists {
		return nil, fmt.Errorf("bookings: duplicate id %s", stored.ID)
	}
	s.bookings[stored.ID] = stored
	s.order = append(s.order, stored.ID)
	return stored.clone(), nil
}

// Cancel marks the booking cancelled. Cancelling twice keeps the first cancellation time.
func (s *MemoryStore) Cancel(ctx context.Context, id string) (*Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	if b.Status != StatusCancelled {
		at := s.now()
		b.Status = StatusCancelled
		b.CancelledAt = &at
	}
	return b.clone(), nil
}

// Get returns the booking with id or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b.clone(), nil
}

// ListByDate returns every booking for date, cancelled included, oldest first.
func (s *MemoryStore) ListByDate(ctx context.Context, date civil.Date) ([]*Booking, error) {
	return s.list(ctx, func(b *Booking) bool { return b.Date == date })
}

// ListByPatient returns the patient's bookings, oldest first.
func (s *MemoryStore) ListByPatient(ctx context.Context, patientRef string) ([]*Booking, error) {
	return s.list(ctx, func(b *Booking) bool { return b.PatientRef == patientRef })
}

func (s *MemoryStore) list(ctx context.Context, match func(*Booking) bool) ([]*Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]*Booking, 0)
	for _, id := range s.order {
		if b := s.bookings[id]; match(b) {
			out = append(out, b.clone())
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
