package slots

import (
	"context"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
)

// Store defines the interface for slot configuration storage
type Store interface {
	Get(ctx context.Context, date civil.Date) (*Configuration, error)
	Upsert(ctx context.Context, date civil.Date, capacity int) (*Configuration, error)
	// Update changes capacity for an existing date and returns ErrNotFound otherwise.
	Update(ctx context.Context, date civil.Date, capacity int) (*Configuration, error)
	Delete(ctx context.Context, date civil.Date) error
	List(ctx context.Context, from, to civil.Date) ([]*Configuration, error)
}

// MemoryStore keeps configurations in process memory. It backs single-instance
// deployments and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	configs map[civil.Date]Configuration
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		configs: make(map[civil.Date]Configuration),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the configuration for date or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, date civil.Date) (*Configuration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[date]
	if !ok {
		return nil, ErrNotFound
	}
	return &cfg, nil
}

// Upsert creates or replaces the capacity for date.
func (s *MemoryStore) Upsert(ctx context.Context, date civil.Date, capacity int) (*Configuration, error) {
	if err := ValidateCapacity(capacity); err != nil {
		return nil, err
	}
	if !date.IsValid() {
		return nil, ErrInvalidDate
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := Configuration{Date: date, Capacity: capacity, UpdatedAt: s.now()}
	s.mu.Lock()
	s.configs[date] = cfg
	s.mu.Unlock()
	return &cfg, nil
}

// Update changes capacity only if date is already configured.
func (s *MemoryStore) Update(ctx context.Context, date civil.Date, capacity int) (*Configuration, error) {
	if err := ValidateCapacity(capacity); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.configs[date]; !ok {
		return nil, ErrNotFound
	}
	cfg := Configuration{Date: date, Capacity: capacity, UpdatedAt: s.now()}
	s.configs[date] = cfg
	return &cfg, nil
}

// Delete removes the configuration for date. Missing dates are not an error.
func (s *MemoryStore) Delete(ctx context.Context, date civil.Date) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.configs, date)
	s.mu.Unlock()
	return nil
}

// List returns configurations between from and to inclusive, oldest first.
func (s *MemoryStore) List(ctx context.Context, from, to civil.Date) ([]*Configuration, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]*Configuration, 0, len(s.configs))
	for date, cfg := range s.configs {
		if date.Before(from) || date.After(to) {
			continue
		}
		cfg := cfg
		out = append(out, &cfg)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}
