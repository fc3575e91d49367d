package bookings

import (
	"context"
	"sync"

	"cloud.google.com/go/civil"
	"golang.org/x/sync/semaphore"
)

// dateLocks hands out one weight-1 semaphore per date. Entries are
// reference-counted and dropped once no caller holds or waits on them.
type dateLocks struct {
	mu      sync.Mutex
	entries map[civil.Date]*dateLock
}

type dateLock struct {
	sem  *semaphore.Weighted
	refs int
}

func newDateLocks() *dateLocks {
	return &dateLocks{entries: make(map[civil.Date]*dateLock)}
}

// acquire blocks until the date is free or ctx is done.
func (l *dateLocks) acquire(ctx context.Context, date civil.Date) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[date]
	if !ok {
		entry = &dateLock{sem: semaphore.NewWeighted(1)}
		l.entries[date] = entry
	}
	entry.refs++
	l.mu.Unlock()

	if err := entry.sem.Acquire(ctx, 1); err != nil {
		l.unref(date, entry)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.sem.Release(1)
			l.unref(date, entry)
		})
	}, nil
}

func (l *dateLocks) unref(date civil.Date, entry *dateLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, date)
	}
}

func (l *dateLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
