// Package capacity derives slot utilization from the slot and booking stores.
package capacity

import (
	"context"
	"errors"
	"fmt"
	"math"

	"cloud.google.com/go/civil"

	"github.com/wolfman30/bitecare-clinic/internal/slots"
)

// SlotReader reads slot configurations.
type SlotReader interface {
	Get(ctx context.Context, date civil.Date) (*slots.Configuration, error)
	List(ctx context.Context, from, to civil.Date) ([]*slots.Configuration, error)
}

// ActiveCounter counts bookings that still hold a slot.
type ActiveCounter interface {
	CountActive(ctx context.Context, date civil.Date) (int, error)
}

// Snapshot is a point-in-time view of utilization for one date.
type Snapshot struct {
	Date           civil.Date `json:"date"`
	Available      int        `json:"available"`
	Booked         int        `json:"booked"`
	Remaining      int        `json:"remaining"`
	PercentageUsed int        `json:"percentage_used"`
}

// Compute builds a snapshot from raw counts. Dates booked past capacity report
// zero remaining and a percentage above 100.
func Compute(date civil.Date, available, booked int) Snapshot {
	snap := Snapshot{
		Date:      date,
		Available: available,
		Booked:    booked,
		Remaining: max(0, available-booked),
	}
	if available > 0 {
		snap.PercentageUsed = int(math.Round(float64(booked) / float64(available) * 100))
	}
	return snap
}

// Accountant computes snapshots on demand. It holds no state of its own.
type Accountant struct {
	slots    SlotReader
	bookings ActiveCounter
}

// NewAccountant wires an accountant over the two stores.
func NewAccountant(slotReader SlotReader, counter ActiveCounter) *Accountant {
	if slotReader == nil || counter == nil {
		panic("capacity: slot reader and booking counter required")
	}
	return &Accountant{slots: slotReader, bookings: counter}
}

// Snapshot returns utilization for date. Unconfigured dates yield a zeroed snapshot.
func (a *Accountant) Snapshot(ctx context.Context, date civil.Date) (Snapshot, error) {
	cfg, err := a.slots.Get(ctx, date)
	if errors.Is(err, slots.ErrNotFound) {
		return Snapshot{Date: date}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("capacity: load slots: %w", err)
	}
	return a.snapshotFor(ctx, cfg)
}

// Range returns a snapshot for every configured date in [from, to].
func (a *Accountant) Range(ctx context.Context, from, to civil.Date) ([]Snapshot, error) {
	configs, err := a.slots.List(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("capacity: list slots: %w", err)
	}
	out := make([]Snapshot, 0, len(configs))
	for _, cfg := range configs {
		snap, err := a.snapshotFor(ctx, cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func (a *Accountant) snapshotFor(ctx context.Context, cfg *slots.Configuration) (Snapshot, error) {
	booked, err := a.bookings.CountActive(ctx, cfg.Date)
	if err != nil {
		return Snapshot{}, fmt.Errorf("capacity: count bookings: %w", err)
	}
	return Compute(cfg.Date, cfg.Capacity, booked), nil
}
