package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/bitecare-clinic/internal/audit"
	"github.com/wolfman30/bitecare-clinic/internal/capacity"
	"github.com/wolfman30/bitecare-clinic/internal/events"
	"github.com/wolfman30/bitecare-clinic/internal/observability/metrics"
	"github.com/wolfman30/bitecare-clinic/internal/slots"
	"github.com/wolfman30/bitecare-clinic/pkg/logging"
)

var bookingsTracer = otel.Tracer("bitecare.internal.bookings")

// AuditRecorder appends audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Coordinator is the single entry point for booking admission, cancellation
// and slot capacity changes. Admissions for one date are serialized; admissions
// for different dates never wait on each other.
type Coordinator struct {
	slots            slots.Store
	bookings         Store
	accountant       *capacity.Accountant
	publisher        events.Publisher
	metrics          *metrics.BookingMetrics
	audit            AuditRecorder
	logger           *logging.Logger
	locks            *dateLocks
	admissionTimeout time.Duration
	now              func() time.Time
}

// NewCoordinator constructs a coordinator over the two stores.
func NewCoordinator(slotStore slots.Store, store Store, logger *logging.Logger) *Coordinator {
	if slotStore == nil {
		panic("bookings: slot store required")
	}
	if store == nil {
		panic("bookings: booking store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Coordinator{
		slots:      slotStore,
		bookings:   store,
		accountant: capacity.NewAccountant(slotStore, store),
		publisher:  events.Discard,
		logger:     logger,
		locks:      newDateLocks(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithPublisher sets where booking and capacity events go.
func (c *Coordinator) WithPublisher(p events.Publisher) *Coordinator {
	if p != nil {
		c.publisher = p
	}
	return c
}

func (c *Coordinator) WithMetrics(m *metrics.BookingMetrics) *Coordinator {
	c.metrics = m
	return c
}

func (c *Coordinator) WithAudit(r AuditRecorder) *Coordinator {
	c.audit = r
	return c
}

// WithAdmissionTimeout bounds how long RequestBooking may wait for the date lock and the store.
func (c *Coordinator) WithAdmissionTimeout(d time.Duration) *Coordinator {
	if d > 0 {
		c.admissionTimeout = d
	}
	return c
}

// RequestBooking admits a booking for patientRef on date if a slot is free.
// Either a confirmed booking is stored and counted, or nothing is written.
func (c *Coordinator) RequestBooking(ctx context.Context, date civil.Date, patientRef string) (*Booking, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.request")
	defer span.End()
	span.SetAttributes(attribute.String("bitecare.date", date.String()))

	start := time.Now()
	patientRef = strings.TrimSpace(patientRef)
	if patientRef == "" {
		c.metrics.ObserveAdmission("invalid", time.Since(start).Seconds())
		return nil, ErrInvalidPatientRef
	}
	if !date.IsValid() {
		c.metrics.ObserveAdmission("invalid", time.Since(start).Seconds())
		return nil, slots.ErrInvalidDate
	}

	admitCtx := ctx
	if c.admissionTimeout > 0 {
		var cancel context.CancelFunc
		admitCtx, cancel = context.WithTimeout(ctx, c.admissionTimeout)
		defer cancel()
	}

	booking, err := c.admit(admitCtx, date, patientRef)
	c.metrics.ObserveAdmission(admissionOutcome(err), time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrCapacityExceeded) || errors.Is(err, ErrNoCapacityConfigured) {
			c.logger.Info("booking rejected", "date", date.String(), "reason", err.Error())
		} else {
			c.logger.Error("booking admission failed", "date", date.String(), "error", err)
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("bitecare.booking_id", booking.ID))
	c.logger.Info("booking admitted", "booking_id", booking.ID, "date", date.String())

	c.publish(ctx, events.TypeBookingCreated, events.BookingCreatedV1{
		BookingID:  booking.ID,
		Date:       booking.Date.String(),
		PatientRef: booking.PatientRef,
		Status:     string(booking.Status),
		CreatedAt:  booking.CreatedAt,
	})
	c.record(ctx, audit.Entry{
		EventType: audit.EventBookingCreated,
		Subject:   booking.ID,
		Details:   audit.MarshalDetails(audit.Details{Date: booking.Date.String(), PatientRef: booking.PatientRef}),
	})
	return booking, nil
}

func (c *Coordinator) admit(ctx context.Context, date civil.Date, patientRef string) (*Booking, error) {
	release, err := c.locks.acquire(ctx, date)
	if err != nil {
		return nil, err
	}
	defer release()

	candidate := &Booking{
		Date:       date,
		Status:     StatusConfirmed,
		PatientRef: patientRef,
		CreatedAt:  c.now(),
	}

	if admitter, ok := c.bookings.(AtomicAdmitter); ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		booking, err := admitter.AdmitWithinCapacity(ctx, candidate)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		return booking, nil
	}

	cfg, err := c.slots.Get(ctx, date)
	if err != nil {
		if errors.Is(err, slots.ErrNotFound) {
			return nil, ErrNoCapacityConfigured
		}
		return nil, fmt.Errorf("bookings: load slots: %w", err)
	}
	booked, err := c.bookings.CountActive(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("bookings: count active: %w", err)
	}
	if booked >= cfg.Capacity {
		return nil, ErrCapacityExceeded
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.bookings.Insert(ctx, candidate)
}

// CancelBooking moves a booking to cancelled, freeing its slot. Cancelling an
// already cancelled booking returns it unchanged.
func (c *Coordinator) CancelBooking(ctx context.Context, id string) (*Booking, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("bitecare.booking_id", id))

	existing, err := c.bookings.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !existing.IsActive() {
		return existing, nil
	}

	release, err := c.locks.acquire(ctx, existing.Date)
	if err != nil {
		return nil, err
	}
	defer release()

	// Re-read under the lock so only one caller observes the transition.
	current, err := c.bookings.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.IsActive() {
		return current, nil
	}

	cancelled, err := c.bookings.Cancel(ctx, id)
	if err != nil {
		span.RecordError(err)
		c.logger.Error("booking cancel failed", "booking_id", id, "error", err)
		return nil, err
	}
	c.metrics.ObserveCancellation()
	c.logger.Info("booking cancelled", "booking_id", id, "date", cancelled.Date.String())

	cancelledAt := c.now()
	if cancelled.CancelledAt != nil {
		cancelledAt = *cancelled.CancelledAt
	}
	c.publish(ctx, events.TypeBookingCancelled, events.BookingCancelledV1{
		BookingID:   cancelled.ID,
		Date:        cancelled.Date.String(),
		PatientRef:  cancelled.PatientRef,
		CancelledAt: cancelledAt,
	})
	c.record(ctx, audit.Entry{
		EventType: audit.EventBookingCancelled,
		Subject:   cancelled.ID,
		Details:   audit.MarshalDetails(audit.Details{Date: cancelled.Date.String(), PatientRef: cancelled.PatientRef}),
	})
	return cancelled, nil
}

// UpdateCapacity changes the capacity of an already configured date. The new
// value may be below the active booking count; existing bookings are kept and
// further requests are rejected until the date has room again.
func (c *Coordinator) UpdateCapacity(ctx context.Context, date civil.Date, newCapacity int) (*slots.Configuration, error) {
	return c.setCapacity(ctx, date, newCapacity, "", true)
}

// ConfigureSlots creates or replaces the capacity for date on behalf of actor.
func (c *Coordinator) ConfigureSlots(ctx context.Context, date civil.Date, slotCapacity int, actor string) (*slots.Configuration, error) {
	return c.setCapacity(ctx, date, slotCapacity, actor, false)
}

func (c *Coordinator) setCapacity(ctx context.Context, date civil.Date, newCapacity int, actor string, mustExist bool) (*slots.Configuration, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.set_capacity")
	defer span.End()
	span.SetAttributes(
		attribute.String("bitecare.date", date.String()),
		attribute.Int("bitecare.capacity", newCapacity),
	)

	if err := slots.ValidateCapacity(newCapacity); err != nil {
		return nil, err
	}
	if !date.IsValid() {
		return nil, slots.ErrInvalidDate
	}

	release, err := c.locks.acquire(ctx, date)
	if err != nil {
		return nil, err
	}
	defer release()

	var previous *int
	existing, err := c.slots.Get(ctx, date)
	switch {
	case err == nil:
		prev := existing.Capacity
		previous = &prev
	case errors.Is(err, slots.ErrNotFound):
		if mustExist {
			return nil, slots.ErrNotFound
		}
	default:
		span.RecordError(err)
		return nil, fmt.Errorf("bookings: load slots: %w", err)
	}

	var cfg *slots.Configuration
	if mustExist {
		cfg, err = c.slots.Update(ctx, date, newCapacity)
	} else {
		cfg, err = c.slots.Upsert(ctx, date, newCapacity)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	kind := "configured"
	if previous != nil {
		kind = "updated"
	}
	c.metrics.ObserveCapacityChange(kind)
	c.logger.Info("slot capacity set", "date", date.String(), "capacity", newCapacity, "kind", kind, "actor", actor)

	c.publish(ctx, events.TypeCapacityChanged, events.CapacityChangedV1{
		Date:             date.String(),
		Capacity:         cfg.Capacity,
		PreviousCapacity: previous,
		Actor:            actor,
		ChangedAt:        cfg.UpdatedAt,
	})
	c.record(ctx, audit.Entry{
		EventType: audit.EventSlotsConfigured,
		Actor:     actor,
		Subject:   date.String(),
		Details: audit.MarshalDetails(audit.Details{
			Date:             date.String(),
			Capacity:         &cfg.Capacity,
			PreviousCapacity: previous,
		}),
	})
	return cfg, nil
}

// RemoveSlots deletes the configuration for date. Dates with active bookings
// are refused with ErrActiveBookings unless force is set; forced removal keeps
// the bookings.
func (c *Coordinator) RemoveSlots(ctx context.Context, date civil.Date, force bool, actor string) error {
	ctx, span := bookingsTracer.Start(ctx, "bookings.remove_slots")
	defer span.End()
	span.SetAttributes(attribute.String("bitecare.date", date.String()), attribute.Bool("bitecare.force", force))

	if !date.IsValid() {
		return slots.ErrInvalidDate
	}

	release, err := c.locks.acquire(ctx, date)
	if err != nil {
		return err
	}
	defer release()

	var previous *int
	existing, err := c.slots.Get(ctx, date)
	switch {
	case err == nil:
		prev := existing.Capacity
		previous = &prev
	case errors.Is(err, slots.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("bookings: load slots: %w", err)
	}

	if !force {
		active, err := c.bookings.CountActive(ctx, date)
		if err != nil {
			return fmt.Errorf("bookings: count active: %w", err)
		}
		if active > 0 {
			return ErrActiveBookings
		}
	}

	if err := c.slots.Delete(ctx, date); err != nil {
		span.RecordError(err)
		return err
	}
	c.metrics.ObserveCapacityChange("removed")
	c.logger.Info("slot configuration removed", "date", date.String(), "force", force, "actor", actor)

	c.publish(ctx, events.TypeCapacityChanged, events.CapacityChangedV1{
		Date:             date.String(),
		PreviousCapacity: previous,
		Removed:          true,
		Actor:            actor,
		ChangedAt:        c.now(),
	})
	c.record(ctx, audit.Entry{
		EventType: audit.EventSlotsRemoved,
		Actor:     actor,
		Subject:   date.String(),
		Details:   audit.MarshalDetails(audit.Details{Date: date.String(), PreviousCapacity: previous, Forced: force}),
	})
	return nil
}

// GetSnapshot reports utilization for date.
func (c *Coordinator) GetSnapshot(ctx context.Context, date civil.Date) (capacity.Snapshot, error) {
	if !date.IsValid() {
		return capacity.Snapshot{}, slots.ErrInvalidDate
	}
	return c.accountant.Snapshot(ctx, date)
}

// CapacityRange reports utilization for every configured date in [from, to].
func (c *Coordinator) CapacityRange(ctx context.Context, from, to civil.Date) ([]capacity.Snapshot, error) {
	return c.accountant.Range(ctx, from, to)
}

// ListBookings returns every booking for date, cancelled included.
func (c *Coordinator) ListBookings(ctx context.Context, date civil.Date) ([]*Booking, error) {
	if !date.IsValid() {
		return nil, slots.ErrInvalidDate
	}
	return c.bookings.ListByDate(ctx, date)
}

// PatientBookings returns the bookings made for patientRef.
func (c *Coordinator) PatientBookings(ctx context.Context, patientRef string) ([]*Booking, error) {
	patientRef = strings.TrimSpace(patientRef)
	if patientRef == "" {
		return nil, ErrInvalidPatientRef
	}
	return c.bookings.ListByPatient(ctx, patientRef)
}

func (c *Coordinator) GetBooking(ctx context.Context, id string) (*Booking, error) {
	return c.bookings.Get(ctx, id)
}

// publish and record run after the state change is durable, so they ignore
// the caller's cancellation. Failures are logged only.
func (c *Coordinator) publish(ctx context.Context, eventType string, payload any) {
	env, err := events.NewEnvelope(eventType, payload)
	if err != nil {
		c.logger.Error("event encode failed", "type", eventType, "error", err)
		return
	}
	if err := c.publisher.Publish(context.WithoutCancel(ctx), env); err != nil {
		c.logger.Error("event publish failed", "type", eventType, "event_id", env.ID, "error", err)
	}
}

func (c *Coordinator) record(ctx context.Context, entry audit.Entry) {
	if c.audit == nil {
		return
	}
	if err := c.audit.Record(context.WithoutCancel(ctx), entry); err != nil {
		c.logger.Error("audit record failed", "event_type", entry.EventType, "subject", entry.Subject, "error", err)
	}
}

func admissionOutcome(err error) string {
	switch {
	case err == nil:
		return "admitted"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrNoCapacityConfigured):
		return "no_capacity_configured"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
