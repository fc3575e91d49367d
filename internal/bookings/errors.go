package bookings

import "errors"

var (
	// ErrNoCapacityConfigured is returned when a booking targets a date without slots.
	ErrNoCapacityConfigured = errors.New("no capacity configured for date")

	// ErrCapacityExceeded is returned when every slot of the date is taken.
	ErrCapacityExceeded = errors.New("capacity exceeded for date")

	// ErrNotFound is returned for unknown booking ids.
	ErrNotFound = errors.New("booking not found")

	// ErrActiveBookings is returned when removing slots from a date that still has active bookings.
	ErrActiveBookings = errors.New("date still has active bookings")

	// ErrInvalidPatientRef is returned when the patient reference is blank.
	ErrInvalidPatientRef = errors.New("patient reference required")
)
