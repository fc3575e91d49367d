package slots

import "errors"

var (
	// ErrInvalidCapacity is returned when a capacity below zero is written.
	ErrInvalidCapacity = errors.New("capacity must be zero or greater")

	// ErrNotFound is returned when no configuration exists for a date.
	ErrNotFound = errors.New("slot configuration not found")

	// ErrInvalidDate is returned for dates that are not YYYY-MM-DD.
	ErrInvalidDate = errors.New("date must be formatted as YYYY-MM-DD")

	// ErrInvalidRange is returned when a range ends before it starts.
	ErrInvalidRange = errors.New("date range end precedes start")
)
