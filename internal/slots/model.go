// Package slots stores the number of bookable appointments configured per calendar date.
package slots

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Configuration is the slot capacity an administrator set for one date.
type Configuration struct {
	Date      civil.Date `json:"date"`
	Capacity  int        `json:"capacity"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ParseDate parses an ISO-8601 calendar date (YYYY-MM-DD).
func ParseDate(raw string) (civil.Date, error) {
	d, err := civil.ParseDate(strings.TrimSpace(raw))
	if err != nil || !d.IsValid() {
		return civil.Date{}, ErrInvalidDate
	}
	return d, nil
}

// ValidateCapacity rejects negative capacities.
func ValidateCapacity(capacity int) error {
	if capacity < 0 {
		return ErrInvalidCapacity
	}
	return nil
}

func validateRange(from, to civil.Date) error {
	if !from.IsValid() || !to.IsValid() || to.Before(from) {
		return ErrInvalidRange
	}
	return nil
}
