package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
)

func TestUnavailableWrapsDriverErrors(t *testing.T) {
	driverErr := errors.New("connection refused")
	err := Unavailable(driverErr)

	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, driverErr)
}

func TestUnavailablePassesContextErrors(t *testing.T) {
	err := Unavailable(fmt.Errorf("query: %w", context.Canceled))

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestUnavailableNil(t *testing.T) {
	assert.NoError(t, Unavailable(nil))
}

func TestDateRoundTrip(t *testing.T) {
	d := civil.Date{Year: 2024, Month: time.June, Day: 1}

	param := Date(d)
	assert.True(t, param.Valid)
	assert.Equal(t, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), param.Time)
	assert.Equal(t, d, CivilDate(param.Time))
}
