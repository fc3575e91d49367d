package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/bitecare-clinic/internal/events"
	"github.com/wolfman30/bitecare-clinic/pkg/logging"
)

func TestSetupBookingMetricsExposesMetrics(t *testing.T) {
	handler, bookingMetrics := setupBookingMetrics()
	require.NotNil(t, handler)
	require.NotNil(t, bookingMetrics)

	bookingMetrics.ObserveAdmission("admitted", 0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "bitecare_bookings_admissions_total"))
}

func TestSetupBookingMetricsUsesIsolatedRegistry(t *testing.T) {
	// A second call must not panic on duplicate registration.
	setupBookingMetrics()
	setupBookingMetrics()
}

func TestBuildPublisherLocalOnly(t *testing.T) {
	bus := events.NewBus(4, logging.Default())
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	env, err := events.NewEnvelope(events.TypeBookingCreated, map[string]string{"id": "b1"})
	require.NoError(t, err)

	publisher := buildPublisher(bus, nil, nil)
	require.NoError(t, publisher.Publish(context.Background(), env))

	got := <-ch
	assert.Equal(t, env.ID, got.ID)
}
