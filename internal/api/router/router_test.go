package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/bitecare-clinic/internal/bookings"
	"github.com/wolfman30/bitecare-clinic/internal/events"
	"github.com/wolfman30/bitecare-clinic/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/bitecare-clinic/internal/http/middleware"
	"github.com/wolfman30/bitecare-clinic/internal/slots"
)

const testSecret = "test-secret"

func newTestRouter(t *testing.T, limiter *httpmiddleware.RateLimiter) http.Handler {
	t.Helper()
	coord := bookings.NewCoordinator(slots.NewMemoryStore(), bookings.NewMemoryStore(), nil)
	return New(&Config{
		BookingsHandler: bookings.NewHandler(coord, nil),
		AdminSlots:      handlers.NewAdminSlotsHandler(coord, nil),
		RateLimiter:     limiter,
		AdminAuthSecret: testSecret,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
	})
}

func adminToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "admin@clinic",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func do(h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterEndToEnd(t *testing.T) {
	r := newTestRouter(t, nil)

	rec := do(r, http.MethodPut, "/admin/slots/2024-06-01", `{"capacity":1}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(r, http.MethodPut, "/admin/slots/2024-06-01", `{"capacity":1}`, adminToken(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(r, http.MethodPost, "/bookings", `{"date":"2024-06-01","patient_ref":"patient-1"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = do(r, http.MethodPost, "/bookings", `{"date":"2024-06-01","patient_ref":"patient-2"}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(r, http.MethodGet, "/slots/2024-06-01/snapshot", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"percentage_used":100`)

	rec = do(r, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterHealth(t *testing.T) {
	r := New(&Config{})
	rec := do(r, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	failing := New(&Config{HealthCheck: func(context.Context) error { return errors.New("db down") }})
	rec = do(failing, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouterAdminDisabledWithoutSecret(t *testing.T) {
	coord := bookings.NewCoordinator(slots.NewMemoryStore(), bookings.NewMemoryStore(), nil)
	r := New(&Config{AdminSlots: handlers.NewAdminSlotsHandler(coord, nil)})

	rec := do(r, http.MethodGet, "/admin/slots", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterRateLimitsBookingRoutes(t *testing.T) {
	r := newTestRouter(t, httpmiddleware.NewRateLimiter(0, 1))

	rec := do(r, http.MethodGet, "/slots/2024-06-01/snapshot", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(r, http.MethodGet, "/slots/2024-06-01/snapshot", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = do(r, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterEventStreamRequiresAdminToken(t *testing.T) {
	bus := events.NewBus(8, nil)
	coord := bookings.NewCoordinator(slots.NewMemoryStore(), bookings.NewMemoryStore(), nil).WithPublisher(bus)
	srv := httptest.NewServer(New(&Config{
		BookingsHandler: bookings.NewHandler(coord, nil),
		AdminSlots:      handlers.NewAdminSlotsHandler(coord, nil),
		EventStream:     events.NewStreamHandler(bus, nil),
		AdminAuthSecret: testSecret,
	}))
	defer srv.Close()
	wsBase := "ws" + strings.TrimPrefix(srv.URL, "http")

	resp, err := http.Get(srv.URL + "/admin/events/stream")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/events/stream")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, err = websocket.Dial(wsBase+"/admin/events/stream", "", srv.URL)
	require.Error(t, err)
	assert.Zero(t, bus.SubscriberCount())

	token := adminToken(t)
	_, err = websocket.Dial(wsBase+"/admin/events/stream?access_token="+token, "", "https://evil.example")
	require.Error(t, err)
	assert.Zero(t, bus.SubscriberCount())

	conn, err := websocket.Dial(wsBase+"/admin/events/stream?types="+events.TypeBookingCreated+"&access_token="+token, "", srv.URL)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return bus.SubscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	date := civil.Date{Year: 2024, Month: 6, Day: 1}
	_, err = coord.ConfigureSlots(context.Background(), date, 1, "admin")
	require.NoError(t, err)
	_, err = coord.RequestBooking(context.Background(), date, "patient-1")
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env events.Envelope
	require.NoError(t, websocket.JSON.Receive(conn, &env))
	assert.Equal(t, events.TypeBookingCreated, env.Type)
}
