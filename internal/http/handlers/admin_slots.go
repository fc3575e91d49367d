package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/bitecare-clinic/internal/bookings"
	"github.com/wolfman30/bitecare-clinic/internal/http/middleware"
	"github.com/wolfman30/bitecare-clinic/internal/slots"
	"github.com/wolfman30/bitecare-clinic/pkg/logging"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// defaultRangeDays is how far the capacity dashboard looks ahead when no end date is given.
const defaultRangeDays = 30

// AdminSlotsHandler lets clinic administrators manage per-date capacity.
type AdminSlotsHandler struct {
	coord  *bookings.Coordinator
	logger *logging.Logger
	today  func() civil.Date
}

// NewAdminSlotsHandler creates the admin slot handler.
func NewAdminSlotsHandler(coord *bookings.Coordinator, logger *logging.Logger) *AdminSlotsHandler {
	if coord == nil {
		panic("handlers: coordinator required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminSlotsHandler{
		coord:  coord,
		logger: logger,
		today:  func() civil.Date { return civil.DateOf(time.Now()) },
	}
}

// Register mounts the admin slot routes on r. Callers wrap r with AdminJWT.
func (h *AdminSlotsHandler) Register(r chi.Router) {
	r.Get("/slots", h.ListCapacity)
	r.Put("/slots/{date}", h.ConfigureSlots)
	r.Delete("/slots/{date}", h.RemoveSlots)
	r.Get("/slots/{date}/bookings", h.ListBookings)
}

// ConfigureSlotsRequest is the request body for PUT /admin/slots/{date}.
type ConfigureSlotsRequest struct {
	Capacity *int `json:"capacity"`
}

// ConfigureSlots creates or updates capacity for a date.
// PUT /admin/slots/{date}
func (h *AdminSlotsHandler) ConfigureSlots(w http.ResponseWriter, r *http.Request) {
	date, err := slots.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		bookings.WriteError(w, h.logger, err)
		return
	}

	var req ConfigureSlotsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || req.Capacity == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body", "message": "capacity is required"})
		return
	}

	cfg, err := h.coord.ConfigureSlots(r.Context(), date, *req.Capacity, middleware.AdminActor(r.Context()))
	if err != nil {
		bookings.WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// RemoveSlots deletes a date's configuration. ?force=true removes it even with active bookings.
// DELETE /admin/slots/{date}
func (h *AdminSlotsHandler) RemoveSlots(w http.ResponseWriter, r *http.Request) {
	date, err := slots.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		bookings.WriteError(w, h.logger, err)
		return
	}
	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		force, err = strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_force", "message": "force must be true or false"})
			return
		}
	}

	if err := h.coord.RemoveSlots(r.Context(), date, force, middleware.AdminActor(r.Context())); err != nil {
		bookings.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCapacity returns snapshots for every configured date in [from, to].
// GET /admin/slots?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *AdminSlotsHandler) ListCapacity(w http.ResponseWriter, r *http.Request) {
	from := h.today()
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := slots.ParseDate(raw)
		if err != nil {
			bookings.WriteError(w, h.logger, err)
			return
		}
		from = parsed
	}
	to := from.AddDays(defaultRangeDays)
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := slots.ParseDate(raw)
		if err != nil {
			bookings.WriteError(w, h.logger, err)
			return
		}
		to = parsed
	}

	snapshots, err := h.coord.CapacityRange(r.Context(), from, to)
	if err != nil {
		bookings.WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"from":      from,
		"to":        to,
		"snapshots": snapshots,
	})
}

// ListBookings returns every booking for a date, cancelled included.
// GET /admin/slots/{date}/bookings
func (h *AdminSlotsHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	date, err := slots.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		bookings.WriteError(w, h.logger, err)
		return
	}
	list, err := h.coord.ListBookings(r.Context(), date)
	if err != nil {
		bookings.WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "bookings": list})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
