package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/bitecare-clinic/internal/database"
	"github.com/wolfman30/bitecare-clinic/internal/slots"
	"github.com/wolfman30/bitecare-clinic/pkg/logging"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Handler exposes the patient-facing booking endpoints.
type Handler struct {
	coord  *Coordinator
	logger *logging.Logger
}

// NewHandler creates a booking HTTP handler.
func NewHandler(coord *Coordinator, logger *logging.Logger) *Handler {
	if coord == nil {
		panic("bookings: coordinator required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{coord: coord, logger: logger}
}

// Register mounts the booking routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/bookings", h.RequestBooking)
	r.Get("/bookings/{bookingID}", h.GetBooking)
	r.Delete("/bookings/{bookingID}", h.CancelBooking)
	r.Post("/bookings/{bookingID}/cancel", h.CancelBooking)
	r.Get("/patients/{patientRef}/bookings", h.PatientBookings)
	r.Get("/slots/{date}/snapshot", h.GetSnapshot)
}

// CreateBookingRequest is the request body for POST /bookings.
type CreateBookingRequest struct {
	Date       string `json:"date"`
	PatientRef string `json:"patient_ref"`
}

// RequestBooking admits a booking.
// POST /bookings
func (h *Handler) RequestBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_body", Message: "invalid JSON body"})
		return
	}
	date, err := slots.ParseDate(req.Date)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}

	booking, err := h.coord.RequestBooking(r.Context(), date, req.PatientRef)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// GetBooking returns one booking.
// GET /bookings/{bookingID}
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := h.coord.GetBooking(r.Context(), chi.URLParam(r, "bookingID"))
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// CancelBooking cancels a booking. Repeat calls return the cancelled booking.
// DELETE /bookings/{bookingID}, POST /bookings/{bookingID}/cancel
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := h.coord.CancelBooking(r.Context(), chi.URLParam(r, "bookingID"))
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// PatientBookings lists a patient's bookings.
// GET /patients/{patientRef}/bookings
func (h *Handler) PatientBookings(w http.ResponseWriter, r *http.Request) {
	list, err := h.coord.PatientBookings(r.Context(), chi.URLParam(r, "patientRef"))
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": list})
}

// GetSnapshot reports utilization for a date.
// GET /slots/{date}/snapshot
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	date, err := slots.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	snap, err := h.coord.GetSnapshot(r.Context(), date)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ErrorStatus maps a domain error to an HTTP status and error code.
func ErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidPatientRef):
		return http.StatusBadRequest, "invalid_patient_ref"
	case errors.Is(err, slots.ErrInvalidDate):
		return http.StatusBadRequest, "invalid_date"
	case errors.Is(err, slots.ErrInvalidRange):
		return http.StatusBadRequest, "invalid_range"
	case errors.Is(err, slots.ErrInvalidCapacity):
		return http.StatusBadRequest, "invalid_capacity"
	case errors.Is(err, ErrNoCapacityConfigured):
		return http.StatusNotFound, "no_capacity_configured"
	case errors.Is(err, ErrNotFound), errors.Is(err, slots.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrCapacityExceeded):
		return http.StatusConflict, "capacity_exceeded"
	case errors.Is(err, ErrActiveBookings):
		return http.StatusConflict, "active_bookings"
	case errors.Is(err, database.ErrUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// WriteError writes the JSON error body for err. Unmapped errors are logged
// and reported without their text.
func WriteError(w http.ResponseWriter, logger *logging.Logger, err error) {
	status, code := ErrorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		if logger != nil {
			logger.Error("request failed", "error", err)
		}
		message = "internal server error"
	}
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
