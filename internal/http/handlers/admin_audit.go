package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/bitecare-clinic/internal/audit"
	"github.com/wolfman30/bitecare-clinic/pkg/logging"
)

const maxAuditLimit = 500

// AuditQuerier reads audit entries.
type AuditQuerier interface {
	Query(ctx context.Context, filter audit.Filter) ([]audit.Entry, error)
}

// AdminAuditHandler serves the audit trail of slot and booking changes.
type AdminAuditHandler struct {
	log    AuditQuerier
	logger *logging.Logger
}

func NewAdminAuditHandler(log AuditQuerier, logger *logging.Logger) *AdminAuditHandler {
	if log == nil {
		panic("handlers: audit log required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminAuditHandler{log: log, logger: logger}
}

func (h *AdminAuditHandler) Register(r chi.Router) {
	r.Get("/audit", h.List)
}

// List returns audit entries, newest first.
// GET /admin/audit?type=slots.configured,slots.removed&subject=2024-06-01&limit=50
func (h *AdminAuditHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{Subject: strings.TrimSpace(q.Get("subject")), Limit: 100}
	for _, raw := range strings.Split(q.Get("type"), ",") {
		if t := strings.TrimSpace(raw); t != "" {
			filter.EventTypes = append(filter.EventTypes, audit.EventType(t))
		}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_limit", "message": "limit must be a positive integer"})
			return
		}
		filter.Limit = min(limit, maxAuditLimit)
	}

	entries, err := h.log.Query(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to query audit log", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store_unavailable", "message": "audit log unavailable"})
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
