package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/bitecare-clinic/internal/audit"
)

type stubAuditLog struct {
	filter  audit.Filter
	entries []audit.Entry
	err     error
}

func (s *stubAuditLog) Query(_ context.Context, filter audit.Filter) ([]audit.Entry, error) {
	s.filter = filter
	return s.entries, s.err
}

func TestAdminAuditList(t *testing.T) {
	log := &stubAuditLog{entries: []audit.Entry{{ID: "a-1", EventType: audit.EventSlotsRemoved, Subject: "2024-06-01"}}}
	r := chi.NewRouter()
	r.Route("/admin", NewAdminAuditHandler(log, nil).Register)

	rec := serve(r, http.MethodGet, "/admin/audit?type=slots.removed,+slots.configured&subject=2024-06-01&limit=9000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "a-1")
	assert.Equal(t, []audit.EventType{audit.EventSlotsRemoved, audit.EventSlotsConfigured}, log.filter.EventTypes)
	assert.Equal(t, "2024-06-01", log.filter.Subject)
	assert.Equal(t, maxAuditLimit, log.filter.Limit)

	rec = serve(r, http.MethodGet, "/admin/audit?limit=-2", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	log.err = errors.New("db down")
	rec = serve(r, http.MethodGet, "/admin/audit", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
