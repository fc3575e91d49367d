package events

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/websocket"

	"github.com/wolfman30/bitecare-clinic/pkg/logging"
)

var errOriginNotAllowed = errors.New("events: origin not allowed")

// StreamHandler pushes bus events to WebSocket clients.
// Clients may narrow the feed with ?types=booking.created.v1,booking.cancelled.v1.
// Mount it behind authentication: the feed carries patient references.
type StreamHandler struct {
	bus            *Bus
	logger         *logging.Logger
	allowedOrigins map[string]struct{}
}

// NewStreamHandler creates a stream handler over bus.
func NewStreamHandler(bus *Bus, logger *logging.Logger) *StreamHandler {
	if bus == nil {
		panic("events: bus required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &StreamHandler{bus: bus, logger: logger}
}

// WithAllowedOrigins restricts browser handshakes to origins. With no origins
// only same-host pages may connect.
func (h *StreamHandler) WithAllowedOrigins(origins []string) *StreamHandler {
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		if normalized := normalizeOrigin(origin); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}
	h.allowedOrigins = allowed
	return h
}

// ServeHTTP upgrades to WebSocket and streams events until the client leaves.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	websocket.Server{
		Handshake: func(_ *websocket.Config, req *http.Request) error {
			if err := h.checkOrigin(req); err != nil {
				h.logger.Warn("event stream: handshake rejected", "origin", req.Header.Get("Origin"), "remote_ip", req.RemoteAddr)
				return err
			}
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			h.serveWS(conn, r)
		},
	}.ServeHTTP(w, r)
}

// checkOrigin accepts requests without an Origin header (non-browser clients)
// and browser requests from an allowed origin.
func (h *StreamHandler) checkOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return nil
	}
	if len(h.allowedOrigins) > 0 {
		if _, ok := h.allowedOrigins[normalizeOrigin(origin)]; ok {
			return nil
		}
		return errOriginNotAllowed
	}
	parsed, err := url.Parse(origin)
	if err != nil || !strings.EqualFold(parsed.Host, r.Host) {
		return errOriginNotAllowed
	}
	return nil
}

func normalizeOrigin(origin string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(origin)), "/")
}

func (h *StreamHandler) serveWS(conn *websocket.Conn, r *http.Request) {
	types := parseTypes(r.URL.Query().Get("types"))
	feed, cancel := h.bus.Subscribe(types...)
	defer cancel()

	h.logger.Info("event stream: connection opened", "remote_ip", r.RemoteAddr, "types", types)

	// Inbound frames are ignored; a read error means the client went away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		var discard any
		for {
			if err := websocket.JSON.Receive(conn, &discard); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			h.logger.Debug("event stream: connection closed", "remote_ip", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		case env, ok := <-feed:
			if !ok {
				return
			}
			if err := websocket.JSON.Send(conn, env); err != nil {
				h.logger.Debug("event stream: send failed", "error", err)
				return
			}
		}
	}
}

func parseTypes(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
