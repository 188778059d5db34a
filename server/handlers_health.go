package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/onnwee/chat-relay/db"
	"github.com/onnwee/chat-relay/relay"
	"github.com/onnwee/chat-relay/telemetry"
)

// HandleHealthz responds to liveness probe requests.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with dependency checks.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"hub", func() error {
			if h.hub == nil || h.hub.Closed() {
				return fmt.Errorf("relay hub closed")
			}
			return nil
		}},
		{"database", func() error {
			if h.db == nil {
				return nil
			}
			return h.db.PingContext(r.Context())
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			// Set headers before writing status code
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

type statusResponse struct {
	ActiveStreams int            `json:"active_streams"`
	Relays        []relay.Status `json:"relays"`
	Sessions      []db.Session   `json:"sessions,omitempty"`
}

// HandleStatus lists the live relays and, with a database, the most recent
// session checkpoints (?limit=, default 50).
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Relays: h.hub.Snapshot()}
	resp.ActiveStreams = len(resp.Relays)
	if h.db != nil {
		sessions, err := db.ListSessions(r.Context(), h.db, parseIntQuery(r, "limit", 50))
		if err != nil {
			telemetry.LoggerWithCorr(r.Context()).Warn("list sessions failed", slog.Any("err", err))
		} else {
			resp.Sessions = sessions
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
