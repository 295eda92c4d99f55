package web

import (
	"context"
	"net/http"
	"time"

	"github.com/JonMunkholm/quizdesk/internal/core"
	"github.com/JonMunkholm/quizdesk/internal/notify"
)

// HealthResponse reports liveness and pipeline load.
type HealthResponse struct {
	Status        string             `json:"status"`
	Database      string             `json:"database,omitempty"`
	Imports       core.LimiterStatus `json:"imports"`
	Notifications *notify.Stats      `json:"notifications,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Imports: s.deps.Imports.LimiterStatus(),
	}
	if s.deps.Notifications != nil {
		stats := s.deps.Notifications.Stats()
		resp.Notifications = &stats
	}

	status := http.StatusOK
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp.Database = "ok"
		if err := s.deps.DB.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, resp)
}

// handleSendDigest sends today's digest immediately.
func (s *Server) handleSendDigest(w http.ResponseWriter, r *http.Request) {
	if s.deps.Digests == nil {
		respondError(w, r, errNoDigests)
		return
	}

	n, err := s.deps.Digests.SendDigest(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": n})
}
