package api

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/nerrad567/whep-gateway/internal/audit"
	"github.com/nerrad567/whep-gateway/internal/device"
	"github.com/nerrad567/whep-gateway/internal/refresh"
)

// DeviceList is the response body for GET /api/v1/devices.
type DeviceList struct {
	Devices     []device.Descriptor `json:"devices"`
	Count       int                 `json:"count"`
	RefreshedAt time.Time           `json:"refreshed_at,omitzero"`
}

// StatusResponse is the response body for GET /api/v1/status.
type StatusResponse struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Goroutines    int             `json:"goroutines"`
	Registry      RegistryStatus  `json:"registry"`
	Refresh       *refresh.Status `json:"refresh,omitempty"`
	Sessions      SessionStatus   `json:"sessions"`
	WebSocket     WSMetrics       `json:"websocket"`
}

// RegistryStatus summarises the device registry.
type RegistryStatus struct {
	Devices     int       `json:"devices"`
	RefreshedAt time.Time `json:"refreshed_at,omitzero"`
}

// SessionStatus summarises session monitoring.
type SessionStatus struct {
	Monitoring bool `json:"monitoring"`
	Monitored  int  `json:"monitored"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleListDevices returns the current registry snapshot.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.registry.Snapshot()
	writeJSON(w, http.StatusOK, DeviceList{
		Devices:     devices,
		Count:       len(devices),
		RefreshedAt: s.registry.RefreshedAt(),
	})
}

// handleStatus returns registry, refresh and session diagnostics.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
		Registry: RegistryStatus{
			Devices:     s.registry.Count(),
			RefreshedAt: s.registry.RefreshedAt(),
		},
		Sessions: SessionStatus{
			Monitoring: s.monitor,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
	}

	if s.refresher != nil {
		st := s.refresher.Status()
		resp.Refresh = &st
	}
	if s.tasks != nil {
		resp.Sessions.Monitored = s.tasks.Len()
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleListAudit returns paginated session audit entries with optional filters.
//
// Query parameters:
//   - action: filter by event type (session.created, session.terminated, ...)
//   - device_id: filter by device
//   - session_id: filter by session
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeUnavailable(w, "audit trail not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:    q.Get("action"),
		DeviceID:  q.Get("device_id"),
		SessionID: q.Get("session_id"),
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleTriggerRefresh asks the supervisor to refresh the registry now.
// The refresh runs asynchronously; repeated calls coalesce.
func (s *Server) handleTriggerRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		writeUnavailable(w, "refresh supervisor not configured")
		return
	}

	s.refresher.Trigger()
	s.logger.Info("registry refresh requested", "subject", subjectOf(r))

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh_triggered"})
}

// handleShutdown asks the process to stop. The response is written before
// shutdown begins; in-flight requests still get the graceful timeout.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if s.requestShutdown == nil {
		writeUnavailable(w, "shutdown not available")
		return
	}

	s.logger.Warn("shutdown requested via admin API", "subject", subjectOf(r))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "shutting_down"})

	s.requestShutdown()
}

func subjectOf(r *http.Request) string {
	if c := claimsFromContext(r.Context()); c != nil {
		return c.Subject
	}
	return ""
}
