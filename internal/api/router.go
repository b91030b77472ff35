package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/whep-gateway/internal/auth"
	"github.com/nerrad567/whep-gateway/internal/player"
)

// URL parameters.
const (
	paramDeviceID  = "device_id"
	paramSessionID = "session_id"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// WHEP
	r.Post("/{device_id}/whep", s.handleCreateSession)
	r.Delete("/{device_id}/whep/{session_id}", s.handleTerminateSession)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/devices", s.handleListDevices)
		r.Get("/status", s.handleStatus)
		r.Get("/events", s.handleEvents)

		if s.cfg.Player.Enabled {
			const prefix = "/api/v1/player"
			h := http.StripPrefix(prefix, player.Handler(s.cfg.Player.Dir))
			r.Get("/player", http.RedirectHandler(prefix+"/", http.StatusMovedPermanently).ServeHTTP)
			r.Get("/player/*", h.ServeHTTP)
		}

		r.With(s.requirePermission(auth.PermAuditRead)).
			Get("/sessions/audit", s.handleListAudit)

		r.Route("/admin", func(r chi.Router) {
			r.With(s.requirePermission(auth.PermRegistryWrite)).
				Post("/refresh", s.handleTriggerRefresh)
			r.With(s.requirePermission(auth.PermSystemAdmin)).
				Post("/shutdown", s.handleShutdown)
		})
	})

	return r
}
