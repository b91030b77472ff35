package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/whep-gateway/internal/device"
	"github.com/nerrad567/whep-gateway/internal/events"
	"github.com/nerrad567/whep-gateway/internal/taskgroup"
	"github.com/nerrad567/whep-gateway/internal/whep"
)

// handleCreateSession forwards a WHEP offer to the device and returns its answer.
//
// The offer is rewritten with the configured codec substitutions before the
// session id is read from it, so the id always refers to the offer the
// device actually receives. An unknown device is rejected before the
// device client is called.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, paramDeviceID)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeText(w, http.StatusRequestEntityTooLarge, msgOfferTooLarge)
			return
		}
		writeText(w, http.StatusBadRequest, msgEmptyOffer)
		return
	}
	if strings.TrimSpace(string(body)) == "" {
		writeText(w, http.StatusBadRequest, msgEmptyOffer)
		return
	}

	offer := s.rewriter.Rewrite(string(body))

	sessionID, err := whep.SessionID(offer)
	if err != nil {
		s.logger.Debug("rejecting offer", "device_id", deviceID, "error", err)
		writeText(w, http.StatusBadRequest, msgNoSessionID)
		return
	}

	d, err := s.registry.Find(deviceID)
	if err != nil {
		s.logger.Warn("offer for unknown device",
			"device_id", deviceID,
			"session_id", sessionID,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeText(w, http.StatusNotFound, msgUnknownDevice)
		return
	}

	start := time.Now()
	answer, err := s.client.GenerateStream(r.Context(), d, offer)
	if err != nil {
		s.logger.Error("generating stream failed",
			"device_id", d.ID,
			"session_id", sessionID,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeText(w, http.StatusInternalServerError, msgStartFailed)
		s.publishSession(r.Context(), events.SessionFailed, d.ID, sessionID, time.Since(start), err)
		return
	}

	w.Header().Set("Content-Type", whep.ContentTypeSDP)
	w.Header().Set("Location", sessionLocation(d.ID, sessionID))
	w.WriteHeader(http.StatusCreated)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	io.WriteString(w, answer)

	s.logger.Info("session created", "device_id", d.ID, "session_id", sessionID)
	s.publishSession(r.Context(), events.SessionCreated, d.ID, sessionID, time.Since(start), nil)

	if s.monitor {
		s.startMonitor(d, sessionID)
	}
}

// handleTerminateSession closes a session on the device.
// A session the device no longer knows is reported as a failure; the
// gateway keeps no record to tell "already closed" apart.
func (s *Server) handleTerminateSession(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, paramDeviceID)
	sessionID := chi.URLParam(r, paramSessionID)

	d, err := s.registry.Find(deviceID)
	if err != nil {
		s.logger.Warn("terminate for unknown device",
			"device_id", deviceID,
			"session_id", sessionID,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeText(w, http.StatusNotFound, msgUnknownDevice)
		return
	}

	if err := s.client.CloseStream(r.Context(), d, sessionID); err != nil {
		s.logger.Error("closing stream failed",
			"device_id", d.ID,
			"session_id", sessionID,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeText(w, http.StatusInternalServerError, msgTerminateFailed)
		return
	}

	w.WriteHeader(http.StatusNoContent)

	s.logger.Info("session terminated", "device_id", d.ID, "session_id", sessionID)
	s.publishSession(r.Context(), events.SessionTerminated, d.ID, sessionID, 0, nil)
}

// startMonitor registers a task that watches the session until the device
// drops it. A group that is draining or closed only costs the monitor.
func (s *Server) startMonitor(d device.Descriptor, sessionID string) {
	err := s.tasks.Add("monitor:"+d.ID+"/"+sessionID, func(ctx context.Context) error {
		return s.monitorSession(ctx, d, sessionID)
	})
	switch {
	case err == nil:
	case errors.Is(err, taskgroup.ErrSealed), errors.Is(err, taskgroup.ErrClosed):
		s.logger.Warn("session monitor not started", "device_id", d.ID, "session_id", sessionID, "error", err)
	default:
		s.logger.Error("session monitor not started", "device_id", d.ID, "session_id", sessionID, "error", err)
	}
}

// monitorSession polls the device until the session is gone or ctx is done.
// Poll errors are logged and retried on the next tick.
func (s *Server) monitorSession(ctx context.Context, d device.Descriptor, sessionID string) error {
	started := time.Now()
	ticker := time.NewTicker(s.monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		exists, err := s.client.SessionExists(ctx, d, sessionID)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Debug("session poll failed", "device_id", d.ID, "session_id", sessionID, "error", err)
			continue
		}
		if !exists {
			s.logger.Info("session ended", "device_id", d.ID, "session_id", sessionID)
			s.publishSession(ctx, events.SessionEnded, d.ID, sessionID, time.Since(started), nil)
			return nil
		}
	}
}

// publishSession emits a session event. The request context may already be
// cancelled by the time sinks run, so its values are kept but not its deadline.
func (s *Server) publishSession(ctx context.Context, t events.Type, deviceID, sessionID string, elapsed time.Duration, cause error) {
	e := events.New(t)
	e.DeviceID = deviceID
	e.SessionID = sessionID
	e.DurationMS = elapsed.Milliseconds()
	if cause != nil {
		e.Error = cause.Error()
	}
	s.events.Publish(context.WithoutCancel(ctx), e)
}

// sessionLocation is the resource URL returned in the Location header.
// Each segment is escaped so it routes back to the same device and session.
func sessionLocation(deviceID, sessionID string) string {
	return "/" + url.PathEscape(deviceID) + "/whep/" + url.PathEscape(sessionID)
}
