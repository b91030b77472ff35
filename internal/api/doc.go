// Package api implements the HTTP front of the WHEP gateway.
//
// This package provides:
//   - WHEP endpoints: POST /{device_id}/whep and DELETE /{device_id}/whep/{session_id}
//   - A JSON admin API under /api/v1 (health, devices, status, audit trail)
//   - JWT-protected operator actions (on-demand refresh, shutdown)
//   - A WebSocket hub streaming gateway events to connected clients
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The server sits between WHEP players and the upstream device-control
// service. A POST resolves the device in the in-memory registry, forwards
// the (codec-rewritten) offer through device.Client and returns the answer.
// Background work owned by the server (the refresh supervisor binder, the
// session monitor task group) is passed in as lifecycle hooks: they start
// with the server and are stopped, in reverse order, when it closes.
//
// # Errors
//
// WHEP routes answer with short text/plain bodies; upstream failure detail
// only goes to the log. The admin API uses the JSON Error envelope.
//
// # Security
//
// Admin routes require a bearer token signed with security.jwt.secret.
// When no secret is configured they answer 503.
package api
