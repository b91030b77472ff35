// Package logging provides structured logging for the WHEP gateway.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - -v / -vv verbosity mapping for the command line
//
// # Configuration
//
//	logging:
//	  level: "warn"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting gateway", "port", 8080)
//	logger.Component("refresh").Error("device refresh failed", "error", err)
//
// Tests use logging.Discard() or logging.NewWriter with a buffer.
//
// # Security
//
// Never log upstream access or refresh tokens, or SDP bodies at levels above debug.
package logging
