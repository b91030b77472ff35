// Package refresh keeps the device registry current.
//
// A Supervisor runs one loop for the lifetime of the server:
//
//	refresh ──ok──▶ wait update_interval ──▶ refresh
//	   │
//	   └─fail─▶ log + event ──▶ wait backoff_interval ──▶ refresh
//
// The first refresh happens as soon as Run is called. Retries are
// unbounded and the backoff is fixed. Cancellation of the run context is
// never treated as a failure: Run returns ctx.Err() at the next suspension
// point, whether that is the upstream call or a wait.
//
// Trigger cuts the current wait short, which the admin API and the MQTT
// command topic use for on-demand refreshes.
package refresh
