// Package lifecycle binds background runners to the HTTP server's
// start and close hooks.
//
// The server owns an ordered list of Hooks. Start runs them in order once
// the listeners are bound; Close runs Stop in reverse order after the HTTP
// server has drained. A Binder is the Hook for a long-running function such
// as the refresh supervisor: Start launches it with its own cancellable
// context and returns immediately; Stop cancels that context and waits,
// bounded by the caller's deadline, for the runner to confirm it exited.
package lifecycle
