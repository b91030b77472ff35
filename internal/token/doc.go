// Package token persists the upstream service's OAuth2 credentials.
//
// The upstream client refreshes its access token on its own; every time a
// new token comes back, PersistingSource writes it to a Store so that a
// restart picks up where the last run left off. Two stores exist:
//
//   - FileStore: a JSON file, rewritten atomically with mode 0600
//   - SQLiteStore: one row in the upstream_tokens table
package token
