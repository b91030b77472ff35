// Package auth guards the gateway's admin API with signed bearer tokens.
//
// The WHEP endpoints are unauthenticated, as WHEP players expect. The
// admin endpoints (refresh, shutdown) require an HS256 JWT carrying a role
// whose permissions include the operation. Tokens are minted offline with
// `whepgw token`; there are no user accounts or refresh tokens.
package auth
