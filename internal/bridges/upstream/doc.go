// Package upstream implements device.Client against the camera vendor's
// REST device-control API.
//
// Endpoints (relative to the configured base URL):
//
//	GET    /devices                          → {"devices":[{"device_id","handle","name","kind"}]}
//	POST   /devices/{handle}/sessions        application/sdp offer → application/sdp answer
//	DELETE /devices/{handle}/sessions/{sid}  2xx on success
//	GET    /devices/{handle}/sessions/{sid}  200 = live, 404 = gone
//
// Requests are authenticated with OAuth2 bearer tokens. NewOAuthHTTPClient
// builds an *http.Client that refreshes the token when it expires and
// persists every refreshed token through a token.Store.
package upstream
