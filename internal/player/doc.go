// Package player serves a minimal browser WHEP client as an embedded asset.
//
// The page lists devices from GET /api/v1/devices, creates an
// RTCPeerConnection, POSTs its offer to /{device_id}/whep and plays the
// answer. Stopping the stream sends DELETE to the Location returned on
// creation. It exists for checking a camera end to end without a separate
// WHEP player.
//
// Cache-control headers are set to no-cache; the assets are small and
// change with the binary.
package player
