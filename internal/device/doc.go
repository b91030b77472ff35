// Package device provides the Device Registry for the WHEP gateway.
//
// The registry is the gateway's only view of which cameras exist. It is a
// cached copy of the upstream device list, replaced wholesale by the refresh
// supervisor and read by every WHEP request.
//
// # Architecture
//
//	┌──────────────────────┐  Replace()  ┌──────────────────────┐
//	│  refresh.Supervisor  │────────────▶│      Registry        │
//	│  (ListDevices loop)  │             │ • []Descriptor       │
//	└──────────────────────┘             │ • sync.RWMutex       │
//	           │                         └──────────────────────┘
//	           │ ListDevices()                      │ Find()
//	           ▼                                    ▼
//	┌──────────────────────┐             ┌──────────────────────┐
//	│    device.Client     │◀────────────│   WHEP handlers      │
//	│ (upstream bridge)    │  streams    │   (internal/api)     │
//	└──────────────────────┘             └──────────────────────┘
//
// # Key Types
//
//   - Descriptor: a camera's public ID plus the opaque upstream handle
//   - Client: the device-control collaborator (list, stream, close, exists)
//   - Registry: the mutex-protected, replace-all collection
//
// # Thread Safety
//
// Readers always observe either the collection before or after a Replace,
// never a mixture. Callers must not hold registry state across Client calls;
// Find and Snapshot return copies so no lock is held afterwards.
package device
