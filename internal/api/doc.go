// Package api implements the HTTP REST API and WebSocket server.
//
// This package provides:
//   - Read-only REST endpoints over the device registry
//   - Bridge and process status
//   - Prometheus metrics at /metrics
//   - A WebSocket hub relaying registry events
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Endpoints
//
//	GET /api/v1/health           liveness
//	GET /api/v1/status           process, broker and bridge status
//	GET /api/v1/devices          devices ordered by address
//	GET /api/v1/devices/stats    registry statistics
//	GET /api/v1/devices/{rule}   lookup by address ("9") or NAME ("ID:<hex>")
//	GET /api/v1/ws               WebSocket
//
// # WebSocket
//
// Clients subscribe to device.source_changed and device.list_changed:
//
//	{"type": "subscribe", "id": "1", "payload": {"channels": ["device.source_changed"]}}
//
// # Graceful Degradation
//
// The server runs without a broker or bridge; status reports them absent
// and the device endpoints serve whatever the registry holds.
package api
