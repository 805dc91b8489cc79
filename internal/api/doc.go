// Package api implements the HTTP REST API and WebSocket server for AF Meter Core.
//
// This package provides:
//   - REST endpoints for readings, devices, settings, health and metrics
//   - The guarded outbound proxy endpoint used by the dashboard
//   - WebSocket hub for real-time reading, settings and device-list pushes
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - Static dashboard serving with SPA fallback
//
// # Architecture
//
// Meters and dashboards reach the server over HTTP and WebSocket. Every
// state change goes through the realtime.Broadcaster, which stores it and
// publishes events back out through the Hub. The Hub itself only knows about
// connections and rooms; it implements realtime.Publisher.
//
// # Graceful Degradation
//
// MQTT and InfluxDB are optional. Without them the HTTP and WebSocket
// surfaces work unchanged; /api/metrics reports them as disconnected.
package api
