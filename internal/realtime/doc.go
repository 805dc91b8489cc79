// Package realtime turns connection lifecycle, ingestion and settings
// changes into push events.
//
// The Broadcaster owns the only path that mutates the device registry and
// the only path that appends readings. Every connection moves through
//
//	Connected ──RegisterDevice──▶ Registered ──Disconnect──▶ Disconnected
//	    └───────────────Disconnect──────────────────────────────▲
//
// Disconnected is terminal; later events for that handle are ignored.
// RegisterDevice and Disconnect run under one coordinator lock so the
// devices_update snapshots are published in mutation order.
//
// Delivery goes through a Publisher, implemented by the WebSocket hub.
// Publishers must not block: a slow observer loses messages rather than
// stalling ingestion.
package realtime
