// Package device provides the Device Registry for AF Meter Core.
//
// The registry is the volatile catalogue of meter devices that currently
// hold a live push connection. It is not persisted: a restart starts with
// an empty registry and devices re-register when they reconnect.
//
// # Lifecycle
//
//	connection opens ──▶ Register(id, name, conn)   insert or replace by id
//	readings accepted ─▶ RecordReading(r)           updates last_reading
//	connection closes ─▶ RemoveByConnection(conn)   drops every entry on conn
//
// Register and RemoveByConnection are lifecycle mutators. Only the realtime
// broadcaster calls them, under its coordinator lock, so every device list
// it broadcasts reflects mutations in the order they happened.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Snapshot returns copies.
package device
