// Package logging configures log/slog for AF Meter Core.
//
// Entries carry service and version fields. Components add their own with
// With:
//
//	log := logging.NewWithWriter(logging.Output(cfg.Logging, os.Stdout), cfg.Logging, version)
//	log.With("component", "broadcaster").Info("readings ingested", "added", 3)
//
// The logging section of config.yaml picks level (debug, info, warn,
// error), format (json or text) and output (stdout or stderr).
//
// Proxy targets are logged by host only; never log request bodies.
package logging
