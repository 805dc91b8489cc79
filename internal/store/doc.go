// Package store persists meter readings and the dashboard settings record.
//
// Two backends implement Store:
//
//   - SQLiteStore (default): readings and settings tables managed by the
//     embedded migrations. Appends and settings merges are single transactions.
//   - FileStore: readings.json and settings.json under a data directory,
//     each rewritten atomically on every write. A missing, empty or corrupt
//     file reads as an empty collection; any other read failure is returned
//     and nothing is written.
//
// Both backends serialise writes per collection with a mutex. Validation
// happens upstream in package reading; the store only receives readings that
// were already accepted.
package store
