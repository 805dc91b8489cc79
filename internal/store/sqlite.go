package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/afmeter-core/internal/infrastructure/database"
	"github.com/nerrad567/afmeter-core/internal/reading"
	_ "github.com/nerrad567/afmeter-core/migrations" // registers embedded migrations
)

// SQLiteStore implements Store on the readings and settings tables.
type SQLiteStore struct {
	db *database.DB

	readingsMu sync.Mutex
	settingsMu sync.Mutex
	closed     atomic.Bool
}

// OpenSQLite opens the database at cfg.Path and applies pending migrations.
// The returned store owns the connection.
func OpenSQLite(ctx context.Context, cfg database.Config) (*SQLiteStore, error) {
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s, err := NewSQLite(ctx, db)
	if err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}
	return s, nil
}

// NewSQLite wraps an open database, applying pending migrations. Close
// closes db.
func NewSQLite(ctx context.Context, db *database.DB) (*SQLiteStore, error) {
	if err := db.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrating store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// AppendReadings inserts items in one transaction.
func (s *SQLiteStore) AppendReadings(ctx context.Context, items []reading.Reading) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	if len(items) == 0 {
		return 0, nil
	}

	s.readingsMu.Lock()
	defer s.readingsMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO readings (ts, device_id, value_json, unit) VALUES (?, ?, ?, ?)")
	if err != nil {
		return 0, fmt.Errorf("preparing reading insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range items {
		valueJSON, err := json.Marshal(r.Value)
		if err != nil {
			return 0, fmt.Errorf("marshalling reading value: %w", err)
		}
		unit := sql.NullString{String: r.Unit, Valid: r.Unit != ""}

		if _, err := stmt.ExecContext(ctx, r.Timestamp, r.DeviceID, string(valueJSON), unit); err != nil {
			return 0, fmt.Errorf("inserting reading: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing readings: %w", err)
	}
	return len(items), nil
}

// ListReadings returns readings ordered by insertion.
func (s *SQLiteStore) ListReadings(ctx context.Context, deviceID string) ([]reading.Reading, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	query := "SELECT ts, device_id, value_json, unit FROM readings ORDER BY seq"
	var args []any
	if deviceID != "" {
		query = "SELECT ts, device_id, value_json, unit FROM readings WHERE device_id = ? ORDER BY seq"
		args = append(args, deviceID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	out := make([]reading.Reading, 0)
	for rows.Next() {
		var (
			r         reading.Reading
			valueJSON string
			unit      sql.NullString
		)
		if err := rows.Scan(&r.Timestamp, &r.DeviceID, &valueJSON, &unit); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		if err := json.Unmarshal([]byte(valueJSON), &r.Value); err != nil {
			return nil, fmt.Errorf("unmarshalling reading value: %w", err)
		}
		r.Unit = unit.String
		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}
	return out, nil
}

// CountReadings returns the number of stored readings.
func (s *SQLiteStore) CountReadings(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM readings").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting readings: %w", err)
	}
	return n, nil
}

// GetSettings assembles the settings record from its rows.
func (s *SQLiteStore) GetSettings(ctx context.Context) (reading.Settings, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return loadSettings(ctx, s.db)
}

// UpdateSettings upserts every key of partial and returns the merged record.
func (s *SQLiteStore) UpdateSettings(ctx context.Context, partial reading.Settings) (reading.Settings, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	const upsert = `INSERT INTO settings (key, value_json, updated_at)
		VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		ON CONFLICT(key) DO UPDATE SET
			value_json = excluded.value_json,
			updated_at = excluded.updated_at`
	if err := writeSettings(ctx, tx, upsert, partial); err != nil {
		return nil, err
	}

	merged, err := loadSettings(ctx, tx)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing settings: %w", err)
	}
	return merged, nil
}

// EnsureDefaultSettings inserts default keys without overwriting existing ones.
func (s *SQLiteStore) EnsureDefaultSettings(ctx context.Context, defaults reading.Settings) error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	const insert = "INSERT INTO settings (key, value_json) VALUES (?, ?) ON CONFLICT(key) DO NOTHING"
	if err := writeSettings(ctx, tx, insert, defaults); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing default settings: %w", err)
	}
	return nil
}

// HealthCheck pings the database.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.HealthCheck(ctx)
}

// Close closes the underlying database. Safe to call more than once.
func (s *SQLiteStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// DB exposes the connection for metrics.
func (s *SQLiteStore) DB() *database.DB {
	return s.db
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadSettings(ctx context.Context, q querier) (reading.Settings, error) {
	rows, err := q.QueryContext(ctx, "SELECT key, value_json FROM settings")
	if err != nil {
		return nil, fmt.Errorf("querying settings: %w", err)
	}
	defer rows.Close()

	settings := reading.Settings{}
	for rows.Next() {
		var key, valueJSON string
		if err := rows.Scan(&key, &valueJSON); err != nil {
			return nil, fmt.Errorf("scanning setting: %w", err)
		}

		var value any
		if err := json.Unmarshal([]byte(valueJSON), &value); err != nil {
			return nil, fmt.Errorf("unmarshalling setting %q: %w", key, err)
		}
		settings[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating settings: %w", err)
	}
	return settings, nil
}

func writeSettings(ctx context.Context, tx *sql.Tx, query string, values reading.Settings) error {
	for key, value := range values {
		valueJSON, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshalling setting %q: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx, query, key, string(valueJSON)); err != nil {
			return fmt.Errorf("writing setting %q: %w", key, err)
		}
	}
	return nil
}
