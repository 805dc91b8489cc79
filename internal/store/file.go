package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/afmeter-core/internal/reading"
)

// File names inside the FileStore data directory.
const (
	ReadingsFile = "readings.json"
	SettingsFile = "settings.json"
)

const (
	dataDirPermissions  = 0750
	dataFilePermissions = 0600
)

// FileStore implements Store on two JSON documents in a directory.
//
// Every write reads the whole collection, modifies it in memory and
// replaces the file atomically. This matches the small data volumes a
// single site produces; it is not meant for long retention.
type FileStore struct {
	dir    string
	logger Logger

	readingsMu sync.Mutex
	settingsMu sync.Mutex
	closed     atomic.Bool
}

// OpenFile creates dir if needed and returns a FileStore rooted there.
func OpenFile(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(dir, dataDirPermissions); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &FileStore{dir: dir, logger: noopLogger{}}, nil
}

// SetLogger sets the logger used for unreadable-file warnings.
func (s *FileStore) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// Dir returns the data directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// AppendReadings appends items to readings.json.
func (s *FileStore) AppendReadings(_ context.Context, items []reading.Reading) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	if len(items) == 0 {
		return 0, nil
	}

	s.readingsMu.Lock()
	defer s.readingsMu.Unlock()

	all, err := s.readReadings()
	if err != nil {
		return 0, err
	}
	all = append(all, items...)
	if err := s.writeJSON(ReadingsFile, all); err != nil {
		return 0, err
	}
	return len(items), nil
}

// ListReadings returns readings from readings.json, optionally filtered.
func (s *FileStore) ListReadings(_ context.Context, deviceID string) ([]reading.Reading, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	s.readingsMu.Lock()
	all, err := s.readReadings()
	s.readingsMu.Unlock()
	if err != nil {
		return nil, err
	}

	if deviceID == "" {
		return all, nil
	}

	out := make([]reading.Reading, 0)
	for _, r := range all {
		if r.DeviceID == deviceID {
			out = append(out, r)
		}
	}
	return out, nil
}

// CountReadings returns the length of readings.json.
func (s *FileStore) CountReadings(_ context.Context) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	s.readingsMu.Lock()
	defer s.readingsMu.Unlock()
	all, err := s.readReadings()
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// GetSettings returns settings.json.
func (s *FileStore) GetSettings(_ context.Context) (reading.Settings, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	return s.readSettings()
}

// UpdateSettings merges partial into settings.json.
func (s *FileStore) UpdateSettings(_ context.Context, partial reading.Settings) (reading.Settings, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	current, err := s.readSettings()
	if err != nil {
		return nil, err
	}
	merged := current.Merge(partial)
	if err := s.writeJSON(SettingsFile, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// EnsureDefaultSettings fills in missing default keys. Existing values win.
func (s *FileStore) EnsureDefaultSettings(_ context.Context, defaults reading.Settings) error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	current, err := s.readSettings()
	if err != nil {
		return err
	}
	missing := false
	for key := range defaults {
		if _, ok := current[key]; !ok {
			missing = true
			break
		}
	}
	if !missing {
		return nil
	}

	return s.writeJSON(SettingsFile, defaults.Merge(current))
}

// HealthCheck verifies the data directory is still a directory.
func (s *FileStore) HealthCheck(_ context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}

	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("file store health check failed: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("file store health check failed: %s is not a directory", s.dir)
	}
	return nil
}

// Close marks the store closed. There are no open handles between calls.
func (s *FileStore) Close() error {
	s.closed.Store(true)
	return nil
}

// readReadings loads readings.json. Missing, empty and corrupt files read as
// empty; any other read failure is returned. Caller must hold readingsMu.
func (s *FileStore) readReadings() ([]reading.Reading, error) {
	out := make([]reading.Reading, 0)
	data, err := s.readFile(ReadingsFile)
	if err != nil || data == nil {
		return out, err
	}

	if err := json.Unmarshal(data, &out); err != nil {
		s.logger.Warn("readings file unreadable, treating as empty",
			"path", filepath.Join(s.dir, ReadingsFile), "error", err)
		return make([]reading.Reading, 0), nil
	}
	return out, nil
}

// readSettings loads settings.json with the same leniency as readReadings.
// Caller must hold settingsMu.
func (s *FileStore) readSettings() (reading.Settings, error) {
	data, err := s.readFile(SettingsFile)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return reading.Settings{}, nil
	}

	var out reading.Settings
	if err := json.Unmarshal(data, &out); err != nil || out == nil {
		if err != nil {
			s.logger.Warn("settings file unreadable, treating as empty",
				"path", filepath.Join(s.dir, SettingsFile), "error", err)
		}
		return reading.Settings{}, nil
	}
	return out, nil
}

// readFile returns nil data for a missing or blank file.
func (s *FileStore) readFile(name string) ([]byte, error) {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return data, nil
}

// writeJSON replaces name with v's JSON encoding via temp file, fsync and rename.
func (s *FileStore) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", name, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck // Gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck // Write error takes precedence
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck // Sync error takes precedence
		return fmt.Errorf("syncing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Chmod(tmpPath, dataFilePermissions); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", name, err)
	}

	if err := os.Rename(tmpPath, filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("replacing %s: %w", name, err)
	}
	return nil
}
