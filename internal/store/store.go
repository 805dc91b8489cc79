package store

import (
	"context"
	"fmt"

	"github.com/nerrad567/afmeter-core/internal/infrastructure/database"
	"github.com/nerrad567/afmeter-core/internal/reading"
)

// Backend names accepted by New.
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// Store is the durable home of readings and settings.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// AppendReadings stores already-validated readings in order and returns
	// how many were added. Appends are all-or-nothing.
	AppendReadings(ctx context.Context, items []reading.Reading) (int, error)

	// ListReadings returns readings in acceptance order. An empty deviceID
	// returns every reading; otherwise the match is exact.
	ListReadings(ctx context.Context, deviceID string) ([]reading.Reading, error)

	// CountReadings returns the total number of stored readings.
	CountReadings(ctx context.Context) (int, error)

	// GetSettings returns the current settings record.
	GetSettings(ctx context.Context) (reading.Settings, error)

	// UpdateSettings shallow-merges partial into the record and returns the
	// merged result.
	UpdateSettings(ctx context.Context, partial reading.Settings) (reading.Settings, error)

	// EnsureDefaultSettings writes each default key that is not yet present.
	EnsureDefaultSettings(ctx context.Context, defaults reading.Settings) error

	// HealthCheck reports whether the backend is usable.
	HealthCheck(ctx context.Context) error

	Close() error
}

// Logger defines the logging interface used by the stores.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options selects and configures a backend.
type Options struct {
	// Backend is BackendSQLite or BackendJSON. Empty means BackendSQLite.
	Backend string

	// DataDir is the FileStore directory.
	DataDir string

	// Database configures the SQLite connection.
	Database database.Config

	// Logger receives warnings about unreadable files. Optional.
	Logger Logger
}

// New opens the backend named by opts.Backend.
func New(ctx context.Context, opts Options) (Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	switch opts.Backend {
	case "", BackendSQLite:
		return OpenSQLite(ctx, opts.Database)
	case BackendJSON:
		fs, err := OpenFile(opts.DataDir)
		if err != nil {
			return nil, err
		}
		fs.SetLogger(logger)
		return fs, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
