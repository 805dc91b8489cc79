package device

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/afmeter-core/internal/reading"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry holds at most one Device per device id.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device
	logger  Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]*Device),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Register inserts or replaces the entry for deviceID.
//
// An empty deviceID falls back to the connection id, and an empty name to
// DefaultName. A replaced entry loses its last reading.
func (r *Registry) Register(deviceID, name string, conn ConnID, now time.Time) Device {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		deviceID = string(conn)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName(deviceID)
	}

	d := &Device{
		DeviceID:    deviceID,
		Name:        name,
		ConnectedAt: now.UTC(),
		conn:        conn,
	}

	r.mu.Lock()
	prev, replaced := r.devices[deviceID]
	r.devices[deviceID] = d
	r.mu.Unlock()

	if replaced && prev.conn != conn {
		r.logger.Info("device re-registered on new connection",
			"device_id", deviceID, "previous_conn", prev.conn, "conn", conn)
	} else {
		r.logger.Debug("device registered", "device_id", deviceID, "conn", conn)
	}

	return *d.DeepCopy()
}

// RemoveByConnection drops every entry registered by conn and returns how
// many were removed.
func (r *Registry) RemoveByConnection(conn ConnID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, d := range r.devices {
		if d.conn == conn {
			delete(r.devices, id)
			removed++
		}
	}

	if removed > 0 {
		r.logger.Debug("devices removed", "conn", conn, "count", removed)
	}
	return removed
}

// RecordReading sets last_reading for a registered device. Readings for
// unregistered devices are ignored.
func (r *Registry) RecordReading(rd reading.Reading) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[rd.DeviceID]
	if !ok {
		return
	}
	cp := rd
	d.LastReading = &cp
}

// Get returns a copy of the entry for deviceID.
func (r *Registry) Get(deviceID string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[deviceID]
	if !ok {
		return Device{}, false
	}
	return *d.DeepCopy(), true
}

// Snapshot returns copies of all entries ordered by connection time, then id.
func (r *Registry) Snapshot() []Device {
	r.mu.RLock()
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, *d.DeepCopy())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ConnectedAt.Before(out[j].ConnectedAt)
		}
		return out[i].DeviceID < out[j].DeviceID
	})
	return out
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
