package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/afmeter-core/internal/device"
	"github.com/nerrad567/afmeter-core/internal/reading"
	"github.com/nerrad567/afmeter-core/internal/store"
)

// maxDisconnectedHandles bounds how many terminal handles are remembered.
const maxDisconnectedHandles = 4096

// Logger defines the logging interface used by the Broadcaster.
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

// Mirror receives numeric readings for time-series storage. Implementations
// must not block.
type Mirror interface {
	WriteMeterReading(deviceID, unit string, value float64, ts time.Time)
}

// Source describes where a batch came from.
type Source struct {
	// Origin is one of the Source* constants.
	Origin string

	// DeviceID is the fallback device id for items that carry none.
	DeviceID string
}

// Stats counts broadcaster activity since start.
type Stats struct {
	Batches          int64            `json:"batches"`
	ReadingsAccepted int64            `json:"readings_accepted"`
	ReadingsDropped  int64            `json:"readings_dropped"`
	BySource         map[string]int64 `json:"by_source"`
	Connections      int              `json:"connections"`
	Registrations    int64            `json:"registrations"`
	SettingsUpdates  int64            `json:"settings_updates"`
}

// Broadcaster coordinates ingestion, device lifecycle and settings pushes.
type Broadcaster struct {
	store    store.Store
	registry *device.Registry
	pub      Publisher
	mirror   Mirror
	logger   Logger
	now      func() time.Time

	// mu is the coordinator lock for lifecycle events and guards conns.
	mu     sync.Mutex
	conns  map[device.ConnID]ConnState
	closed []device.ConnID

	batches, accepted, dropped, registrations, settingsUpdates atomic.Int64

	sourceMu sync.Mutex
	bySource map[string]int64
}

// New creates a Broadcaster.
func New(st store.Store, registry *device.Registry, pub Publisher) *Broadcaster {
	return &Broadcaster{
		store:    st,
		registry: registry,
		pub:      pub,
		logger:   noopLogger{},
		now:      time.Now,
		conns:    make(map[device.ConnID]ConnState),
		bySource: make(map[string]int64),
	}
}

// SetLogger sets the logger.
func (b *Broadcaster) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	b.logger = logger
}

// SetMirror attaches a time-series mirror. nil detaches it.
func (b *Broadcaster) SetMirror(m Mirror) {
	b.mirror = m
}

// SetPublisher replaces the publisher. Used when the hub is created after
// the broadcaster.
func (b *Broadcaster) SetPublisher(pub Publisher) {
	b.pub = pub
}

// Connect records a new connection. It has no registry effect.
func (b *Broadcaster) Connect(conn device.ConnID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conns[conn] == StateDisconnected {
		return
	}
	b.conns[conn] = StateConnected
}

// State returns the lifecycle state of conn.
func (b *Broadcaster) State(conn device.ConnID) ConnState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conns[conn]
}

// RegisterDevice registers conn as deviceID and broadcasts the device list.
// A handle that never called Connect is treated as connected.
func (b *Broadcaster) RegisterDevice(conn device.ConnID, deviceID, name string) (device.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conns[conn] == StateDisconnected {
		return device.Device{}, ErrConnectionClosed
	}

	d := b.registry.Register(deviceID, name, conn, b.now())
	b.conns[conn] = StateRegistered
	b.registrations.Add(1)

	b.logger.Info("device registered", "device_id", d.DeviceID, "name", d.Name, "conn", conn)
	b.pub.BroadcastAll(EventDevicesUpdate, b.registry.Snapshot())
	return d, nil
}

// Disconnect removes conn's devices and always broadcasts the device list.
// Repeated calls for the same handle are ignored.
func (b *Broadcaster) Disconnect(conn device.ConnID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conns[conn] == StateDisconnected {
		return
	}

	removed := b.registry.RemoveByConnection(conn)
	b.markDisconnected(conn)

	if removed > 0 {
		b.logger.Info("device connection closed", "conn", conn, "devices_removed", removed)
	}
	b.pub.BroadcastAll(EventDevicesUpdate, b.registry.Snapshot())
}

// markDisconnected moves conn to the terminal state. Caller holds mu.
func (b *Broadcaster) markDisconnected(conn device.ConnID) {
	b.conns[conn] = StateDisconnected
	b.closed = append(b.closed, conn)
	if len(b.closed) > maxDisconnectedHandles {
		oldest := b.closed[0]
		b.closed = b.closed[1:]
		delete(b.conns, oldest)
	}
}

// Ingest validates items, stores the accepted subset and publishes it.
//
// Invalid items are dropped without error. When nothing is accepted the
// store is not touched, nothing is broadcast and (0, nil) is returned.
// A store failure is returned and nothing is broadcast.
func (b *Broadcaster) Ingest(ctx context.Context, items []json.RawMessage, src Source) (int, error) {
	accepted := reading.FilterValid(items, reading.Defaults{DeviceID: src.DeviceID})
	b.batches.Add(1)
	b.dropped.Add(int64(len(items) - len(accepted)))

	if len(accepted) == 0 {
		b.logger.Debug("batch had no valid readings", "source", src.Origin, "items", len(items))
		return 0, nil
	}

	added, err := b.store.AppendReadings(ctx, accepted)
	if err != nil {
		return 0, fmt.Errorf("storing readings: %w", err)
	}

	b.accepted.Add(int64(added))
	b.sourceMu.Lock()
	b.bySource[src.Origin] += int64(added)
	b.sourceMu.Unlock()

	for _, r := range accepted {
		b.registry.RecordReading(r)
		b.mirrorReading(r)
	}

	b.pub.BroadcastAll(EventNewReadings, accepted)
	b.pub.BroadcastRoom(DeviceRoom(accepted[0].DeviceID), EventDeviceReadings, accepted)

	b.logger.Debug("readings ingested",
		"source", src.Origin,
		"added", added,
		"dropped", len(items)-len(accepted),
		"device_id", accepted[0].DeviceID,
	)
	return added, nil
}

func (b *Broadcaster) mirrorReading(r reading.Reading) {
	if b.mirror == nil {
		return
	}
	v, ok := r.Value.Float64()
	if !ok {
		return
	}
	b.mirror.WriteMeterReading(r.DeviceID, r.Unit, v, time.UnixMilli(r.Timestamp))
}

// UpdateSettings merges partial into the stored settings and broadcasts
// the merged record.
func (b *Broadcaster) UpdateSettings(ctx context.Context, partial reading.Settings) (reading.Settings, error) {
	merged, err := b.store.UpdateSettings(ctx, partial)
	if err != nil {
		return nil, fmt.Errorf("updating settings: %w", err)
	}

	b.settingsUpdates.Add(1)
	b.logger.Info("settings updated", "keys", len(partial))
	b.pub.BroadcastAll(EventSettingsUpdate, merged)
	return merged, nil
}

// InitialState returns what a newly connected observer is sent: the
// current settings and device list.
func (b *Broadcaster) InitialState(ctx context.Context) (reading.Settings, []device.Device, error) {
	settings, err := b.store.GetSettings(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("loading settings: %w", err)
	}
	return settings, b.registry.Snapshot(), nil
}

// Stats returns a snapshot of activity counters.
func (b *Broadcaster) Stats() Stats {
	b.sourceMu.Lock()
	bySource := make(map[string]int64, len(b.bySource))
	for k, v := range b.bySource {
		bySource[k] = v
	}
	b.sourceMu.Unlock()

	b.mu.Lock()
	live := 0
	for _, st := range b.conns {
		if st == StateConnected || st == StateRegistered {
			live++
		}
	}
	b.mu.Unlock()

	return Stats{
		Batches:          b.batches.Load(),
		ReadingsAccepted: b.accepted.Load(),
		ReadingsDropped:  b.dropped.Load(),
		BySource:         bySource,
		Connections:      live,
		Registrations:    b.registrations.Load(),
		SettingsUpdates:  b.settingsUpdates.Load(),
	}
}
