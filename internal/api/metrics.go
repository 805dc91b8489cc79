package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/afmeter-core/internal/proxy"
	"github.com/nerrad567/afmeter-core/internal/realtime"
	"github.com/nerrad567/afmeter-core/internal/store"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	MQTT          BackendMetrics   `json:"mqtt"`
	InfluxDB      BackendMetrics   `json:"influxdb"`
	Devices       DeviceMetrics    `json:"devices"`
	Store         StoreMetrics     `json:"store"`
	Ingest        realtime.Stats   `json:"ingest"`
	Proxy         proxy.Stats      `json:"proxy"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
	ActiveRooms      int `json:"active_rooms"`
}

// BackendMetrics describes an optional external connection.
type BackendMetrics struct {
	Enabled       bool `json:"enabled"`
	Connected     bool `json:"connected"`
	Subscriptions *int `json:"subscriptions,omitempty"`
}

// DeviceMetrics contains device registry statistics.
type DeviceMetrics struct {
	Connected int `json:"connected"`
}

// StoreMetrics contains persistence statistics.
type StoreMetrics struct {
	Healthy  bool   `json:"healthy"`
	Readings int    `json:"readings"`
	Error    string `json:"error,omitempty"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`

	SchemaVersion     string `json:"schema_version"`
	PendingMigrations int    `json:"pending_migrations"`
	SchemaError       string `json:"schema_error,omitempty"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			ActiveRooms:      s.hub.RoomCount(),
		},
		MQTT:     backendMetrics(s.mqtt),
		InfluxDB: backendMetrics(s.influx),
		Devices:  DeviceMetrics{Connected: s.registry.Count()},
		Ingest:   s.broadcaster.Stats(),
		Proxy:    s.proxy.Stats(),
	}

	if err := s.store.HealthCheck(r.Context()); err != nil {
		metrics.Store.Error = err.Error()
	} else {
		metrics.Store.Healthy = true
	}
	if n, err := s.store.CountReadings(r.Context()); err == nil {
		metrics.Store.Readings = n
	}

	if sq, ok := s.store.(*store.SQLiteStore); ok {
		metrics.Database = databaseMetrics(r, sq)
	}

	writeJSON(w, http.StatusOK, metrics)
}

func databaseMetrics(r *http.Request, sq *store.SQLiteStore) *DatabaseMetrics {
	db := sq.DB()
	pool := db.Stats()
	m := &DatabaseMetrics{
		OpenConnections: pool.OpenConnections,
		InUse:           pool.InUse,
		Idle:            pool.Idle,
		WaitCount:       pool.WaitCount,
	}

	schema, err := db.SchemaStatus(r.Context())
	if err != nil {
		m.SchemaError = err.Error()
		return m
	}
	m.SchemaVersion = schema.Current()
	m.PendingMigrations = len(schema.Pending)
	return m
}

// subscriptionCounter is implemented by the MQTT client.
type subscriptionCounter interface {
	SubscriptionCount() int
}

func backendMetrics(c ConnectionStatus) BackendMetrics {
	if c == nil {
		return BackendMetrics{}
	}
	m := BackendMetrics{Enabled: true, Connected: c.IsConnected()}
	if sc, ok := c.(subscriptionCounter); ok {
		n := sc.SubscriptionCount()
		m.Subscriptions = &n
	}
	return m
}
