package realtime

// Event names pushed to observers.
const (
	EventNewReadings    = "new_readings"
	EventSettingsUpdate = "settings_update"
	EventDevicesUpdate  = "devices_update"
	EventDeviceReadings = "device_readings"
)

// Ingestion sources, used for logging and stats.
const (
	SourceHTTP      = "http"
	SourceWebSocket = "websocket"
	SourceMQTT      = "mqtt"
)

const devicePrefix = "device:"

// DeviceRoom returns the interest group name for a device id.
func DeviceRoom(deviceID string) string {
	return devicePrefix + deviceID
}

// Publisher delivers events to observers.
type Publisher interface {
	// BroadcastAll sends to every connected observer.
	BroadcastAll(event string, payload any)

	// BroadcastRoom sends to observers that joined room.
	BroadcastRoom(room, event string, payload any)
}

// ConnState is a connection's lifecycle position.
type ConnState int

const (
	StateUnknown ConnState = iota
	StateConnected
	StateRegistered
	StateDisconnected
)

// String returns the state name.
func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateRegistered:
		return "registered"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
