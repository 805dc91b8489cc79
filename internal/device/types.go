package device

import (
	"time"

	"github.com/nerrad567/afmeter-core/internal/reading"
)

// ConnID identifies one push connection. It is opaque to the registry.
type ConnID string

// nameIDPrefixLen is how much of the device id a generated name shows.
const nameIDPrefixLen = 8

// Device is a registry entry for a connected meter.
type Device struct {
	DeviceID    string    `json:"device_id"`
	Name        string    `json:"name"`
	ConnectedAt time.Time `json:"connected_at"`

	// LastReading is nil until a reading for this device is accepted.
	LastReading *reading.Reading `json:"last_reading"`

	conn ConnID
}

// Connection returns the handle that registered the device.
func (d Device) Connection() ConnID {
	return d.conn
}

// DeepCopy returns a copy that shares no pointers with d.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cp := *d
	if d.LastReading != nil {
		r := *d.LastReading
		cp.LastReading = &r
	}
	return &cp
}

// DefaultName derives a display name from the first runes of a device id.
func DefaultName(deviceID string) string {
	prefix := deviceID
	if r := []rune(deviceID); len(r) > nameIDPrefixLen {
		prefix = string(r[:nameIDPrefixLen])
	}
	return "Device " + prefix
}
