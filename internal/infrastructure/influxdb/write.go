package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementMeterReadings is the measurement every reading is written to.
const MeasurementMeterReadings = "meter_readings"

// WriteMeterReading queues one numeric reading. device_id is always a tag;
// unit is tagged only when non-empty. The write is non-blocking and dropped
// silently once the client is closed.
func (c *Client) WriteMeterReading(deviceID, unit string, value float64, ts time.Time) {
	if c == nil {
		return
	}
	// Held across WritePoint so Close cannot shut the write API underneath us.
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return
	}
	c.writeAPI.WritePoint(meterPoint(deviceID, unit, value, ts))
}

func meterPoint(deviceID, unit string, value float64, ts time.Time) *write.Point {
	tags := map[string]string{"device_id": deviceID}
	if unit != "" {
		tags["unit"] = unit
	}
	return write.NewPoint(MeasurementMeterReadings, tags, map[string]any{"value": value}, ts)
}
