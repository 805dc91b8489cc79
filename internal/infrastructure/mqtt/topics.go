package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the root of every AF Meter topic.
const DefaultTopicPrefix = "afmeter"

// Topics builds AF Meter MQTT topics under a prefix.
//
//	topics := mqtt.Topics{Prefix: "afmeter"}
//	topics.DeviceReadings("meter-1") // "afmeter/readings/meter-1"
//
// The zero value uses DefaultTopicPrefix.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	p := strings.Trim(t.Prefix, "/")
	if p == "" {
		return DefaultTopicPrefix
	}
	return p
}

// DeviceReadings returns the topic a device publishes readings on.
//
// Example: afmeter/readings/meter-1
func (t Topics) DeviceReadings(deviceID string) string {
	return fmt.Sprintf("%s/readings/%s", t.prefix(), deviceID)
}

// AllReadings returns a pattern matching every device's readings topic.
//
// Pattern: afmeter/readings/+
func (t Topics) AllReadings() string {
	return fmt.Sprintf("%s/readings/+", t.prefix())
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: afmeter/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}

// DeviceIDFromTopic extracts the device id from a readings topic. It
// returns false for topics outside the readings tree.
func (t Topics) DeviceIDFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.prefix()+"/readings/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
