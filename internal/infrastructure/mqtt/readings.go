package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/afmeter-core/internal/reading"
	"github.com/nerrad567/afmeter-core/internal/realtime"
)

// ingestTimeout bounds store work for one MQTT message.
const ingestTimeout = 10 * time.Second

// Ingester accepts raw reading items. realtime.Broadcaster implements it.
type Ingester interface {
	Ingest(ctx context.Context, items []json.RawMessage, src realtime.Source) (int, error)
}

// ReadingsHandler returns a MessageHandler that feeds payloads published on
// readings topics into ing. The topic's last segment is the fallback
// device_id. Handler errors are logged by the client wrapper.
func ReadingsHandler(ctx context.Context, topics Topics, ing Ingester) MessageHandler {
	return func(topic string, payload []byte) error {
		deviceID, ok := topics.DeviceIDFromTopic(topic)
		if !ok {
			return fmt.Errorf("unexpected readings topic %q", topic)
		}

		items, err := reading.DecodeBatch(payload)
		if err != nil {
			return fmt.Errorf("decoding readings from %s: %w", deviceID, err)
		}

		ictx, cancel := context.WithTimeout(ctx, ingestTimeout)
		defer cancel()

		if _, err := ing.Ingest(ictx, items, realtime.Source{
			Origin:   realtime.SourceMQTT,
			DeviceID: deviceID,
		}); err != nil {
			return fmt.Errorf("ingesting readings from %s: %w", deviceID, err)
		}
		return nil
	}
}

// SubscribeReadings subscribes to every device's readings topic.
func (c *Client) SubscribeReadings(ctx context.Context, ing Ingester) error {
	return c.Subscribe(c.topics.AllReadings(), byte(c.cfg.QoS), ReadingsHandler(ctx, c.topics, ing))
}
