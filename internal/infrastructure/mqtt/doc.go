// Package mqtt connects AF Meter Core to an MQTT broker.
//
// Meters that cannot hold a WebSocket open publish readings to
// {prefix}/readings/{device_id}; the payload is one reading object or an
// array of them, and the topic supplies device_id for items without one.
// Accepted readings flow through the same broadcaster as HTTP ingestion.
//
// Core keeps a retained status on {prefix}/system/status: online on every
// connect, offline on a graceful Close, and an LWT offline status the
// broker publishes when the connection drops.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.SubscribeReadings(ctx, broadcaster)
package mqtt
