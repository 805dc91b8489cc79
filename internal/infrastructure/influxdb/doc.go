// Package influxdb mirrors numeric meter readings into InfluxDB v2.
//
// The mirror is optional and write-only: the primary store remains the
// source of truth for GET /api/readings. Each accepted numeric reading
// becomes one point in measurement meter_readings, tagged with device_id
// (and unit when present), with a single float field value at the
// reading's own timestamp.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	broadcaster.SetMirror(client)
package influxdb
