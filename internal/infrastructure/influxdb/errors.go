package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: disabled")

	// ErrConnectionFailed means the startup ping failed or reported unhealthy.
	ErrConnectionFailed = errors.New("influxdb: connect failed")

	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrWriteFailed wraps batch errors delivered to the SetOnError callback.
	ErrWriteFailed = errors.New("influxdb: batch write failed")
)
