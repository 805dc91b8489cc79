package mqtt

import "errors"

// Broker errors. Wrapped errors keep the paho cause; match with errors.Is.
var (
	// ErrNotConnected means the broker link is down.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrConnectionFailed means the first connect did not succeed.
	ErrConnectionFailed = errors.New("mqtt: connect failed")

	// ErrPublishFailed covers rejected, oversized and unacknowledged publishes.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed covers rejected and unacknowledged subscriptions.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS means a QoS above 2 was requested.
	ErrInvalidQoS = errors.New("mqtt: qos must be 0, 1 or 2")

	// ErrInvalidTopic means the topic string was empty.
	ErrInvalidTopic = errors.New("mqtt: empty topic")
)
