package mqtt

import "fmt"

// Publish sends payload to topic and waits for the acknowledgement qos
// requires. Payloads above 1 MiB are refused before reaching the broker.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case len(payload) > maxPayloadBytes:
		return fmt.Errorf("%w: %d byte payload exceeds %d", ErrPublishFailed, len(payload), maxPayloadBytes)
	case !c.IsConnected():
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(ackTimeout) {
		return fmt.Errorf("%w: no ack within %v", ErrPublishFailed, ackTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// publishStatus replaces the retained status without waiting for the ack.
// It runs inside paho's connect callback, which must not block.
func (c *Client) publishStatus(state, reason string) {
	s := newStatus(c.cfg.Broker.ClientID, state, reason)
	c.client.Publish(c.topics.SystemStatus(), byte(c.cfg.QoS), true, s.encode())
}
