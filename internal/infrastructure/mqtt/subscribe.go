package mqtt

import "fmt"

// subscription is remembered so it can be replayed after a reconnect.
type subscription struct {
	qos     byte
	handler MessageHandler
}

// Subscribe registers handler for topic, which may contain + and #
// wildcards. The subscription is replayed on every reconnect.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	case !c.IsConnected():
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{qos: qos, handler: handler}
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	var err error
	if token.WaitTimeout(ackTimeout) {
		err = token.Error()
	} else {
		err = fmt.Errorf("no ack within %v", ackTimeout)
	}
	if err != nil {
		c.subMu.Lock()
		delete(c.subscriptions, topic)
		c.subMu.Unlock()
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}

// SubscriptionCount reports how many topics are replayed on reconnect.
func (c *Client) SubscriptionCount() int {
	if c == nil {
		return 0
	}
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// resubscribe replays every remembered subscription. Errors surface through
// the next connection-lost callback, so tokens are not awaited here.
func (c *Client) resubscribe() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for topic, sub := range c.subscriptions {
		c.client.Subscribe(topic, sub.qos, c.wrapHandler(sub.handler))
	}
}
