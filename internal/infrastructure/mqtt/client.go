package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/afmeter-core/internal/infrastructure/config"
)

// Logger is satisfied by logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MessageHandler receives one message with wildcards in topic expanded.
// A returned error is logged, never sent back to the broker.
type MessageHandler func(topic string, payload []byte) error

// Client is a paho client that remembers its subscriptions and keeps a
// retained online/offline status for the service. Safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	subMu         sync.RWMutex
	subscriptions map[string]subscription

	mu        sync.RWMutex
	connected bool
	logger    Logger
}

// Connect dials the broker and blocks until the first connect succeeds or
// times out. Later drops are retried by paho in the background.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:           cfg,
		topics:        Topics{Prefix: cfg.TopicPrefix},
		subscriptions: make(map[string]subscription),
		logger:        noopLogger{},
	}

	opts := newClientOptions(cfg, c.topics).
		SetOnConnectHandler(func(pahomqtt.Client) { c.onConnect() }).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.onConnectionLost(err) }).
		SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
			c.log().Warn("MQTT reconnecting", "broker", brokerURL(cfg.Broker))
		})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: no connack within %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// onConnect runs on a paho goroutine and may lag the token.
	c.setConnected(true)
	return c, nil
}

func (c *Client) onConnect() {
	c.setConnected(true)
	c.resubscribe()
	c.publishStatus(statusOnline, "")
	c.log().Info("MQTT connected",
		"broker", brokerURL(c.cfg.Broker),
		"subscriptions", c.SubscriptionCount(),
	)
}

func (c *Client) onConnectionLost(err error) {
	c.setConnected(false)
	c.log().Warn("MQTT connection lost", "error", err)
}

// Close replaces the retained status with a graceful offline and
// disconnects. Safe on a zero Client.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		s := newStatus(c.cfg.Broker.ClientID, statusOffline, reasonShutdown)
		if err := c.Publish(c.topics.SystemStatus(), s.encode(), byte(c.cfg.QoS), true); err != nil {
			c.log().Warn("publishing offline status failed", "error", err)
		}
	}

	c.client.Disconnect(quiesceMillis)
	c.setConnected(false)
	return nil
}

// HealthCheck returns ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether both our state and paho agree the link is up.
func (c *Client) IsConnected() bool {
	if c == nil || c.client == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// Topics returns the topic builder for the configured prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

// SetLogger sets the logger for connection events and handler failures.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.logger == nil {
		return noopLogger{}
	}
	return c.logger
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// wrapHandler adapts h to paho, logging returned errors and recovering
// panics so one bad payload cannot kill paho's router goroutine.
func (c *Client) wrapHandler(h MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.log().Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
			}
		}()

		if err := h(msg.Topic(), msg.Payload()); err != nil {
			c.log().Warn("MQTT message rejected", "topic", msg.Topic(), "error", err)
		}
	}
}
