package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/afmeter-core/internal/infrastructure/config"
)

const (
	connectTimeout  = 10 * time.Second
	ackTimeout      = 5 * time.Second
	keepAlive       = 60 * time.Second
	quiesceMillis   = 1000
	maxQoS          = 2
	maxPayloadBytes = 1 << 20
)

// brokerURL renders host and port with tcp:// or ssl://.
func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// newClientOptions maps the mqtt config section onto paho options. Sessions
// are clean; the client re-subscribes itself after a reconnect.
func newClientOptions(cfg config.MQTTConfig, topics Topics) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	// The broker publishes this retained status if we vanish without Close.
	will := newStatus(cfg.Broker.ClientID, statusOffline, reasonLost)
	opts.SetBinaryWill(topics.SystemStatus(), will.encode(), 1, true)

	return opts
}
