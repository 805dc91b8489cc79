package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/afmeter-core/internal/infrastructure/config"
	"github.com/nerrad567/afmeter-core/internal/realtime"
)

const testBrokerAddr = "127.0.0.1:1883"

// testConfig returns a valid MQTT configuration for testing.
func testConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
		TopicPrefix: "afmeter-test",
	}
}

// requireBroker skips the test when no broker listens on testBrokerAddr.
func requireBroker(t *testing.T) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", testBrokerAddr, 200*time.Millisecond)
	if err != nil {
		t.Skipf("MQTT broker not available at %s: %v", testBrokerAddr, err)
	}
	conn.Close()
}

func connect(t *testing.T, clientID string) *Client {
	t.Helper()
	requireBroker(t)
	client, err := Connect(testConfig(clientID))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// =============================================================================
// Topics Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	custom := Topics{Prefix: "site-a/"}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"DeviceReadings default", Topics{}.DeviceReadings("meter-1"), "afmeter/readings/meter-1"},
		{"AllReadings default", Topics{}.AllReadings(), "afmeter/readings/+"},
		{"SystemStatus default", Topics{}.SystemStatus(), "afmeter/system/status"},
		{"DeviceReadings custom", custom.DeviceReadings("m"), "site-a/readings/m"},
		{"SystemStatus custom", custom.SystemStatus(), "site-a/system/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestDeviceIDFromTopic(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		topic  string
		wantID string
		wantOK bool
	}{
		{"afmeter/readings/meter-1", "meter-1", true},
		{"afmeter/readings/", "", false},
		{"afmeter/readings/a/b", "", false},
		{"afmeter/system/status", "", false},
		{"other/readings/meter-1", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			id, ok := topics.DeviceIDFromTopic(tt.topic)
			if id != tt.wantID || ok != tt.wantOK {
				t.Errorf("DeviceIDFromTopic(%q) = (%q, %v), want (%q, %v)", tt.topic, id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

// =============================================================================
// ReadingsHandler Tests
// =============================================================================

type fakeIngester struct {
	mu    sync.Mutex
	calls []ingestCall
	err   error
}

type ingestCall struct {
	items int
	src   realtime.Source
}

func (f *fakeIngester) Ingest(_ context.Context, items []json.RawMessage, src realtime.Source) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ingestCall{items: len(items), src: src})
	if f.err != nil {
		return 0, f.err
	}
	return len(items), nil
}

func TestReadingsHandler(t *testing.T) {
	ing := &fakeIngester{}
	handler := ReadingsHandler(context.Background(), Topics{}, ing)

	if err := handler("afmeter/readings/meter-9", []byte(`[{"ts":1,"value":1},{"ts":2,"value":2}]`)); err != nil {
		t.Fatalf("handler() error = %v", err)
	}
	if err := handler("afmeter/readings/meter-9", []byte(`{"ts":3,"value":3}`)); err != nil {
		t.Fatalf("handler() error = %v", err)
	}

	if len(ing.calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(ing.calls))
	}
	want := realtime.Source{Origin: realtime.SourceMQTT, DeviceID: "meter-9"}
	if ing.calls[0].src != want || ing.calls[0].items != 2 || ing.calls[1].items != 1 {
		t.Errorf("calls = %+v", ing.calls)
	}
}

func TestReadingsHandlerErrors(t *testing.T) {
	ing := &fakeIngester{}
	handler := ReadingsHandler(context.Background(), Topics{}, ing)

	if err := handler("afmeter/other/x", []byte(`{"value":1}`)); err == nil {
		t.Error("expected error for topic outside readings tree")
	}
	if err := handler("afmeter/readings/x", []byte(`42`)); err == nil {
		t.Error("expected error for non-object payload")
	}
	if len(ing.calls) != 0 {
		t.Errorf("ingester called %d times, want 0", len(ing.calls))
	}

	ing.err = errors.New("disk full")
	if err := handler("afmeter/readings/x", []byte(`{"value":1}`)); !errors.Is(err, ing.err) {
		t.Errorf("error = %v, want wrapped ingester error", err)
	}
}

// =============================================================================
// Handler Wrapper Tests
// =============================================================================

type recordingLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *recordingLogger) Info(string, ...any)         {}
func (l *recordingLogger) Error(msg string, _ ...any) { l.record(msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.record(msg) }

func (l *recordingLogger) record(msg string) {
	l.mu.Lock()
	l.msgs = append(l.msgs, msg)
	l.mu.Unlock()
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestWrapHandlerRecoversAndLogs(t *testing.T) {
	c := &Client{}
	logger := &recordingLogger{}
	c.SetLogger(logger)

	c.wrapHandler(func(string, []byte) error { panic("boom") })(nil, fakeMessage{topic: "t"})
	c.wrapHandler(func(string, []byte) error { return errors.New("bad") })(nil, fakeMessage{topic: "t"})

	if len(logger.msgs) != 2 {
		t.Fatalf("logged %d messages, want 2: %v", len(logger.msgs), logger.msgs)
	}
	if !strings.Contains(logger.msgs[0], "panic") {
		t.Errorf("first log = %q, want panic message", logger.msgs[0])
	}
}

func TestStatusPayloads(t *testing.T) {
	tests := []struct {
		state, reason string
	}{
		{statusOnline, ""},
		{statusOffline, reasonShutdown},
		{statusOffline, reasonLost},
	}
	for _, tt := range tests {
		t.Run(tt.state+"/"+tt.reason, func(t *testing.T) {
			var v map[string]string
			if err := json.Unmarshal(newStatus(`core"1`, tt.state, tt.reason).encode(), &v); err != nil {
				t.Fatalf("payload is not JSON: %v", err)
			}
			if v["status"] != tt.state || v["client_id"] != `core"1` || v["reason"] != tt.reason {
				t.Errorf("payload = %v", v)
			}
			if _, err := time.Parse(time.RFC3339, v["timestamp"]); err != nil {
				t.Errorf("timestamp %q: %v", v["timestamp"], err)
			}
		})
	}
}

func TestClientOptions(t *testing.T) {
	cfg := testConfig("core-opts")
	cfg.Broker.TLS = true
	cfg.Auth.Username = "meter"
	cfg.Auth.Password = "secret"

	opts := newClientOptions(cfg, Topics{Prefix: "site"})

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("servers = %v, want ssl://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "core-opts" || opts.Username != "meter" || opts.Password != "secret" {
		t.Errorf("identity = %q/%q/%q", opts.ClientID, opts.Username, opts.Password)
	}
	if !opts.CleanSession || !opts.AutoReconnect {
		t.Error("want clean session with auto reconnect")
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion == 0 {
		t.Error("TLS config not applied")
	}
	if !opts.WillEnabled || opts.WillTopic != "site/system/status" || !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will = %v %q retained=%v qos=%d", opts.WillEnabled, opts.WillTopic, opts.WillRetained, opts.WillQos)
	}
	if !strings.Contains(string(opts.WillPayload), reasonLost) {
		t.Errorf("will payload = %s", opts.WillPayload)
	}
}

func TestSubscriptionCount_NilAndEmpty(t *testing.T) {
	var nilClient *Client
	if nilClient.SubscriptionCount() != 0 {
		t.Error("nil client should report 0 subscriptions")
	}
	c := &Client{subscriptions: map[string]subscription{}}
	if c.SubscriptionCount() != 0 {
		t.Error("new client should report 0 subscriptions")
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}
	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

// =============================================================================
// Broker Tests
// =============================================================================

func TestConnectInvalidBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the connect timeout")
	}
	cfg := testConfig("afmeter-test-invalid")
	cfg.Broker.Port = 19999

	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnectAndClose(t *testing.T) {
	requireBroker(t)
	client, err := Connect(testConfig("afmeter-test-close"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if !errors.Is(client.HealthCheck(context.Background()), ErrNotConnected) {
		t.Error("HealthCheck() after Close should return ErrNotConnected")
	}
	if !errors.Is(client.Publish("x", nil, 1, false), ErrNotConnected) {
		t.Error("Publish() after Close should return ErrNotConnected")
	}
}

func TestPublishValidation(t *testing.T) {
	client := connect(t, "afmeter-test-validate")

	if err := client.Publish("", []byte("x"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := client.Publish("x", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("qos 3 error = %v, want ErrInvalidQoS", err)
	}
	if err := client.Publish("x", make([]byte, maxPayloadBytes+1), 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversize error = %v, want ErrPublishFailed", err)
	}
	if err := client.Subscribe("x", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v, want ErrSubscribeFailed", err)
	}
}

func TestSubscribeTracksTopics(t *testing.T) {
	client := connect(t, "afmeter-test-sub")
	topic := client.Topics().DeviceReadings("sub-test")

	if err := client.Subscribe(topic, 1, func(string, []byte) error { return nil }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := client.Subscribe(topic, 1, func(string, []byte) error { return nil }); err != nil {
		t.Fatalf("second Subscribe() error = %v", err)
	}
	if n := client.SubscriptionCount(); n != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", n)
	}
}

func TestSubscribeReadingsRoundtrip(t *testing.T) {
	sub := connect(t, "afmeter-test-readings-sub")
	pub := connect(t, "afmeter-test-readings-pub")

	ing := &fakeIngester{}
	if err := sub.SubscribeReadings(context.Background(), ing); err != nil {
		t.Fatalf("SubscribeReadings() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	for i := range 3 {
		topic := pub.Topics().DeviceReadings(fmt.Sprintf("meter-%d", i))
		if err := pub.Publish(topic, []byte(`{"ts":1,"value":1}`), 1, false); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		ing.mu.Lock()
		n := len(ing.calls)
		ing.mu.Unlock()
		if n == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("received %d messages, want 3", n)
		case <-time.After(20 * time.Millisecond):
		}
	}

	ing.mu.Lock()
	defer ing.mu.Unlock()
	seen := map[string]bool{}
	for _, c := range ing.calls {
		seen[c.src.DeviceID] = true
	}
	for i := range 3 {
		if id := fmt.Sprintf("meter-%d", i); !seen[id] {
			t.Errorf("no ingest for %s", id)
		}
	}
}
