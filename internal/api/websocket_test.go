package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/afmeter-core/internal/device"
	"github.com/nerrad567/afmeter-core/internal/infrastructure/config"
	"github.com/nerrad567/afmeter-core/internal/infrastructure/logging"
	"github.com/nerrad567/afmeter-core/internal/realtime"
)

// ─── Hub Unit Tests ────────────────────────────────────────────────

func testHub() *Hub {
	return NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, logging.Discard())
}

// mockClient adds a connectionless client to h and joins rooms.
func mockClient(h *Hub, rooms ...string) *WSClient {
	c := h.newClient(nil)
	h.add(c)
	for _, r := range rooms {
		h.join(c, r)
	}
	return c
}

func recv(t *testing.T, c *WSClient) WSMessage {
	t.Helper()
	select {
	case data := <-c.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a message")
		return WSMessage{}
	}
}

func TestHub_BroadcastAll(t *testing.T) {
	hub := testHub()
	a, b := mockClient(hub), mockClient(hub)

	hub.BroadcastAll(realtime.EventNewReadings, []int{1})

	for _, c := range []*WSClient{a, b} {
		if msg := recv(t, c); msg.Type != WSTypeEvent || msg.Event != realtime.EventNewReadings {
			t.Errorf("msg = %+v, want new_readings event", msg)
		}
	}
}

func TestHub_BroadcastRoomOnlyMembers(t *testing.T) {
	hub := testHub()
	member := mockClient(hub, realtime.DeviceRoom("m1"))
	other := mockClient(hub, realtime.DeviceRoom("m2"))

	hub.BroadcastRoom(realtime.DeviceRoom("m1"), realtime.EventDeviceReadings, nil)

	recv(t, member)
	if len(other.send) != 0 {
		t.Error("non-member received room message")
	}
	if got := hub.RoomCount(); got != 2 {
		t.Errorf("RoomCount() = %d, want 2", got)
	}
}

func TestHub_LeaveAndRemoveEmptyRooms(t *testing.T) {
	hub := testHub()
	room := realtime.DeviceRoom("m1")
	a := mockClient(hub, room, realtime.DeviceRoom("m2"))
	b := mockClient(hub, room)

	hub.leave(b, room)
	hub.BroadcastRoom(room, "x", nil)
	if len(b.send) != 0 {
		t.Error("client that left still got the room event")
	}
	recv(t, a)

	hub.remove(a)
	if got := hub.RoomCount(); got != 0 {
		t.Errorf("RoomCount() after last member left = %d, want 0", got)
	}

	// A removed client cannot rejoin.
	hub.join(a, room)
	if got := hub.RoomCount(); got != 0 {
		t.Errorf("RoomCount() after join by removed client = %d, want 0", got)
	}
}

func TestHub_SlowClientDoesNotBlock(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{SendBuffer: 1}, logging.Discard())
	c := mockClient(hub)

	done := make(chan struct{})
	go func() {
		for range 10 {
			hub.BroadcastAll("x", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full client buffer")
	}
	if len(c.send) != 1 {
		t.Errorf("buffered = %d, want 1", len(c.send))
	}
}

func TestHub_RemoveTwiceIsSafe(t *testing.T) {
	hub := testHub()
	c := mockClient(hub)

	hub.remove(c)
	hub.remove(c)
	hub.BroadcastAll("x", nil)

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
	if c.enqueue([]byte("late")) {
		t.Error("enqueue on a removed client should report false")
	}
}

func TestHub_RunFinishesClientsOnShutdown(t *testing.T) {
	hub := testHub()
	c := mockClient(hub, realtime.DeviceRoom("m1"))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	select {
	case <-c.done:
	default:
		t.Error("client not finished on shutdown")
	}
	if hub.ClientCount() != 0 || hub.RoomCount() != 0 {
		t.Errorf("clients=%d rooms=%d after shutdown", hub.ClientCount(), hub.RoomCount())
	}
}

func TestNewKeepalive_Defaults(t *testing.T) {
	k := newKeepalive(config.WebSocketConfig{})
	if k.ping != 30*time.Second || k.wait != 10*time.Second {
		t.Errorf("keepalive = %+v, want 30s/10s", k)
	}
	k = newKeepalive(config.WebSocketConfig{PingInterval: 5, PongTimeout: 2})
	if k.ping != 5*time.Second || k.wait != 2*time.Second {
		t.Errorf("keepalive = %+v, want 5s/2s", k)
	}
}

// ─── End-to-end WebSocket Tests ────────────────────────────────────

type wsPeer struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server) *wsPeer {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &wsPeer{t: t, conn: conn}
}

func (p *wsPeer) send(msg map[string]any) {
	p.t.Helper()
	if err := p.conn.WriteJSON(msg); err != nil {
		p.t.Fatalf("write: %v", err)
	}
}

// next reads until a message matching want arrives.
func (p *wsPeer) next(want func(WSMessage) bool) WSMessage {
	p.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		p.conn.SetReadDeadline(deadline) //nolint:errcheck // test deadline
		var raw json.RawMessage
		if err := p.conn.ReadJSON(&raw); err != nil {
			p.t.Fatalf("read: %v", err)
		}
		var msg WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			p.t.Fatalf("unmarshal: %v", err)
		}
		msg.Payload = raw
		if want(msg) {
			return msg
		}
	}
}

func isEvent(name string) func(WSMessage) bool {
	return func(m WSMessage) bool { return m.Type == WSTypeEvent && m.Event == name }
}

func isReply(id string) func(WSMessage) bool {
	return func(m WSMessage) bool { return m.ID == id }
}

// envelopePayload extracts the payload field from a raw envelope.
func envelopePayload[T any](t *testing.T, msg WSMessage) T {
	t.Helper()
	var env struct {
		Payload T `json:"payload"`
	}
	if err := json.Unmarshal(msg.Payload.(json.RawMessage), &env); err != nil {
		t.Fatalf("payload: %v", err)
	}
	return env.Payload
}

func TestWebSocket_InitialState(t *testing.T) {
	env := testServer(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	peer := dial(t, srv)
	settings := peer.next(isEvent(realtime.EventSettingsUpdate))
	if got := envelopePayload[map[string]any](t, settings); got["alert_threshold"] != 30.0 {
		t.Errorf("initial settings = %v", got)
	}
	peer.next(isEvent(realtime.EventDevicesUpdate))
}

func TestWebSocket_ObserverReceivesHTTPIngest(t *testing.T) {
	env := testServer(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	observer := dial(t, srv)
	observer.next(isEvent(realtime.EventDevicesUpdate))

	resp, err := http.Post(srv.URL+"/api/readings", "application/json",
		strings.NewReader(`{"ts":42,"value":7,"device_id":"m9"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()

	msg := observer.next(isEvent(realtime.EventNewReadings))
	readings := envelopePayload[[]map[string]any](t, msg)
	if len(readings) != 1 || readings[0]["device_id"] != "m9" {
		t.Errorf("new_readings payload = %v", readings)
	}
}

func TestWebSocket_RoomReceivesOnlyItsDevice(t *testing.T) {
	env := testServer(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	watcher := dial(t, srv)
	watcher.send(map[string]any{"type": WSTypeJoinDevice, "id": "j1", "payload": map[string]any{"device_id": "m1"}})
	watcher.next(isReply("j1"))

	meter := dial(t, srv)
	meter.send(map[string]any{"type": WSTypeSubmitReadings, "id": "s1", "payload": []map[string]any{{"ts": 1, "value": 1, "device_id": "m2"}}})
	meter.next(isReply("s1"))
	meter.send(map[string]any{"type": WSTypeSubmitReadings, "id": "s2", "payload": map[string]any{"ts": 2, "value": 2, "device_id": "m1"}})
	reply := meter.next(isReply("s2"))
	if got := envelopePayload[map[string]any](t, reply); got["added"] != 1.0 {
		t.Errorf("submit reply = %v, want added 1", got)
	}

	msg := watcher.next(isEvent(realtime.EventDeviceReadings))
	readings := envelopePayload[[]map[string]any](t, msg)
	if len(readings) != 1 || readings[0]["device_id"] != "m1" {
		t.Errorf("device_readings = %v, want only m1", readings)
	}
}

func TestWebSocket_RegisterAndDisconnect(t *testing.T) {
	env := testServer(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	observer := dial(t, srv)
	observer.next(isEvent(realtime.EventDevicesUpdate))

	meter := dial(t, srv)
	meter.send(map[string]any{"type": WSTypeRegisterDevice, "id": "r1", "payload": map[string]any{"device_id": "meter-7", "name": "Lab"}})
	meter.next(isReply("r1"))

	registered := observer.next(func(m WSMessage) bool {
		return isEvent(realtime.EventDevicesUpdate)(m) && len(envelopePayload[[]device.Device](t, m)) == 1
	})
	if devs := envelopePayload[[]device.Device](t, registered); devs[0].DeviceID != "meter-7" || devs[0].Name != "Lab" {
		t.Errorf("devices after register = %+v", devs)
	}

	meter.conn.Close()

	removed := observer.next(func(m WSMessage) bool {
		return isEvent(realtime.EventDevicesUpdate)(m) && len(envelopePayload[[]device.Device](t, m)) == 0
	})
	if removed.Event != realtime.EventDevicesUpdate {
		t.Errorf("event = %q", removed.Event)
	}
	if env.registry.Count() != 0 {
		t.Errorf("registry count = %d, want 0", env.registry.Count())
	}
}

func TestWebSocket_PingAndErrors(t *testing.T) {
	env := testServer(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	peer := dial(t, srv)

	peer.send(map[string]any{"type": WSTypePing, "id": "p1"})
	if msg := peer.next(isReply("p1")); msg.Type != WSTypePong {
		t.Errorf("type = %q, want pong", msg.Type)
	}

	peer.send(map[string]any{"type": "bogus", "id": "b1"})
	if msg := peer.next(isReply("b1")); msg.Type != WSTypeError {
		t.Errorf("type = %q, want error", msg.Type)
	}

	peer.send(map[string]any{"type": WSTypeJoinDevice, "id": "j1", "payload": map[string]any{}})
	if msg := peer.next(isReply("j1")); msg.Type != WSTypeError {
		t.Errorf("join without device_id: type = %q, want error", msg.Type)
	}

	peer.send(map[string]any{"type": WSTypeSubmitReadings, "id": "s1", "payload": "nope"})
	if msg := peer.next(isReply("s1")); msg.Type != WSTypeError {
		t.Errorf("bad submit: type = %q, want error", msg.Type)
	}
}
