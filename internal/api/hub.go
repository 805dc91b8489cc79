package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/afmeter-core/internal/device"
	"github.com/nerrad567/afmeter-core/internal/infrastructure/config"
	"github.com/nerrad567/afmeter-core/internal/infrastructure/logging"
	"github.com/nerrad567/afmeter-core/internal/realtime"
)

const defaultSendBufferSize = 256

// Hub fans realtime events out to WebSocket clients. A client whose send
// buffer is full misses the event; senders never wait.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	// mu guards clients, rooms and every client's rooms set.
	mu      sync.RWMutex
	clients map[*WSClient]struct{}
	rooms   map[string]map[*WSClient]struct{}
}

var _ realtime.Publisher = (*Hub)(nil)

// WSClient is one upgraded connection. It is done once removed from the
// hub or the hub shuts down; its send channel is never closed.
type WSClient struct {
	id    device.ConnID
	conn  *websocket.Conn
	send  chan []byte
	done  chan struct{}
	once  sync.Once
	rooms map[string]struct{}
}

func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBufferSize
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
		rooms:   make(map[string]map[*WSClient]struct{}),
	}
}

// Run waits for ctx to end, then marks every client done so its write
// pump sends a close frame.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.rooms = make(map[string]map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.finish()
	}
}

func (h *Hub) newClient(conn *websocket.Conn) *WSClient {
	return &WSClient{
		id:    device.ConnID(uuid.NewString()),
		conn:  conn,
		send:  make(chan []byte, h.cfg.SendBuffer),
		done:  make(chan struct{}),
		rooms: make(map[string]struct{}),
	}
}

func (h *Hub) add(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "conn", c.id, "clients", n)
}

// remove drops c and its room memberships. Calling it again is a no-op.
func (h *Hub) remove(c *WSClient) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	for room := range c.rooms {
		h.dropMember(room, c)
	}
	clear(c.rooms)
	n := len(h.clients)
	h.mu.Unlock()

	c.finish()
	if present {
		h.logger.Debug("websocket client disconnected", "conn", c.id, "clients", n)
	}
}

// join adds c to room. Clients already removed are ignored.
func (h *Hub) join(c *WSClient, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	members := h.rooms[room]
	if members == nil {
		members = make(map[*WSClient]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leave(c *WSClient, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropMember(room, c)
	delete(c.rooms, room)
}

// dropMember must be called with mu held.
func (h *Hub) dropMember(room string, c *WSClient) {
	members := h.rooms[room]
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// BroadcastAll sends an event to every client.
func (h *Hub) BroadcastAll(event string, payload any) {
	data, ok := h.encodeEvent(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.deliver(event, data, h.clients)
}

// BroadcastRoom sends an event to the clients that joined room.
func (h *Hub) BroadcastRoom(room, event string, payload any) {
	data, ok := h.encodeEvent(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.deliver(event, data, h.rooms[room])
}

// deliver runs under mu.RLock; enqueue never blocks.
func (h *Hub) deliver(event string, data []byte, targets map[*WSClient]struct{}) {
	skipped := 0
	for c := range targets {
		if !c.enqueue(data) {
			skipped++
		}
	}
	if skipped > 0 {
		h.logger.Debug("websocket event skipped for slow clients", "event", event, "skipped", skipped)
	}
}

func (h *Hub) encodeEvent(event string, payload any) ([]byte, bool) {
	data, err := json.Marshal(newEvent(event, payload))
	if err != nil {
		h.logger.Error("encoding websocket event", "event", event, "error", err)
		return nil, false
	}
	return data, true
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomCount returns how many rooms have at least one member.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// enqueue reports whether data was buffered for c.
func (c *WSClient) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *WSClient) finish() {
	c.once.Do(func() { close(c.done) })
}

func newEvent(event string, payload any) WSMessage {
	return WSMessage{
		Type:      WSTypeEvent,
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	}
}
