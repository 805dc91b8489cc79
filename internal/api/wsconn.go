package api

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/afmeter-core/internal/infrastructure/config"
	"github.com/nerrad567/afmeter-core/internal/infrastructure/logging"
)

// keepalive turns the websocket config into deadlines. Zero values fall
// back to 30s pings and a 10s grace period.
type keepalive struct {
	ping time.Duration
	wait time.Duration
}

func newKeepalive(cfg config.WebSocketConfig) keepalive {
	k := keepalive{
		ping: time.Duration(cfg.PingInterval) * time.Second,
		wait: time.Duration(cfg.PongTimeout) * time.Second,
	}
	if k.ping <= 0 {
		k.ping = 30 * time.Second
	}
	if k.wait <= 0 {
		k.wait = 10 * time.Second
	}
	return k
}

// readDeadline allows one missed ping interval plus the grace period.
func (k keepalive) readDeadline() time.Time {
	return time.Now().Add(k.ping + k.wait)
}

func (k keepalive) writeDeadline() time.Time {
	return time.Now().Add(k.wait)
}

// readPump hands each inbound frame to handle until the connection fails.
// Any frame, not only a pong, extends the read deadline because some
// browsers never answer protocol pings.
func (c *WSClient) readPump(k keepalive, limit int, log *logging.Logger, handle func([]byte), onClose func()) {
	defer onClose()

	if limit > 0 {
		c.conn.SetReadLimit(int64(limit))
	}
	extend := func(string) error { return c.conn.SetReadDeadline(k.readDeadline()) }
	extend("") //nolint:errcheck // a dead conn fails the first read anyway
	c.conn.SetPongHandler(extend)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read failed", "conn", c.id, "error", err)
			}
			return
		}
		extend("") //nolint:errcheck // as above
		handle(data)
	}
}

// writePump drains send and pings on an interval. It owns the conn and
// closes it on exit; a finished client gets a close frame first.
func (c *WSClient) writePump(k keepalive) {
	ticker := time.NewTicker(k.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(k.writeDeadline()) //nolint:errcheck // surfaced by the write
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data := <-c.send:
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "")) //nolint:errcheck // best effort
			return
		}
	}
}

// reply sends a direct answer to this client only.
func (c *WSClient) reply(msgType, id string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err == nil {
		c.enqueue(data)
	}
}

func (c *WSClient) replyError(id, message string) {
	c.reply(WSTypeError, id, map[string]string{"message": message})
}

// event sends a single event to this client only.
func (c *WSClient) event(name string, payload any) {
	if data, err := json.Marshal(newEvent(name, payload)); err == nil {
		c.enqueue(data)
	}
}
