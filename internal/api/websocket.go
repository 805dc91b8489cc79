package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/afmeter-core/internal/reading"
	"github.com/nerrad567/afmeter-core/internal/realtime"
)

// WebSocket message types.
const (
	WSTypeRegisterDevice = "register_device"
	WSTypeSubmitReadings = "submit_readings"
	WSTypeJoinDevice     = "join_device"
	WSTypeLeaveDevice    = "leave_device"
	WSTypePing           = "ping"
	WSTypePong           = "pong"
	WSTypeEvent          = "event"
	WSTypeResponse       = "response"
	WSTypeError          = "error"
)

// wsIngestTimeout bounds the store work behind one submit_readings.
const wsIngestTimeout = 10 * time.Second

// WSMessage is every outbound frame. Replies echo the request ID; events
// carry Event instead.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Event     string `json:"event,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type WSRegisterPayload struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
}

// WSRoomPayload names the device for join_device and leave_device.
type WSRoomPayload struct {
	DeviceID string `json:"device_id"`
}

// Origins are not checked here; the dashboard and meters connect from
// arbitrary LAN addresses.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWebSocket upgrades, queues the settings and device list, then
// starts the pumps. The read pump's exit disconnects the handle.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := s.hub.newClient(conn)
	s.hub.add(c)
	s.broadcaster.Connect(c.id)

	if settings, devices, err := s.broadcaster.InitialState(s.ctx); err != nil {
		s.logger.Warn("loading initial websocket state failed", "conn", c.id, "error", err)
	} else {
		c.event(realtime.EventSettingsUpdate, settings)
		c.event(realtime.EventDevicesUpdate, devices)
	}

	k := newKeepalive(s.wsCfg)
	go c.writePump(k)
	go c.readPump(k, s.wsCfg.MaxMessageSize, s.hub.logger,
		func(data []byte) { s.handleWSMessage(c, data) },
		func() {
			s.hub.remove(c)
			s.broadcaster.Disconnect(c.id)
		})
}

// handleWSMessage answers one inbound frame with a reply carrying its ID.
func (s *Server) handleWSMessage(c *WSClient, data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.replyError("", "invalid JSON message")
		return
	}

	replyType := WSTypeResponse
	var (
		payload any
		err     error
	)
	switch req.Type {
	case WSTypeRegisterDevice:
		payload, err = s.wsRegisterDevice(c, req.Payload)
	case WSTypeSubmitReadings:
		payload, err = s.wsSubmitReadings(c, req.Payload)
	case WSTypeJoinDevice:
		payload, err = s.wsRoom(c, req.Payload, true)
	case WSTypeLeaveDevice:
		payload, err = s.wsRoom(c, req.Payload, false)
	case WSTypePing:
		replyType = WSTypePong
	default:
		err = errors.New("unknown message type: " + req.Type)
	}

	if err != nil {
		c.replyError(req.ID, err.Error())
		return
	}
	c.reply(replyType, req.ID, payload)
}

func (s *Server) wsRegisterDevice(c *WSClient, raw json.RawMessage) (any, error) {
	var p WSRegisterPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, errors.New("invalid register_device payload")
		}
	}
	d, err := s.broadcaster.RegisterDevice(c.id, p.DeviceID, p.Name)
	if err != nil {
		return nil, err
	}
	return map[string]any{"device": d}, nil
}

func (s *Server) wsSubmitReadings(c *WSClient, raw json.RawMessage) (any, error) {
	items, err := reading.DecodeBatch(raw)
	if err != nil {
		return nil, errors.New("payload must be a reading or an array of readings")
	}

	ctx, cancel := context.WithTimeout(s.ctx, wsIngestTimeout)
	defer cancel()

	added, err := s.broadcaster.Ingest(ctx, items, realtime.Source{Origin: realtime.SourceWebSocket})
	if err != nil {
		s.logger.Error("websocket ingestion failed", "conn", c.id, "error", err)
		return nil, errors.New("failed to store readings")
	}
	return map[string]any{"ok": true, "added": added}, nil
}

// wsRoom joins or leaves the room of one device.
func (s *Server) wsRoom(c *WSClient, raw json.RawMessage, join bool) (any, error) {
	var p WSRoomPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.DeviceID == "" {
		return nil, errors.New("device_id is required")
	}

	room := realtime.DeviceRoom(p.DeviceID)
	if join {
		s.hub.join(c, room)
		return map[string]any{"joined": p.DeviceID}, nil
	}
	s.hub.leave(c, room)
	return map[string]any{"left": p.DeviceID}, nil
}
