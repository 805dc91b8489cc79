package mqtt

import (
	"encoding/json"
	"time"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"

	reasonLost     = "unexpected_disconnect"
	reasonShutdown = "graceful_shutdown"
)

// status is the retained payload kept on {prefix}/system/status.
type status struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func newStatus(clientID, state, reason string) status {
	return status{
		Status:    state,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func (s status) encode() []byte {
	data, err := json.Marshal(s)
	if err != nil {
		// Only string fields; Marshal cannot fail.
		return []byte(`{"status":"` + s.Status + `"}`)
	}
	return data
}
