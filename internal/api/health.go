package api

import (
	"net/http"
	"time"
)

// HealthResponse is the liveness payload.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	Time    int64  `json:"time"`
	Version string `json:"version,omitempty"`
}

// handleHealth reports liveness. It does not touch the store.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		OK:      true,
		Time:    time.Now().UnixMilli(),
		Version: s.version,
	})
}
