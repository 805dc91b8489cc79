package api

import "net/http"

// handleListDevices returns the connected device snapshot.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Snapshot())
}
