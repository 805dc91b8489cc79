package api

import (
	"io"
	"net/http"

	"github.com/nerrad567/afmeter-core/internal/reading"
)

// SettingsResponse is returned by POST /api/settings.
type SettingsResponse struct {
	OK       bool             `json:"ok"`
	Settings reading.Settings `json:"settings"`
}

// handleGetSettings returns the settings record.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.GetSettings(r.Context())
	if err != nil {
		s.logger.Error("reading settings failed", "error", err)
		writeInternalError(w, "failed to read settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handleUpdateSettings merges a partial object into the settings record and
// pushes the result to every observer.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "invalid body", err.Error())
		return
	}

	partial, err := reading.DecodeSettings(body)
	if err != nil {
		writeBadRequest(w, "invalid settings", "body must be a JSON object")
		return
	}

	merged, err := s.broadcaster.UpdateSettings(r.Context(), partial)
	if err != nil {
		s.logger.Error("updating settings failed", "error", err)
		writeInternalError(w, "failed to update settings")
		return
	}

	writeJSON(w, http.StatusOK, SettingsResponse{OK: true, Settings: merged})
}
