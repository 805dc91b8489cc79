package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/afmeter-core/internal/reading"
	"github.com/nerrad567/afmeter-core/internal/realtime"
)

// IngestResponse is returned by POST /api/readings.
type IngestResponse struct {
	OK    bool `json:"ok"`
	Added int  `json:"added"`
}

// handleListReadings returns every stored reading.
func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	s.listReadings(w, r, "")
}

// handleListDeviceReadings returns readings whose device_id matches exactly.
func (s *Server) handleListDeviceReadings(w http.ResponseWriter, r *http.Request) {
	s.listReadings(w, r, chi.URLParam(r, "device_id"))
}

func (s *Server) listReadings(w http.ResponseWriter, r *http.Request, deviceID string) {
	readings, err := s.store.ListReadings(r.Context(), deviceID)
	if err != nil {
		s.logger.Error("listing readings failed", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to read readings")
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

// handleCreateReadings ingests a single reading or an array of readings.
// Invalid items are dropped; the response reports how many were added.
func (s *Server) handleCreateReadings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "body too large", err.Error())
			return
		}
		writeBadRequest(w, "missing body", err.Error())
		return
	}

	items, err := reading.DecodeBatch(body)
	if err != nil {
		writeBadRequest(w, "missing body", "body must be a reading object or an array of readings")
		return
	}

	added, err := s.broadcaster.Ingest(r.Context(), items, realtime.Source{Origin: realtime.SourceHTTP})
	if err != nil {
		s.logger.Error("ingesting readings failed", "error", err)
		writeInternalError(w, "failed to store readings")
		return
	}

	writeJSON(w, http.StatusOK, IngestResponse{OK: true, Added: added})
}
