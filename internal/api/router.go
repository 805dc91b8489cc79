package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(
		requestID,
		s.accessLog,
		s.recoverJSON,
		newCORSPolicy(s.cfg.CORS).handler,
		middleware.RequestSize(maxBodyBytes),
	)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/readings", func(r chi.Router) {
			r.Get("/", s.handleListReadings)
			r.Post("/", s.handleCreateReadings)
			r.Get("/{device_id}", s.handleListDeviceReadings)
		})

		r.Get("/devices", s.handleListDevices)

		r.Get("/settings", s.handleGetSettings)
		r.Post("/settings", s.handleUpdateSettings)

		r.Post("/proxy", s.handleProxy)

		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			writeNotFound(w, "not found", "no such API endpoint")
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed", "method not allowed")
		})
	})

	r.Get(s.wsCfg.Path, s.handleWebSocket)

	if s.dashboard != nil {
		r.Handle("/*", s.dashboard)
	}

	return r
}
