package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/nerrad567/afmeter-core/internal/infrastructure/config"
)

// maxBodyBytes caps request bodies; readings batches stay well below it.
const maxBodyBytes = 1 << 20

const requestIDHeader = "X-Request-ID"

// requestID echoes the client's X-Request-ID or mints a UUID, and stores it
// under chi's key so middleware.GetReqID finds it.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), middleware.RequestIDKey, id)))
	})
}

// accessLog writes one entry per request. /api/health logs at debug.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		switch {
		case status == 0 && isUpgrade(r):
			status = http.StatusSwitchingProtocols
		case status == 0:
			status = http.StatusOK
		}

		log := s.logger.Info
		if r.URL.Path == "/api/health" {
			log = s.logger.Debug
		}
		log("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// recoverJSON turns a handler panic into a JSON 500. http.ErrAbortHandler
// is re-raised so the server drops the connection as usual.
func (s *Server) recoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
				panic(rec)
			}
			s.logger.Error("handler panic",
				"panic", rec,
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", middleware.GetReqID(r.Context()),
			)
			writeInternalError(w, "internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// corsPolicy holds the CORS headers, joined once at startup.
type corsPolicy struct {
	anyOrigin bool
	origins   map[string]bool
	methods   string
	headers   string
}

// newCORSPolicy builds the policy. No configured origins allows any
// origin, which suits a dashboard served from another dev port.
func newCORSPolicy(cfg config.CORSConfig) *corsPolicy {
	p := &corsPolicy{
		anyOrigin: len(cfg.AllowedOrigins) == 0,
		origins:   make(map[string]bool, len(cfg.AllowedOrigins)),
		methods:   "GET, POST, OPTIONS",
		headers:   "Content-Type, " + requestIDHeader,
	}
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			p.anyOrigin = true
		}
		p.origins[o] = true
	}
	if len(cfg.AllowedMethods) > 0 {
		p.methods = strings.Join(cfg.AllowedMethods, ", ")
	}
	if len(cfg.AllowedHeaders) > 0 {
		p.headers = strings.Join(cfg.AllowedHeaders, ", ")
	}
	return p
}

func (p *corsPolicy) allows(origin string) bool {
	return p.anyOrigin || p.origins[origin]
}

// handler sets the CORS headers for allowed origins and answers every
// preflight with 204.
func (p *corsPolicy) handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && p.allows(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", p.methods)
			h.Set("Access-Control-Allow-Headers", p.headers)
			h.Set("Access-Control-Max-Age", "86400")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
