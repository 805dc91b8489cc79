package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/afmeter-core/internal/device"
	"github.com/nerrad567/afmeter-core/internal/infrastructure/config"
	"github.com/nerrad567/afmeter-core/internal/infrastructure/logging"
	"github.com/nerrad567/afmeter-core/internal/proxy"
	"github.com/nerrad567/afmeter-core/internal/realtime"
	"github.com/nerrad567/afmeter-core/internal/store"
)

// shutdownGrace bounds how long Close waits for in-flight requests.
const shutdownGrace = 10 * time.Second

// ConnectionStatus is implemented by optional backends shown in metrics.
type ConnectionStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Logger      *logging.Logger
	Hub         *Hub
	Broadcaster *realtime.Broadcaster
	Registry    *device.Registry
	Store       store.Store
	Proxy       *proxy.Gateway
	MQTT        ConnectionStatus // optional
	InfluxDB    ConnectionStatus // optional
	Dashboard   http.Handler     // optional; serves everything outside /api
	Version     string
}

// Server serves the REST API, the WebSocket endpoint and the dashboard.
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	hub         *Hub
	broadcaster *realtime.Broadcaster
	registry    *device.Registry
	store       store.Store
	proxy       *proxy.Gateway
	mqtt        ConnectionStatus
	influx      ConnectionStatus
	dashboard   http.Handler
	version     string
	startTime   time.Time

	// ctx outlives individual requests; WebSocket message handling uses it.
	ctx      context.Context
	cancel   context.CancelFunc
	server   *http.Server
	listener net.Listener
}

// New validates deps. Nothing listens until Start.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Hub == nil:
		return nil, fmt.Errorf("websocket hub is required")
	case deps.Broadcaster == nil:
		return nil, fmt.Errorf("broadcaster is required")
	case deps.Registry == nil:
		return nil, fmt.Errorf("device registry is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("store is required")
	case deps.Proxy == nil:
		return nil, fmt.Errorf("proxy gateway is required")
	}

	if deps.WS.Path == "" {
		deps.WS.Path = "/ws"
	}

	// Handlers run against Background until Start supplies the real context.
	return &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		logger:      deps.Logger,
		hub:         deps.Hub,
		broadcaster: deps.Broadcaster,
		registry:    deps.Registry,
		store:       deps.Store,
		proxy:       deps.Proxy,
		mqtt:        deps.MQTT,
		influx:      deps.InfluxDB,
		dashboard:   deps.Dashboard,
		version:     deps.Version,
		startTime:   time.Now(),
		ctx:         context.Background(),
		cancel:      func() {},
	}, nil
}

// Handler returns the router without a listener, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener, so a taken port fails here rather than in the
// background, then serves until Close. The hub stops when ctx ends.
func (s *Server) Start(ctx context.Context) error {
	if s.server != nil {
		return errors.New("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", addr, err)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadTimeout(),
		WriteTimeout:      s.cfg.Timeouts.WriteTimeout(),
		IdleTimeout:       s.cfg.Timeouts.IdleTimeout(),
	}
	go s.hub.Run(s.ctx)
	go s.serve()
	return nil
}

func (s *Server) serve() {
	tls := s.cfg.TLS
	s.logger.Info("API server listening", "address", s.Addr(), "tls", tls.Enabled)

	var err error
	if tls.Enabled {
		err = s.server.ServeTLS(s.listener, tls.CertFile, tls.KeyFile)
	} else {
		err = s.server.Serve(s.listener)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("API server stopped", "error", err)
	}
}

// Addr is the bound address, or "" before Start. With port 0 it reports
// the port the kernel picked.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close cancels the run context, which ends the hub and every WebSocket,
// then drains HTTP requests for up to shutdownGrace.
func (s *Server) Close() error {
	s.cancel()
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck fails until Start has bound the listener.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
