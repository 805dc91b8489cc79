package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nerrad567/afmeter-core/internal/egress"
)

const (
	// DefaultTimeout bounds a single upstream request.
	DefaultTimeout = 5 * time.Second

	// DefaultMaxBodyBytes caps the upstream body read into memory.
	DefaultMaxBodyBytes int64 = 5 << 20

	userAgent = "afmeter-proxy/1"
)

// Logger defines the logging interface used by the Gateway.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config tunes the Gateway. Zero values select the defaults.
type Config struct {
	Timeout      time.Duration
	MaxBodyBytes int64
}

// Request names the upstream either by URL or by discrete fields. URL wins
// when both are set.
type Request struct {
	URL      string
	Protocol string
	Host     string
	Port     string
	Path     string
}

// Target resolves the request into an egress target.
func (r Request) Target() (egress.Target, error) {
	switch {
	case strings.TrimSpace(r.URL) != "":
		return egress.ParseURL(r.URL)
	case strings.TrimSpace(r.Host) != "":
		return egress.FromFields(r.Protocol, r.Host, r.Port, r.Path)
	default:
		return egress.Target{}, ErrMissingTarget
	}
}

// Result is the upstream response envelope.
type Result struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	// Body is decoded JSON when the upstream declared application/json and
	// the payload parsed, otherwise the raw text.
	Body any `json:"body"`
}

// Stats counts Fetch outcomes since start.
type Stats struct {
	Requests  int64 `json:"requests"`
	Succeeded int64 `json:"succeeded"`
	Rejected  int64 `json:"rejected"`
	Forbidden int64 `json:"forbidden"`
	Timeouts  int64 `json:"timeouts"`
	Failed    int64 `json:"failed"`
}

// Gateway performs guarded upstream GETs. Safe for concurrent use.
type Gateway struct {
	client  *http.Client
	timeout time.Duration
	maxBody int64
	logger  Logger

	requests, succeeded, rejected, forbidden, timeouts, failed atomic.Int64
}

// NewGateway creates a Gateway. Redirects are never followed.
func NewGateway(cfg Config) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	// Environment proxies would send the request somewhere the guard never saw.
	transport.Proxy = nil

	return &Gateway{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout: cfg.Timeout,
		maxBody: cfg.MaxBodyBytes,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the gateway.
func (g *Gateway) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	g.logger = logger
}

// Timeout returns the per-request timeout.
func (g *Gateway) Timeout() time.Duration {
	return g.timeout
}

// Stats returns a snapshot of the outcome counters.
func (g *Gateway) Stats() Stats {
	return Stats{
		Requests:  g.requests.Load(),
		Succeeded: g.succeeded.Load(),
		Rejected:  g.rejected.Load(),
		Forbidden: g.forbidden.Load(),
		Timeouts:  g.timeouts.Load(),
		Failed:    g.failed.Load(),
	}
}

// Fetch resolves, guards and performs req.
func (g *Gateway) Fetch(ctx context.Context, req Request) (*Result, error) {
	g.requests.Add(1)

	target, err := req.Target()
	if err != nil {
		g.rejected.Add(1)
		return nil, err
	}
	if !target.Allowed() {
		g.forbidden.Add(1)
		g.logger.Warn("proxy target denied", "host", target.Host)
		return nil, fmt.Errorf("%w: %s", ErrForbidden, target.Host)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	res, err := g.do(ctx, target)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			g.timeouts.Add(1)
		} else {
			g.failed.Add(1)
		}
		g.logger.Warn("proxy request failed", "url", target.URL(), "error", err)
		return nil, err
	}

	g.succeeded.Add(1)
	g.logger.Debug("proxy request completed", "url", target.URL(), "status", res.Status)
	return res, nil
}

func (g *Gateway) do(ctx context.Context, target egress.Target) (*Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTarget, err)
	}
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, g.classify(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, g.maxBody+1))
	if err != nil {
		return nil, g.classify(ctx, err)
	}
	if int64(len(data)) > g.maxBody {
		return nil, &Error{Message: fmt.Sprintf("response body exceeds %d bytes", g.maxBody)}
	}

	return &Result{
		Status:  resp.StatusCode,
		Headers: flattenHeaders(resp.Header),
		Body:    decodeBody(resp.Header.Get("Content-Type"), data),
	}, nil
}

// classify maps a transport error. Only our own deadline counts as a
// timeout; a cancelled caller context is a proxy error.
func (g *Gateway) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, g.timeout)
	}
	return &Error{Message: err.Error(), Err: err}
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for key, values := range h {
		out[strings.ToLower(key)] = strings.Join(values, ", ")
	}
	return out
}

func decodeBody(contentType string, data []byte) any {
	if strings.Contains(strings.ToLower(contentType), "application/json") {
		var v any
		if err := json.Unmarshal(data, &v); err == nil {
			return v
		}
	}
	return string(data)
}
