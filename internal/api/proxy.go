package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/nerrad567/afmeter-core/internal/proxy"
)

// ProxyRequest is the body of POST /api/proxy. Either URL or Host is set.
type ProxyRequest struct {
	URL      string          `json:"url"`
	Protocol string          `json:"protocol"`
	Host     string          `json:"host"`
	Port     json.RawMessage `json:"port"`
	Path     string          `json:"path"`
}

// toGatewayRequest converts the body, accepting port as number or string.
func (p ProxyRequest) toGatewayRequest() (proxy.Request, error) {
	req := proxy.Request{
		URL:      p.URL,
		Protocol: p.Protocol,
		Host:     p.Host,
		Path:     p.Path,
	}

	raw := strings.TrimSpace(string(p.Port))
	switch {
	case raw == "" || raw == "null":
	case strings.HasPrefix(raw, `"`):
		var port string
		if err := json.Unmarshal(p.Port, &port); err != nil {
			return proxy.Request{}, proxy.ErrInvalidTarget
		}
		req.Port = port
	default:
		var port json.Number
		if err := json.Unmarshal(p.Port, &port); err != nil {
			return proxy.Request{}, proxy.ErrInvalidTarget
		}
		n, err := port.Int64()
		if err != nil {
			return proxy.Request{}, proxy.ErrInvalidTarget
		}
		req.Port = strconv.FormatInt(n, 10)
	}
	return req, nil
}

// handleProxy performs one guarded upstream GET and returns its envelope.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	var body ProxyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "missing target (url or host)", "body must be a JSON object")
		return
	}

	req, err := body.toGatewayRequest()
	if err != nil {
		writeBadRequest(w, "invalid URL", "port must be an integer")
		return
	}

	res, err := s.proxy.Fetch(r.Context(), req)
	if err != nil {
		writeProxyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// writeProxyError maps gateway failures onto HTTP statuses.
func writeProxyError(w http.ResponseWriter, err error) {
	var perr *proxy.Error
	switch {
	case errors.Is(err, proxy.ErrMissingTarget):
		writeBadRequest(w, "missing target (url or host)", err.Error())
	case errors.Is(err, proxy.ErrInvalidTarget):
		writeBadRequest(w, "invalid URL", err.Error())
	case errors.Is(err, proxy.ErrForbidden):
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "target host not allowed", err.Error())
	case errors.Is(err, proxy.ErrTimeout):
		writeError(w, http.StatusBadGateway, ErrCodeProxyTimeout, "proxy error", err.Error())
	case errors.As(err, &perr):
		writeError(w, http.StatusBadGateway, ErrCodeProxy, "proxy error", perr.Message)
	default:
		writeError(w, http.StatusBadGateway, ErrCodeProxy, "proxy error", err.Error())
	}
}
