package egress

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Target is a resolved proxy destination.
type Target struct {
	Scheme string // "http" or "https"
	Host   string // without brackets or port
	Port   int    // 0 means the scheme default
	Path   string // path plus optional query, always starting with "/"
}

// ParseURL resolves a full absolute URL. Only http and https are accepted.
func ParseURL(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, ErrMissingTarget
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %w", ErrInvalidTarget, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return Target{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidTarget, u.Scheme)
	}
	if u.Hostname() == "" {
		return Target{}, fmt.Errorf("%w: no host", ErrInvalidTarget)
	}
	if u.User != nil {
		return Target{}, fmt.Errorf("%w: credentials not allowed", ErrInvalidTarget)
	}

	t := Target{
		Scheme: scheme,
		Host:   strings.ToLower(u.Hostname()),
		Path:   u.EscapedPath(),
	}
	if p := u.Port(); p != "" {
		port, err := parsePort(p)
		if err != nil {
			return Target{}, err
		}
		t.Port = port
	}
	if t.Path == "" {
		t.Path = "/"
	}
	if u.RawQuery != "" {
		t.Path += "?" + u.RawQuery
	}
	return t, nil
}

// FromFields resolves discrete target fields. protocol "https" selects
// https and anything else http. port may be empty; path defaults to "/".
// host may carry its own port ("10.0.0.1:8080", "[fe80::1]:80") when the
// port field is empty.
func FromFields(protocol, host, port, path string) (Target, error) {
	host, port, err := splitEmbeddedPort(host, port)
	if err != nil {
		return Target{}, err
	}
	host = normalizeHost(host)
	if host == "" {
		return Target{}, ErrMissingTarget
	}
	if strings.ContainsAny(host, "/?#@ ") {
		return Target{}, fmt.Errorf("%w: malformed host %q", ErrInvalidTarget, host)
	}

	t := Target{Scheme: "http", Host: host, Path: path}
	if strings.EqualFold(strings.TrimSpace(protocol), "https") {
		t.Scheme = "https"
	}
	if port = strings.TrimSpace(port); port != "" {
		p, err := parsePort(port)
		if err != nil {
			return Target{}, err
		}
		t.Port = p
	}
	if t.Path == "" {
		t.Path = "/"
	}
	if !strings.HasPrefix(t.Path, "/") {
		t.Path = "/" + t.Path
	}

	// Round-trip through net/url so the path cannot smuggle a new authority.
	u, err := url.Parse(t.URL())
	if err != nil || !strings.EqualFold(u.Hostname(), t.Host) {
		return Target{}, fmt.Errorf("%w: %s", ErrInvalidTarget, t.URL())
	}
	return t, nil
}

// splitEmbeddedPort separates host:port unless host is a bare IPv6 literal.
// Supplying a port both ways is ambiguous and rejected.
func splitEmbeddedPort(host, port string) (string, string, error) {
	h := strings.TrimSpace(host)
	if !strings.Contains(h, ":") || net.ParseIP(normalizeHost(h)) != nil {
		return host, port, nil
	}
	hh, pp, err := net.SplitHostPort(h)
	if err != nil {
		return "", "", fmt.Errorf("%w: malformed host %q", ErrInvalidTarget, host)
	}
	if strings.TrimSpace(port) != "" {
		return "", "", fmt.Errorf("%w: port given in host and port fields", ErrInvalidTarget)
	}
	return hh, pp, nil
}

// URL renders the target as an absolute URL.
func (t Target) URL() string {
	hostport := t.Host
	if strings.Contains(t.Host, ":") {
		hostport = "[" + t.Host + "]"
	}
	if t.Port != 0 {
		hostport = net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
	}
	return t.Scheme + "://" + hostport + t.Path
}

// Allowed reports whether the target's host passes Classify.
func (t Target) Allowed() bool {
	return Classify(t.Host) == Allowed
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: port %q", ErrInvalidTarget, s)
	}
	if p < 1 || p > 65535 {
		return 0, fmt.Errorf("%w: port %d out of range", ErrInvalidTarget, p)
	}
	return p, nil
}

// IsTargetError reports whether err is a missing or invalid target error.
func IsTargetError(err error) bool {
	return errors.Is(err, ErrMissingTarget) || errors.Is(err, ErrInvalidTarget)
}
