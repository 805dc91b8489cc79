package egress

import (
	"strconv"
	"strings"
)

// Decision is the outcome of classifying a host.
type Decision int

const (
	// Denied is the zero value so an unset Decision never allows egress.
	Denied Decision = iota
	Allowed
)

// String returns "allowed" or "denied".
func (d Decision) String() string {
	if d == Allowed {
		return "allowed"
	}
	return "denied"
}

// Classify reports whether host may be contacted. Rules, first match wins:
//
//  1. localhost, 127.0.0.1 and ::1 are allowed
//  2. a dotted-quad IPv4 address is allowed when it lies in 10/8,
//     172.16/12, 192.168/16 or 127/8, and denied otherwise (including
//     octets above 255)
//  3. a name ending in ".local" is allowed
//  4. everything else is denied
//
// The host is lowercased and IPv6 brackets are stripped first.
func Classify(host string) Decision {
	h := normalizeHost(host)
	if h == "" {
		return Denied
	}

	switch h {
	case "localhost", "127.0.0.1", "::1":
		return Allowed
	}

	if octets, ok := parseDottedQuad(h); ok {
		if isPrivateIPv4(octets) {
			return Allowed
		}
		return Denied
	}

	if strings.HasSuffix(h, ".local") {
		return Allowed
	}

	return Denied
}

func normalizeHost(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	if strings.HasPrefix(h, "[") && strings.HasSuffix(h, "]") {
		h = h[1 : len(h)-1]
	}
	return h
}

// parseDottedQuad matches exactly four groups of one to three decimal
// digits. ok is true for that shape even when an octet exceeds 255; the
// octet values are then reported as -1 so the caller denies them.
func parseDottedQuad(h string) (octets [4]int, ok bool) {
	parts := strings.Split(h, ".")
	if len(parts) != 4 {
		return octets, false
	}

	for i, p := range parts {
		if len(p) < 1 || len(p) > 3 {
			return octets, false
		}
		for _, c := range p {
			if c < '0' || c > '9' {
				return octets, false
			}
		}
		n, err := strconv.Atoi(p)
		if err != nil || n > 255 {
			n = -1
		}
		octets[i] = n
	}
	return octets, true
}

func isPrivateIPv4(o [4]int) bool {
	for _, n := range o {
		if n < 0 {
			return false
		}
	}

	switch {
	case o[0] == 10:
		return true
	case o[0] == 172 && o[1] >= 16 && o[1] <= 31:
		return true
	case o[0] == 192 && o[1] == 168:
		return true
	case o[0] == 127:
		return true
	}
	return false
}
