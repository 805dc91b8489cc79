package egress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		host string
		want Decision
	}{
		// Loopback names.
		{"localhost", Allowed},
		{"LOCALHOST", Allowed},
		{"127.0.0.1", Allowed},
		{"::1", Allowed},
		{"[::1]", Allowed},

		// Private IPv4 ranges and their edges.
		{"10.0.0.5", Allowed},
		{"10.255.255.255", Allowed},
		{"172.16.0.1", Allowed},
		{"172.31.255.255", Allowed},
		{"172.15.255.255", Denied},
		{"172.32.0.1", Denied},
		{"192.168.1.20", Allowed},
		{"192.169.0.1", Denied},
		{"127.8.8.8", Allowed},

		// Public and malformed addresses.
		{"8.8.8.8", Denied},
		{"0.0.0.0", Denied},
		{"169.254.169.254", Denied},
		{"10.300.0.1", Denied},
		{"256.1.1.1", Denied},
		{"10.0.0", Denied},
		{"10.0.0.0.1", Denied},
		{"0010.0.0.1", Denied},
		{"10.0.0.1.local", Allowed},

		// Names.
		{"printer.local", Allowed},
		{"Meter.LOCAL", Allowed},
		{"local", Denied},
		{"evil.com", Denied},
		{"evil.local.com", Denied},
		{"fe80::1", Denied},
		{"", Denied},
		{"   ", Denied},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.host))
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	hosts := []string{"127.0.0.1", "evil.com", "printer.local", "172.20.1.1"}
	for _, h := range hosts {
		first := Classify(h)
		for range 100 {
			assert.Equal(t, first, Classify(h), h)
		}
	}
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "allowed", Allowed.String())
	assert.Equal(t, "denied", Denied.String())
	var zero Decision
	assert.Equal(t, Denied, zero)
}
