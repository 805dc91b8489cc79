package proxy

import (
	"errors"

	"github.com/nerrad567/afmeter-core/internal/egress"
)

var (
	// ErrMissingTarget indicates neither url nor host was given.
	ErrMissingTarget = egress.ErrMissingTarget

	// ErrInvalidTarget indicates the target could not be parsed.
	ErrInvalidTarget = egress.ErrInvalidTarget

	// ErrForbidden indicates the egress guard denied the host.
	ErrForbidden = errors.New("proxy: target host not allowed")

	// ErrTimeout indicates the upstream did not answer within the timeout.
	ErrTimeout = errors.New("proxy: upstream timeout")

	// ErrProxy is the class of every other transport failure.
	ErrProxy = errors.New("proxy: proxy error")
)

// Error carries the message of a transport failure. It matches ErrProxy
// with errors.Is.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	return "proxy error: " + e.Message
}

// Unwrap returns the underlying transport error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrProxy.
func (e *Error) Is(target error) bool {
	return target == ErrProxy
}
