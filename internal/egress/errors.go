package egress

import "errors"

var (
	// ErrMissingTarget indicates neither a URL nor a host was supplied.
	ErrMissingTarget = errors.New("egress: missing target (url or host)")

	// ErrInvalidTarget indicates the target could not be parsed.
	ErrInvalidTarget = errors.New("egress: invalid URL")
)
