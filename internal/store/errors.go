package store

import "errors"

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store: closed")

	// ErrUnknownBackend is returned by New for an unrecognised backend name.
	ErrUnknownBackend = errors.New("store: unknown backend")
)
