package realtime

import "errors"

// ErrConnectionClosed is returned for events on a disconnected handle.
var ErrConnectionClosed = errors.New("realtime: connection closed")
