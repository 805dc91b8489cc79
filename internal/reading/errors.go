package reading

import "errors"

// Validation errors. Items that fail with these are dropped at ingestion.
var (
	// ErrMalformedBody indicates the request body is empty or not JSON.
	ErrMalformedBody = errors.New("reading: body must be a JSON object or array")

	// ErrNotObject indicates a batch item is not a JSON object.
	ErrNotObject = errors.New("reading: item is not a JSON object")

	// ErrInvalidValue indicates value is missing or neither a number nor a string.
	ErrInvalidValue = errors.New("reading: value must be a number or a string")

	// ErrMissingTimestamp indicates neither ts nor timestamp is set.
	ErrMissingTimestamp = errors.New("reading: ts is required")

	// ErrInvalidTimestamp indicates ts is present but not a number.
	ErrInvalidTimestamp = errors.New("reading: ts must be a number")

	// ErrInvalidSettings indicates a settings payload is not a JSON object.
	ErrInvalidSettings = errors.New("reading: settings must be a JSON object")
)
