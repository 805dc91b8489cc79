package reading

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Defaults supplies the values injected into readings that omit them.
type Defaults struct {
	// DeviceID replaces DefaultDeviceID for items without a device_id.
	// MQTT ingestion sets it from the topic.
	DeviceID string
}

// rawReading mirrors the accepted wire shape before validation.
type rawReading struct {
	TS        json.RawMessage `json:"ts"`
	Timestamp json.RawMessage `json:"timestamp"`
	Value     json.RawMessage `json:"value"`
	DeviceID  json.RawMessage `json:"device_id"`
	Unit      json.RawMessage `json:"unit"`
}

// DecodeBatch splits a request body into raw items. The body may be a single
// JSON object or an array; array elements are not validated here.
func DecodeBatch(body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || !json.Valid(body) {
		return nil, ErrMalformedBody
	}

	switch body[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedBody, err)
		}
		return items, nil
	case '{':
		return []json.RawMessage{json.RawMessage(body)}, nil
	default:
		return nil, ErrMalformedBody
	}
}

// Normalize validates one raw item and fills in defaults.
//
// Rules:
//   - the item must be a JSON object
//   - value must be a JSON number or string
//   - ts (or its alias timestamp) must be a JSON number; items without one
//     are dropped
//   - device_id falls back to d.DeviceID, then DefaultDeviceID, when absent,
//     empty, or not a string
//   - unit is kept only when it is a string
func Normalize(raw json.RawMessage, d Defaults) (Reading, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Reading{}, ErrNotObject
	}

	var in rawReading
	if err := json.Unmarshal(trimmed, &in); err != nil {
		return Reading{}, fmt.Errorf("%w: %w", ErrNotObject, err)
	}

	var r Reading
	if err := r.Value.UnmarshalJSON(in.Value); err != nil {
		return Reading{}, err
	}

	tsRaw := in.TS
	if isAbsent(tsRaw) {
		tsRaw = in.Timestamp
	}
	ts, err := parseTimestamp(tsRaw)
	if err != nil {
		return Reading{}, err
	}
	r.Timestamp = ts

	r.DeviceID = d.DeviceID
	if r.DeviceID == "" {
		r.DeviceID = DefaultDeviceID
	}
	var id string
	if json.Unmarshal(in.DeviceID, &id) == nil && id != "" {
		r.DeviceID = id
	}

	var unit string
	if json.Unmarshal(in.Unit, &unit) == nil {
		r.Unit = unit
	}

	return r, nil
}

// FilterValid normalises every item and returns the accepted subset in
// input order. Invalid items are dropped silently.
func FilterValid(items []json.RawMessage, d Defaults) []Reading {
	accepted := make([]Reading, 0, len(items))
	for _, raw := range items {
		r, err := Normalize(raw, d)
		if err != nil {
			continue
		}
		accepted = append(accepted, r)
	}
	return accepted
}

// parseTimestamp converts a raw ts into epoch milliseconds. Fractional
// milliseconds are truncated.
func parseTimestamp(raw json.RawMessage) (int64, error) {
	if isAbsent(raw) {
		return 0, ErrMissingTimestamp
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return 0, ErrInvalidTimestamp
	}

	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || math.Abs(f) > math.MaxInt64 {
		return 0, ErrInvalidTimestamp
	}
	return int64(f), nil
}

func isAbsent(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
