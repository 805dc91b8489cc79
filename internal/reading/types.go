package reading

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// DefaultDeviceID is assigned to readings submitted without a device_id.
const DefaultDeviceID = "default"

// Reading is a single timestamped measurement. Immutable once stored.
type Reading struct {
	// Timestamp is epoch milliseconds. Serialised as "ts".
	Timestamp int64  `json:"ts"`
	Value     Value  `json:"value"`
	DeviceID  string `json:"device_id"`
	Unit      string `json:"unit,omitempty"`
}

// Value is a reading's payload: either a JSON number or a JSON string.
// Numbers keep their original textual form so a stored reading serialises
// exactly as it was submitted.
type Value struct {
	num   json.Number
	str   string
	isStr bool
}

// Number returns a numeric Value. n must be a valid JSON number literal.
func Number(n string) Value {
	return Value{num: json.Number(n)}
}

// Float returns a numeric Value from a float64.
func Float(f float64) Value {
	return Value{num: json.Number(strconv.FormatFloat(f, 'f', -1, 64))}
}

// Text returns a string Value.
func Text(s string) Value {
	return Value{str: s, isStr: true}
}

// IsZero reports whether the Value was never set.
func (v Value) IsZero() bool {
	return !v.isStr && v.num == ""
}

// IsNumber reports whether the Value holds a number.
func (v Value) IsNumber() bool {
	return !v.isStr && v.num != ""
}

// Float64 returns the numeric value. ok is false for strings and for
// numbers outside float64 range.
func (v Value) Float64() (f float64, ok bool) {
	if !v.IsNumber() {
		return 0, false
	}
	f, err := v.num.Float64()
	if err != nil {
		return 0, false
	}
	return f, true
}

// String returns the value's textual form.
func (v Value) String() string {
	if v.isStr {
		return v.str
	}
	return v.num.String()
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case v.isStr:
		return json.Marshal(v.str)
	case v.num != "":
		return []byte(v.num), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler. Only numbers and strings are
// accepted; anything else returns ErrInvalidValue.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ErrInvalidValue
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidValue, err)
		}
		*v = Text(s)
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&n); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidValue, err)
		}
		*v = Value{num: n}
		return nil
	default:
		return ErrInvalidValue
	}
}
