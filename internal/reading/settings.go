package reading

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
)

// Settings is the single dashboard settings record. Keys are unique; values
// are arbitrary JSON.
type Settings map[string]any

// DefaultSettings returns the record written on first boot.
func DefaultSettings() Settings {
	return Settings{
		"warning_threshold": 25.0,
		"alert_threshold":   30.0,
	}
}

// Merge returns a new record with partial's keys shallowly overwriting s.
// Neither input is modified.
func (s Settings) Merge(partial Settings) Settings {
	merged := make(Settings, len(s)+len(partial))
	maps.Copy(merged, s)
	maps.Copy(merged, partial)
	return merged
}

// Clone returns a shallow copy.
func (s Settings) Clone() Settings {
	if s == nil {
		return Settings{}
	}
	return maps.Clone(s)
}

// DecodeSettings parses a partial settings payload, which must be a JSON object.
func DecodeSettings(body []byte) (Settings, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return nil, ErrInvalidSettings
	}

	var s Settings
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	return s, nil
}
