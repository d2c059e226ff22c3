package store

import (
	"encoding/json"
	"fmt"
)

// Encode returns the string form of a value for storage. Strings pass
// through untouched; anything else is JSON-encoded.
func Encode(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding value for storage: %w", err)
	}
	return string(b), nil
}

// Decode reverses Encode: payloads that parse as JSON are returned as the
// decoded value, everything else comes back as the raw string. Decode never
// fails; a plain string that was stored via Encode simply round-trips.
func Decode(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
