package messaging

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Encode serialises a payload for transfer as UTF-8 JSON
func Encode(payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return body, nil
}

// Decode deserialises a transfer body. Malformed or empty bodies yield the
// zero value of T instead of an error.
func Decode[T any](body []byte) T {
	var out T
	if len(body) == 0 || !utf8.Valid(body) {
		return out
	}
	if err := json.Unmarshal(body, &out); err != nil {
		var zero T
		return zero
	}
	return out
}

// DecodeStrict is Decode for callers that need to know about malformed bodies
func DecodeStrict[T any](body []byte) (T, error) {
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		var zero T
		return zero, fmt.Errorf("failed to decode payload: %w", err)
	}
	return out, nil
}
