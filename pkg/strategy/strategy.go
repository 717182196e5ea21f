// Package strategy implements the update-strategy engine used at the
// subscription wire boundary: given a previously-sent value and the next
// value, it encodes the most compact representable difference, and
// reconstructs the next value from a payload on the receiving side.
package strategy

import (
	"encoding/json"
	"fmt"
)

// Mode tags an update payload.
type Mode string

const (
	// ModeValue is a full replacement of the previous value.
	ModeValue Mode = "value"
	// ModeDelta carries only the appended string suffix.
	ModeDelta Mode = "delta"
	// ModePatch carries an RFC 6902 operation sequence.
	ModePatch Mode = "patch"
)

// Payload is the tagged wire union {mode, data}. Constructed fresh per
// subscription emission; never persisted.
type Payload struct {
	Mode Mode `json:"mode"`
	Data any  `json:"data"`
}

// Strategy encodes a next value against the current one and decodes a
// payload back into the next value. Encode may return a payload of a
// different mode than the strategy's own (fallback to value); callers
// must inspect Payload.Mode rather than assume the requested strategy
// was honored. Decode against the correct prior value must reconstruct
// exactly the value that was encoded.
type Strategy interface {
	Name() string
	Encode(current, next any) (Payload, error)
	Decode(current any, p Payload) (any, error)
}

// ForName returns the strategy registered under name, defaulting to Auto
// for an empty name.
func ForName(name string) (Strategy, error) {
	switch name {
	case "", "auto":
		return Auto, nil
	case "value":
		return Value, nil
	case "delta":
		return Delta, nil
	case "patch":
		return Patch, nil
	}
	return nil, fmt.Errorf("unknown update strategy: %q", name)
}

// Decode dispatches a payload to the strategy matching its mode. Any
// strategy's output can be decoded this way regardless of which strategy
// produced it.
func Decode(current any, p Payload) (any, error) {
	switch p.Mode {
	case ModeValue:
		return Value.Decode(current, p)
	case ModeDelta:
		return Delta.Decode(current, p)
	case ModePatch:
		return Patch.Decode(current, p)
	}
	return nil, fmt.Errorf("unknown payload mode: %q", p.Mode)
}

// isPlainObject reports whether v is a JSON object (not an array, not
// nil, not a scalar) once serialized.
func isPlainObject(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.(map[string]any); ok {
		return true
	}
	if raw, ok := v.(json.RawMessage); ok {
		for _, c := range raw {
			if c == ' ' || c == '\n' || c == '\r' || c == '\t' {
				continue
			}
			return c == '{'
		}
	}
	return false
}

// serializedLen returns the length of v's JSON encoding. The wire format
// is JSON, so size decisions made on this number reflect real transfer
// savings.
func serializedLen(v any) (int, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}
