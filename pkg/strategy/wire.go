package strategy

import (
	"encoding/json"
	"fmt"

	"github.com/valyala/bytebufferpool"
)

// EncodeWire marshals a payload to its JSON wire form. The returned
// slice is a copy; the intermediate buffer is pooled.
func EncodeWire(p Payload) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := json.NewEncoder(buf).Encode(p); err != nil {
		return nil, fmt.Errorf("payload encode failed: %w", err)
	}
	b := buf.Bytes()
	// drop the trailing newline the encoder appends
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	return append([]byte(nil), b...), nil
}

// DecodeWire parses a JSON wire payload.
func DecodeWire(b []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return Payload{}, fmt.Errorf("payload decode failed: %w", err)
	}
	if p.Mode != ModeValue && p.Mode != ModeDelta && p.Mode != ModePatch {
		return Payload{}, fmt.Errorf("unknown payload mode: %q", p.Mode)
	}
	return p, nil
}
