package strategy

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/wI2L/jsondiff"
)

// Patch encodes an RFC 6902 operation sequence between two plain
// objects. Decode applies the operations to a deep clone of the prior
// value and fails loudly on any inapplicable op; a corrupted patch must
// never silently produce a wrong document.
var Patch Strategy = patchStrategy{}

type patchStrategy struct{}

func (patchStrategy) Name() string { return "patch" }

func (patchStrategy) Encode(current, next any) (Payload, error) {
	if !isPlainObject(current) || !isPlainObject(next) {
		return Value.Encode(current, next)
	}
	ops, err := jsondiff.Compare(current, next)
	if err != nil {
		return Payload{}, fmt.Errorf("patch diff failed: %w", err)
	}
	raw, err := json.Marshal(ops)
	if err != nil {
		return Payload{}, fmt.Errorf("patch marshal failed: %w", err)
	}
	return Payload{Mode: ModePatch, Data: json.RawMessage(raw)}, nil
}

func (patchStrategy) Decode(current any, p Payload) (any, error) {
	if p.Mode == ModeValue {
		return Value.Decode(current, p)
	}
	if p.Mode != ModePatch {
		return nil, fmt.Errorf("patch strategy cannot decode mode %q", p.Mode)
	}

	ops, err := payloadOps(p)
	if err != nil {
		return nil, err
	}
	patch, err := jsonpatch.DecodePatch(ops)
	if err != nil {
		return nil, fmt.Errorf("malformed patch: %w", err)
	}

	// Apply to a serialized clone so the caller's prior value is never
	// mutated in place.
	doc, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("patch decode: cannot serialize prior value: %w", err)
	}
	out, err := patch.Apply(doc)
	if err != nil {
		return nil, fmt.Errorf("patch apply failed: %w", err)
	}
	var next any
	if err := json.Unmarshal(out, &next); err != nil {
		return nil, fmt.Errorf("patch decode: invalid result document: %w", err)
	}
	return next, nil
}

// payloadOps normalizes payload data into the raw RFC 6902 ops array.
// Payloads decoded from the wire carry []any; locally-constructed ones
// carry json.RawMessage.
func payloadOps(p Payload) ([]byte, error) {
	switch d := p.Data.(type) {
	case json.RawMessage:
		return d, nil
	case []byte:
		return d, nil
	default:
		raw, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("patch payload data is not an ops array: %w", err)
		}
		return raw, nil
	}
}
