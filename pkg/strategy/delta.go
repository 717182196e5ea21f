package strategy

import (
	"fmt"
	"strings"
)

// Delta encodes pure string-append growth, the common case for
// token-by-token streaming. When next does not start with current it
// falls back to a full value payload rather than erroring.
var Delta Strategy = deltaStrategy{}

type deltaStrategy struct{}

func (deltaStrategy) Name() string { return "delta" }

func (deltaStrategy) Encode(current, next any) (Payload, error) {
	cs, cok := current.(string)
	ns, nok := next.(string)
	if !cok || !nok || !strings.HasPrefix(ns, cs) {
		return Value.Encode(current, next)
	}
	return Payload{Mode: ModeDelta, Data: ns[len(cs):]}, nil
}

func (deltaStrategy) Decode(current any, p Payload) (any, error) {
	if p.Mode == ModeValue {
		return Value.Decode(current, p)
	}
	if p.Mode != ModeDelta {
		return nil, fmt.Errorf("delta strategy cannot decode mode %q", p.Mode)
	}
	cs, ok := current.(string)
	if !ok {
		return nil, fmt.Errorf("delta decode requires a string prior value, got %T", current)
	}
	suffix, ok := p.Data.(string)
	if !ok {
		return nil, fmt.Errorf("delta payload data must be a string, got %T", p.Data)
	}
	return cs + suffix, nil
}
