package strategy

import "strings"

// patchRatioDen: a patch is only worth sending when its serialized size
// is under half the serialized size of a full value payload. Small
// patches on small objects are not worth the bookkeeping overhead, and
// the trial-diff cost is paid only once per update.
const patchRatioDen = 2

// Auto selects among the other three strategies per update. Decision
// order: string append growth uses Delta; two plain objects use Patch
// when the trial diff is compact enough; everything else is a full
// Value replacement. Pure function of (current, next): the same pair
// always picks the same mode.
var Auto Strategy = autoStrategy{}

type autoStrategy struct{}

func (autoStrategy) Name() string { return "auto" }

func (autoStrategy) Encode(current, next any) (Payload, error) {
	if current == nil {
		return Value.Encode(current, next)
	}

	if cs, ok := current.(string); ok {
		if ns, ok := next.(string); ok && strings.HasPrefix(ns, cs) {
			return Delta.Encode(current, next)
		}
	}

	if isPlainObject(current) && isPlainObject(next) {
		trial, err := Patch.Encode(current, next)
		if err != nil {
			return Payload{}, err
		}
		if trial.Mode == ModePatch {
			patchLen, err := serializedLen(trial.Data)
			if err != nil {
				return Payload{}, err
			}
			valueLen, err := serializedLen(next)
			if err != nil {
				return Payload{}, err
			}
			if patchLen*patchRatioDen < valueLen {
				return trial, nil
			}
		}
	}

	return Value.Encode(current, next)
}

func (autoStrategy) Decode(current any, p Payload) (any, error) {
	return Decode(current, p)
}
