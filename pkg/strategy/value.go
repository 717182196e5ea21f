package strategy

// Value always encodes a full replacement. Safe default; used for the
// first-ever update (no prior value) or when other strategies don't apply.
var Value Strategy = valueStrategy{}

type valueStrategy struct{}

func (valueStrategy) Name() string { return "value" }

func (valueStrategy) Encode(current, next any) (Payload, error) {
	return Payload{Mode: ModeValue, Data: next}, nil
}

func (valueStrategy) Decode(current any, p Payload) (any, error) {
	return p.Data, nil
}
