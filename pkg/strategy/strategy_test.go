package strategy

import (
	"reflect"
	"testing"
)

func TestValueRoundTrip(t *testing.T) {
	p, err := Value.Encode("old", "new")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if p.Mode != ModeValue {
		t.Fatalf("expected value mode, got %s", p.Mode)
	}
	got, err := Value.Decode("old", p)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "new" {
		t.Fatalf("expected new, got %v", got)
	}
}

func TestDeltaAppendRoundTrip(t *testing.T) {
	cases := []struct{ cur, next string }{
		{"", "hello"},
		{"hel", "hello"},
		{"hello", "hello"},
		{"The quick", "The quick brown fox"},
	}
	for _, c := range cases {
		p, err := Delta.Encode(c.cur, c.next)
		if err != nil {
			t.Fatalf("encode(%q,%q): %v", c.cur, c.next, err)
		}
		if p.Mode != ModeDelta {
			t.Fatalf("encode(%q,%q): expected delta mode, got %s", c.cur, c.next, p.Mode)
		}
		if p.Data.(string) != c.next[len(c.cur):] {
			t.Fatalf("encode(%q,%q): wrong suffix %q", c.cur, c.next, p.Data)
		}
		got, err := Delta.Decode(c.cur, p)
		if err != nil {
			t.Fatalf("decode(%q): %v", c.cur, err)
		}
		if got != c.next {
			t.Fatalf("round trip mismatch: got %q want %q", got, c.next)
		}
	}
}

func TestDeltaFallbackToValue(t *testing.T) {
	// next is not an append of current
	p, err := Delta.Encode("abc", "xyz")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if p.Mode != ModeValue {
		t.Fatalf("expected value fallback, got %s", p.Mode)
	}
	got, err := Delta.Decode("abc", p)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "xyz" {
		t.Fatalf("expected xyz, got %v", got)
	}
}

func TestDeltaDecodeRequiresString(t *testing.T) {
	p := Payload{Mode: ModeDelta, Data: "suffix"}
	if _, err := Delta.Decode(42, p); err == nil {
		t.Fatalf("expected error for non-string prior value")
	}
}

func TestPatchRoundTrip(t *testing.T) {
	cur := map[string]any{"name": "alice", "age": float64(30), "tags": []any{"a", "b"}}
	next := map[string]any{"name": "bob", "age": float64(30), "tags": []any{"a", "b", "c"}}

	p, err := Patch.Encode(cur, next)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if p.Mode != ModePatch {
		t.Fatalf("expected patch mode, got %s", p.Mode)
	}
	got, err := Patch.Decode(cur, p)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, map[string]any{"name": "bob", "age": float64(30), "tags": []any{"a", "b", "c"}}) {
		t.Fatalf("round trip mismatch: %#v", got)
	}
	// prior value untouched
	if cur["name"] != "alice" {
		t.Fatalf("decode mutated prior value")
	}
}

func TestPatchDecodeMalformed(t *testing.T) {
	p := Payload{Mode: ModePatch, Data: []any{map[string]any{"op": "bogus", "path": "/x"}}}
	if _, err := Patch.Decode(map[string]any{"x": 1}, p); err == nil {
		t.Fatalf("expected error for malformed op")
	}
	// test op failure must surface, not silently produce a wrong doc
	p2 := Payload{Mode: ModePatch, Data: []any{map[string]any{"op": "test", "path": "/x", "value": float64(999)}}}
	if _, err := Patch.Decode(map[string]any{"x": float64(1)}, p2); err == nil {
		t.Fatalf("expected error for failing test op")
	}
}

func TestPatchOnNonObjectFallsBack(t *testing.T) {
	p, err := Patch.Encode([]any{1, 2}, []any{1, 2, 3})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if p.Mode != ModeValue {
		t.Fatalf("expected value fallback for arrays, got %s", p.Mode)
	}
}

func TestAutoPicksDeltaForStringAppend(t *testing.T) {
	p, err := Auto.Encode("stream", "streaming tokens")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if p.Mode != ModeDelta {
		t.Fatalf("expected delta, got %s", p.Mode)
	}
}

func TestAutoPicksValueForFirstUpdate(t *testing.T) {
	p, err := Auto.Encode(nil, map[string]any{"a": 1})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if p.Mode != ModeValue {
		t.Fatalf("expected value for first update, got %s", p.Mode)
	}
}

func TestAutoPatchThreshold(t *testing.T) {
	// Large object, one field changed: patch is well under half the
	// full-value size.
	big := map[string]any{}
	for _, k := range []string{"aaaa", "bbbb", "cccc", "dddd", "eeee", "ffff", "gggg", "hhhh"} {
		big[k] = "some reasonably long field value for " + k
	}
	next := map[string]any{}
	for k, v := range big {
		next[k] = v
	}
	next["aaaa"] = "changed"

	p, err := Auto.Encode(big, next)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if p.Mode != ModePatch {
		t.Fatalf("expected patch for sparse change, got %s", p.Mode)
	}
	got, err := Auto.Decode(big, p)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.(map[string]any)["aaaa"] != "changed" {
		t.Fatalf("decode mismatch: %#v", got)
	}

	// Tiny object, full rewrite: patch is not worth it.
	p2, err := Auto.Encode(map[string]any{"a": float64(1)}, map[string]any{"b": float64(2)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if p2.Mode != ModeValue {
		t.Fatalf("expected value for full rewrite, got %s", p2.Mode)
	}
}

func TestAutoDeterministic(t *testing.T) {
	cur := map[string]any{"x": "one", "y": "two", "z": "three three three three"}
	next := map[string]any{"x": "one", "y": "two", "z": "replaced"}
	first, err := Auto.Encode(cur, next)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for i := 0; i < 10; i++ {
		p, err := Auto.Encode(cur, next)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if p.Mode != first.Mode {
			t.Fatalf("mode flapped: %s then %s", first.Mode, p.Mode)
		}
	}
}

func TestWireRoundTrip(t *testing.T) {
	p, err := Delta.Encode("hel", "hello")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b, err := EncodeWire(p)
	if err != nil {
		t.Fatalf("wire encode: %v", err)
	}
	back, err := DecodeWire(b)
	if err != nil {
		t.Fatalf("wire decode: %v", err)
	}
	got, err := Decode("hel", back)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "hello" {
		t.Fatalf("expected hello, got %v", got)
	}
}

func TestWirePatchRoundTrip(t *testing.T) {
	cur := map[string]any{"a": "x", "b": "a long enough field to favor patching over replacement"}
	next := map[string]any{"a": "y", "b": "a long enough field to favor patching over replacement"}
	p, err := Patch.Encode(cur, next)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b, err := EncodeWire(p)
	if err != nil {
		t.Fatalf("wire encode: %v", err)
	}
	back, err := DecodeWire(b)
	if err != nil {
		t.Fatalf("wire decode: %v", err)
	}
	got, err := Decode(cur, back)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, next) {
		t.Fatalf("round trip mismatch: %#v", got)
	}
}
