package schema

import (
	"encoding/json"
	"errors"
	"testing"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	user := &Resource{
		Name: "user",
		Fields: map[string]Field{
			"id":   {Type: TypeString},
			"name": {Type: TypeString, Required: true},
		},
		Relationships: map[string]Relationship{
			"messages": {Kind: HasMany, Resource: "message", ForeignKey: "userId"},
		},
	}
	message := &Resource{
		Name: "message",
		Fields: map[string]Field{
			"id":      {Type: TypeString},
			"content": {Type: TypeString, Required: true},
			"userId":  {Type: TypeString, Required: true},
			"pinned":  {Type: TypeBoolean},
		},
		Relationships: map[string]Relationship{
			"user": {Kind: BelongsTo, Resource: "user", ForeignKey: "userId"},
		},
		Computed: map[string]ComputedFunc{
			"preview": func(e map[string]any) any {
				s, _ := e["content"].(string)
				if len(s) > 5 {
					return s[:5]
				}
				return s
			},
		},
	}
	if err := reg.Register(user); err != nil {
		t.Fatalf("register user: %v", err)
	}
	if err := reg.Register(message); err != nil {
		t.Fatalf("register message: %v", err)
	}
	if err := reg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	return reg
}

func TestRegistryDuplicate(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&Resource{Name: "a"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := reg.Register(&Resource{Name: "a"}); err == nil {
		t.Fatalf("expected duplicate error")
	}
}

func TestRegistryDanglingRelationship(t *testing.T) {
	reg := NewRegistry()
	r := &Resource{
		Name: "a",
		Relationships: map[string]Relationship{
			"b": {Kind: HasMany, Resource: "nope"},
		},
	}
	if err := reg.Register(r); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Validate(); err == nil {
		t.Fatalf("expected dangling relationship error")
	}
}

func TestParseSelectionArrayForm(t *testing.T) {
	sel, err := ParseSelection(json.RawMessage(`["id","content"]`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(sel) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(sel))
	}
	if sel["content"] == nil || sel["content"].Select != nil {
		t.Fatalf("content should be a leaf")
	}
}

func TestParseSelectionObjectForm(t *testing.T) {
	raw := json.RawMessage(`{"id":true,"user":{"select":{"name":true}},"pinned":false}`)
	sel, err := ParseSelection(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := sel["pinned"]; ok {
		t.Fatalf("false entries must be dropped")
	}
	user := sel["user"]
	if user == nil || user.Select == nil {
		t.Fatalf("user should carry a nested selection")
	}
	if _, ok := user.Select["name"]; !ok {
		t.Fatalf("nested name missing")
	}
}

func TestParseSelectionMalformed(t *testing.T) {
	cases := []string{
		`"id"`,
		`[1,2]`,
		`{"id":"yes"}`,
		`{"user":{"select":{},"extra":true}}`,
		`{"user":{"pick":{}}}`,
	}
	for _, c := range cases {
		if _, err := ParseSelection(json.RawMessage(c)); err == nil {
			t.Fatalf("expected error for %s", c)
		}
	}
}

func TestSelectionCheck(t *testing.T) {
	reg := testRegistry(t)
	msg, _ := reg.Get("message")

	sel, err := ParseSelection(json.RawMessage(`{"id":true,"preview":true,"user":{"select":{"name":true}}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := sel.Check(reg, msg); err != nil {
		t.Fatalf("check: %v", err)
	}

	bad, _ := ParseSelection(json.RawMessage(`["id","bogus"]`))
	if err := bad.Check(reg, msg); err == nil {
		t.Fatalf("expected unknown field error")
	}

	nested, _ := ParseSelection(json.RawMessage(`{"content":{"select":{"x":true}}}`))
	if err := nested.Check(reg, msg); err == nil {
		t.Fatalf("expected non-relationship nesting error")
	}
}

func TestSelectionApply(t *testing.T) {
	entity := map[string]any{"id": "m1", "content": "hi", "userId": "u1", "pinned": true}
	sel, _ := ParseSelection(json.RawMessage(`["content"]`))
	out := sel.Apply(entity)
	if out["id"] != "m1" {
		t.Fatalf("id must always survive selection")
	}
	if out["content"] != "hi" {
		t.Fatalf("content missing")
	}
	if _, ok := out["pinned"]; ok {
		t.Fatalf("unselected field leaked")
	}

	if got := Selection(nil).Apply(entity); len(got) != 4 {
		t.Fatalf("nil selection must return entity unchanged")
	}
}

func TestValidateCreate(t *testing.T) {
	reg := testRegistry(t)
	msg, _ := reg.Get("message")

	good := map[string]any{"content": "hello", "userId": "u1"}
	if err := msg.ValidateCreate(good); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}

	err := msg.ValidateCreate(map[string]any{"content": 42, "extra": true})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Resource != "message" || len(verr.Problems) != 3 {
		t.Fatalf("error = %#v, want *ValidationError with 3 problems", err)
	}
	for _, want := range []string{"userId", "content", "extra"} {
		if !containsSub(err.Error(), want) {
			t.Fatalf("error %q should mention %s", err, want)
		}
	}
}

func TestValidateUpdate(t *testing.T) {
	reg := testRegistry(t)
	msg, _ := reg.Get("message")

	if err := msg.ValidateUpdate(map[string]any{"pinned": true}); err != nil {
		t.Fatalf("partial update rejected: %v", err)
	}
	if err := msg.ValidateUpdate(map[string]any{"pinned": "yes"}); err == nil {
		t.Fatalf("expected type mismatch error")
	}
	if err := msg.ValidateUpdate(map[string]any{"ghost": 1}); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func containsSub(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
