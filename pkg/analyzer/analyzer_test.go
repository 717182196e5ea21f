package analyzer

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/sylphx/lens/pkg/schema"
)

func chatRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	resources := []*schema.Resource{
		{
			Name: "session",
			Fields: map[string]schema.Field{
				"id":    {Type: schema.TypeString},
				"title": {Type: schema.TypeString},
			},
			Relationships: map[string]schema.Relationship{
				"messages": {Kind: schema.HasMany, Resource: "message", ForeignKey: "sessionId"},
				"owner":    {Kind: schema.BelongsTo, Resource: "user", ForeignKey: "ownerId"},
			},
		},
		{
			Name: "message",
			Fields: map[string]schema.Field{
				"id":      {Type: schema.TypeString},
				"content": {Type: schema.TypeString},
			},
			Relationships: map[string]schema.Relationship{
				"author": {Kind: schema.BelongsTo, Resource: "user", ForeignKey: "authorId"},
				"tags":   {Kind: schema.ManyToMany, Resource: "tag", Junction: "message_tags", SourceKey: "messageId", TargetKey: "tagId"},
			},
		},
		{
			Name: "user",
			Fields: map[string]schema.Field{
				"id":   {Type: schema.TypeString},
				"name": {Type: schema.TypeString},
			},
		},
		{
			Name: "tag",
			Fields: map[string]schema.Field{
				"id":    {Type: schema.TypeString},
				"label": {Type: schema.TypeString},
			},
		},
	}
	for _, r := range resources {
		if err := reg.Register(r); err != nil {
			t.Fatalf("register %s: %v", r.Name, err)
		}
	}
	if err := reg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	return reg
}

func parse(t *testing.T, raw string) schema.Selection {
	t.Helper()
	sel, err := schema.ParseSelection(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("parse selection: %v", err)
	}
	return sel
}

func TestAnalyzeFlat(t *testing.T) {
	reg := chatRegistry(t)
	sessions, _ := reg.Get("session")

	a, err := Analyze(reg, sessions, nil)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if a.Depth != 0 || a.Relationships != 0 || a.EstimatedQueries != 1 || a.HasNPlusOne {
		t.Fatalf("flat query misread: %+v", a)
	}
	// 2^0 + 0 + 0
	if got := a.Complexity(); got != 1 {
		t.Fatalf("complexity = %d, want 1", got)
	}
}

func TestAnalyzeNested(t *testing.T) {
	reg := chatRegistry(t)
	sessions, _ := reg.Get("session")

	sel := parse(t, `{"id":true,"owner":{"select":{"name":true}},"messages":{"select":{"content":true,"author":{"select":{"name":true}}}}}`)
	a, err := Analyze(reg, sessions, sel)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if a.Depth != 2 {
		t.Fatalf("depth = %d, want 2", a.Depth)
	}
	if a.Relationships != 3 {
		t.Fatalf("relationships = %d, want 3", a.Relationships)
	}
	if a.EstimatedQueries != 4 {
		t.Fatalf("estimatedQueries = %d, want 4", a.EstimatedQueries)
	}
	if !a.HasNPlusOne {
		t.Fatalf("hasMany traversal must flag n+1")
	}
	d1 := a.RelationshipsByDepth[1]
	if len(d1) != 2 {
		t.Fatalf("depth-1 rels = %v", d1)
	}
	d2 := a.RelationshipsByDepth[2]
	if len(d2) != 1 || d2[0] != "message.author" {
		t.Fatalf("depth-2 rels = %v", d2)
	}
	// 2^2 + 5*3 + 10*1
	if got := a.Complexity(); got != 29 {
		t.Fatalf("complexity = %d, want 29", got)
	}
}

func TestDescribeSummary(t *testing.T) {
	reg := chatRegistry(t)
	sessions, _ := reg.Get("session")

	sel := parse(t, `{"id":true,"owner":{"select":{"name":true}},"messages":{"select":{"content":true,"author":{"select":{"name":true}}}}}`)
	a, err := Analyze(reg, sessions, sel)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	want := strings.Join([]string{
		"query session",
		"  depth: 2",
		"  relationships: 3",
		"    depth 1: messages, owner",
		"    depth 2: message.author",
		"  estimated queries: 4",
		"  n+1: yes",
		"  complexity: 29",
	}, "\n")
	if got := a.Describe(); got != want {
		t.Fatalf("describe:\n%s\nwant:\n%s", got, want)
	}
}

func TestAnalyzeBelongsToOnly(t *testing.T) {
	reg := chatRegistry(t)
	messages, _ := reg.Get("message")

	a, err := Analyze(reg, messages, parse(t, `{"author":{"select":{"name":true}}}`))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if a.HasNPlusOne {
		t.Fatalf("belongsTo alone must not flag n+1")
	}
}

func TestAnalyzeManyToManyFanout(t *testing.T) {
	reg := chatRegistry(t)
	messages, _ := reg.Get("message")

	a, err := Analyze(reg, messages, parse(t, `{"tags":{"select":{"label":true}}}`))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !a.HasNPlusOne {
		t.Fatalf("manyToMany must flag n+1")
	}
}

func TestAnalyzeUnknownField(t *testing.T) {
	reg := chatRegistry(t)
	sessions, _ := reg.Get("session")

	if _, err := Analyze(reg, sessions, parse(t, `["ghost"]`)); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	reg := chatRegistry(t)
	sessions, _ := reg.Get("session")

	sel := parse(t, `{"messages":{"select":{"author":{"select":{"name":true}}}},"owner":{"select":{"name":true}}}`)
	first, err := Analyze(reg, sessions, sel)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Analyze(reg, sessions, sel)
		if err != nil {
			t.Fatalf("analyze: %v", err)
		}
		if again.Describe() != first.Describe() {
			t.Fatalf("unstable analysis:\n%s\n%s", first.Describe(), again.Describe())
		}
	}
}
