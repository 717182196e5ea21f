package app

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sylphx/lens/pkg/schema"
)

// buildRegistry declares the built-in chat resources served by lensd:
// sessions, their messages and the users who write them.
func buildRegistry() (*schema.Registry, error) {
	reg := schema.NewRegistry()

	session := &schema.Resource{
		Name:  "session",
		Table: "sessions",
		Fields: map[string]schema.Field{
			"id":      {Type: schema.TypeString},
			"title":   {Type: schema.TypeString, Required: true},
			"ownerId": {Type: schema.TypeString, Required: true},
			"status":  {Type: schema.TypeString},
		},
		Relationships: map[string]schema.Relationship{
			"messages": {Kind: schema.HasMany, Resource: "message", ForeignKey: "sessionId", OrderBy: "ts"},
			"owner":    {Kind: schema.BelongsTo, Resource: "user", ForeignKey: "ownerId"},
		},
	}

	message := &schema.Resource{
		Name:  "message",
		Table: "messages",
		Fields: map[string]schema.Field{
			"id":        {Type: schema.TypeString},
			"sessionId": {Type: schema.TypeString, Required: true},
			"authorId":  {Type: schema.TypeString},
			"content":   {Type: schema.TypeString, Required: true},
			"status":    {Type: schema.TypeString},
			"ts":        {Type: schema.TypeNumber},
		},
		Relationships: map[string]schema.Relationship{
			"session": {Kind: schema.BelongsTo, Resource: "session", ForeignKey: "sessionId"},
			"author":  {Kind: schema.BelongsTo, Resource: "user", ForeignKey: "authorId"},
		},
		Computed: map[string]schema.ComputedFunc{
			// preview truncates content for list views. Counted in
			// runes so multi-byte content is never cut mid-character.
			"preview": func(e map[string]any) any {
				s, _ := e["content"].(string)
				if runes := []rune(s); len(runes) > 120 {
					return string(runes[:120]) + "…"
				}
				return s
			},
		},
	}

	user := &schema.Resource{
		Name:  "user",
		Table: "users",
		Fields: map[string]schema.Field{
			"id":    {Type: schema.TypeString},
			"name":  {Type: schema.TypeString, Required: true},
			"email": {Type: schema.TypeString},
		},
		Relationships: map[string]schema.Relationship{
			"sessions": {Kind: schema.HasMany, Resource: "session", ForeignKey: "ownerId"},
		},
		Computed: map[string]schema.ComputedFunc{
			"initials": func(e map[string]any) any {
				name, _ := e["name"].(string)
				var b strings.Builder
				for _, part := range strings.Fields(name) {
					r, _ := utf8.DecodeRuneInString(part)
					b.WriteRune(unicode.ToUpper(r))
				}
				return b.String()
			},
		},
	}

	for _, r := range []*schema.Resource{session, message, user} {
		if err := reg.Register(r); err != nil {
			return nil, err
		}
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}
