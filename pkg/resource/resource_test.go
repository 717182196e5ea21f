package resource

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sylphx/lens/pkg/pubsub"
	"github.com/sylphx/lens/pkg/schema"
	"github.com/sylphx/lens/pkg/store"
	"github.com/sylphx/lens/pkg/subscribe"
)

func chatService(t *testing.T, hooks schema.Hooks) (*Service, *pubsub.Bus) {
	t.Helper()
	reg := schema.NewRegistry()
	resources := []*schema.Resource{
		{
			Name: "session",
			Fields: map[string]schema.Field{
				"id":    {Type: schema.TypeString},
				"title": {Type: schema.TypeString, Required: true},
			},
			Relationships: map[string]schema.Relationship{
				"messages": {Kind: schema.HasMany, Resource: "message", ForeignKey: "sessionId", OrderBy: "seq"},
			},
		},
		{
			Name: "message",
			Fields: map[string]schema.Field{
				"id":        {Type: schema.TypeString},
				"content":   {Type: schema.TypeString, Required: true},
				"sessionId": {Type: schema.TypeString, Required: true},
				"authorId":  {Type: schema.TypeString},
				"seq":       {Type: schema.TypeNumber},
			},
			Relationships: map[string]schema.Relationship{
				"author":  {Kind: schema.BelongsTo, Resource: "user", ForeignKey: "authorId"},
				"session": {Kind: schema.BelongsTo, Resource: "session", ForeignKey: "sessionId"},
				"tags":    {Kind: schema.ManyToMany, Resource: "tag", Junction: "message_tag", SourceKey: "messageId", TargetKey: "tagId"},
			},
			Computed: map[string]schema.ComputedFunc{
				"upper": func(e map[string]any) any {
					s, _ := e["content"].(string)
					out := make([]byte, len(s))
					for i := 0; i < len(s); i++ {
						c := s[i]
						if c >= 'a' && c <= 'z' {
							c -= 32
						}
						out[i] = c
					}
					return string(out)
				},
			},
			Hooks: hooks,
		},
		{
			Name: "user",
			Fields: map[string]schema.Field{
				"id":   {Type: schema.TypeString},
				"name": {Type: schema.TypeString, Required: true},
			},
		},
		{
			Name: "tag",
			Fields: map[string]schema.Field{
				"id":    {Type: schema.TypeString},
				"label": {Type: schema.TypeString},
			},
		},
		{
			Name: "message_tag",
			Fields: map[string]schema.Field{
				"id":        {Type: schema.TypeString},
				"messageId": {Type: schema.TypeString},
				"tagId":     {Type: schema.TypeString},
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
	bus := pubsub.New(pubsub.Options{})
	t.Cleanup(bus.Close)
	svc, err := NewService(Deps{Registry: reg, Store: store.NewMemory(), Bus: bus})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, bus
}

func sel(t *testing.T, raw string) schema.Selection {
	t.Helper()
	s, err := schema.ParseSelection(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("parse selection: %v", err)
	}
	return s
}

func recvEvent(t *testing.T, sub *pubsub.Subscription) pubsub.Event {
	t.Helper()
	select {
	case ev := <-sub.C:
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no event on %s", sub.Channel)
		return pubsub.Event{}
	}
}

func TestCreateAndGetByID(t *testing.T) {
	svc, _ := chatService(t, schema.Hooks{})
	api, err := svc.Resource("message")
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	ctx := context.Background()

	created, err := api.Create(ctx, map[string]any{"content": "hi", "sessionId": "s1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("id not generated")
	}

	got, err := api.GetByID(ctx, id, nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got["content"] != "hi" {
		t.Fatalf("got %v", got)
	}

	missing, err := api.GetByID(ctx, "nope", nil)
	if err != nil || missing != nil {
		t.Fatalf("missing id must be (nil, nil), got %v %v", missing, err)
	}
}

func TestCreateValidates(t *testing.T) {
	svc, _ := chatService(t, schema.Hooks{})
	api, _ := svc.Resource("message")
	if _, err := api.Create(context.Background(), map[string]any{"content": "hi"}); err == nil {
		t.Fatalf("missing sessionId must fail validation")
	}
}

func TestSelectionProjection(t *testing.T) {
	svc, _ := chatService(t, schema.Hooks{})
	ctx := context.Background()
	users, _ := svc.Resource("user")
	messages, _ := svc.Resource("message")

	if _, err := users.Create(ctx, map[string]any{"id": "u1", "name": "ada"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := messages.Create(ctx, map[string]any{"id": "m1", "content": "hello", "sessionId": "s1", "authorId": "u1"}); err != nil {
		t.Fatalf("create message: %v", err)
	}

	got, err := messages.GetByID(ctx, "m1", sel(t, `{"content":true,"upper":true,"author":{"select":{"name":true}}}`))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got["upper"] != "HELLO" {
		t.Fatalf("computed field missing: %v", got)
	}
	author, ok := got["author"].(map[string]any)
	if !ok || author["name"] != "ada" {
		t.Fatalf("author not resolved: %v", got["author"])
	}
	if _, leaked := got["sessionId"]; leaked {
		t.Fatalf("unselected field leaked: %v", got)
	}
	if got["id"] != "m1" {
		t.Fatalf("id must survive projection")
	}
}

func TestHasManyResolution(t *testing.T) {
	svc, _ := chatService(t, schema.Hooks{})
	ctx := context.Background()
	sessions, _ := svc.Resource("session")
	messages, _ := svc.Resource("message")

	if _, err := sessions.Create(ctx, map[string]any{"id": "s1", "title": "chat"}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	for i, content := range []string{"first", "second"} {
		_, err := messages.Create(ctx, map[string]any{
			"content": content, "sessionId": "s1", "seq": float64(i),
		})
		if err != nil {
			t.Fatalf("create message: %v", err)
		}
	}

	got, err := sessions.GetByID(ctx, "s1", sel(t, `{"title":true,"messages":{"select":{"content":true}}}`))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	msgs, ok := got["messages"].([]map[string]any)
	if !ok || len(msgs) != 2 {
		t.Fatalf("messages not resolved: %v", got["messages"])
	}
	if msgs[0]["content"] != "first" || msgs[1]["content"] != "second" {
		t.Fatalf("order wrong: %v", msgs)
	}
}

func TestManyToManyResolution(t *testing.T) {
	svc, _ := chatService(t, schema.Hooks{})
	ctx := context.Background()
	messages, _ := svc.Resource("message")
	tags, _ := svc.Resource("tag")
	links, _ := svc.Resource("message_tag")

	if _, err := messages.Create(ctx, map[string]any{"id": "m1", "content": "x", "sessionId": "s1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, tag := range []string{"t1", "t2"} {
		if _, err := tags.Create(ctx, map[string]any{"id": tag, "label": tag}); err != nil {
			t.Fatalf("create tag: %v", err)
		}
		if _, err := links.Create(ctx, map[string]any{"messageId": "m1", "tagId": tag}); err != nil {
			t.Fatalf("create link: %v", err)
		}
	}

	got, err := messages.GetByID(ctx, "m1", sel(t, `{"tags":{"select":{"label":true}}}`))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resolved, ok := got["tags"].([]map[string]any)
	if !ok || len(resolved) != 2 {
		t.Fatalf("tags not resolved: %v", got["tags"])
	}
}

func TestUpdateAndDelete(t *testing.T) {
	svc, _ := chatService(t, schema.Hooks{})
	api, _ := svc.Resource("message")
	ctx := context.Background()

	if _, err := api.Create(ctx, map[string]any{"id": "m1", "content": "old", "sessionId": "s1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	updated, err := api.Update(ctx, "m1", map[string]any{"content": "new"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated["content"] != "new" || updated["sessionId"] != "s1" {
		t.Fatalf("merge wrong: %v", updated)
	}

	// The loader cache must reflect the mutation immediately.
	got, _ := api.GetByID(ctx, "m1", nil)
	if got["content"] != "new" {
		t.Fatalf("stale loader cache: %v", got)
	}

	if _, err := api.Update(ctx, "ghost", map[string]any{"content": "x"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("update missing = %v, want ErrNotFound", err)
	}

	if err := api.Delete(ctx, "m1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	gone, err := api.GetByID(ctx, "m1", nil)
	if err != nil || gone != nil {
		t.Fatalf("deleted entity still visible: %v %v", gone, err)
	}
	if err := api.Delete(ctx, "m1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("delete missing = %v, want ErrNotFound", err)
	}
}

func TestHooksRunAndSkip(t *testing.T) {
	var calls []string
	hooks := schema.Hooks{
		BeforeCreate: func(ctx context.Context, data map[string]any) (map[string]any, error) {
			calls = append(calls, "beforeCreate")
			data["content"] = data["content"].(string) + "!"
			return data, nil
		},
		AfterCreate: func(ctx context.Context, entity map[string]any) error {
			calls = append(calls, "afterCreate")
			return nil
		},
		BeforeDelete: func(ctx context.Context, id string) error {
			calls = append(calls, "beforeDelete")
			return errors.New("vetoed")
		},
	}
	svc, _ := chatService(t, hooks)
	api, _ := svc.Resource("message")
	ctx := context.Background()

	created, err := api.Create(ctx, map[string]any{"id": "m1", "content": "hi", "sessionId": "s1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created["content"] != "hi!" {
		t.Fatalf("beforeCreate transform lost: %v", created)
	}
	if len(calls) != 2 || calls[0] != "beforeCreate" || calls[1] != "afterCreate" {
		t.Fatalf("hook order: %v", calls)
	}

	if err := api.Delete(ctx, "m1"); err == nil {
		t.Fatalf("beforeDelete veto ignored")
	}
	if got, _ := api.GetByID(ctx, "m1", nil); got == nil {
		t.Fatalf("vetoed delete removed the entity")
	}

	if err := api.Delete(ctx, "m1", MutateOptions{SkipHooks: true}); err != nil {
		t.Fatalf("skipHooks delete: %v", err)
	}
}

func TestMutationEvents(t *testing.T) {
	svc, bus := chatService(t, schema.Hooks{})
	api, _ := svc.Resource("message")
	ctx := context.Background()

	createdSub := bus.Subscribe("resource:message:created")
	defer createdSub.Close()
	listSub := bus.Subscribe("resource:message:list")
	defer listSub.Close()

	if _, err := api.Create(ctx, map[string]any{"id": "m1", "content": "x", "sessionId": "s1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	ev := recvEvent(t, createdSub)
	if ev.Type != "mutation" {
		t.Fatalf("event type = %q", ev.Type)
	}
	recvEvent(t, listSub)

	itemSub, err := api.Subscribe("m1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer itemSub.Close()
	updatedSub := bus.Subscribe("resource:message:m1:updated")
	defer updatedSub.Close()

	if _, err := api.Update(ctx, "m1", map[string]any{"content": "y"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	recvEvent(t, updatedSub)
	ev = recvEvent(t, itemSub)
	payload, ok := ev.Payload.(map[string]any)
	if !ok || payload["content"] != "y" {
		t.Fatalf("item event payload: %v", ev.Payload)
	}

	deletedSub := bus.Subscribe("resource:message:m1:deleted")
	defer deletedSub.Close()
	if err := api.Delete(ctx, "m1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ev = recvEvent(t, deletedSub)
	if ev.Payload.(map[string]any)["id"] != "m1" {
		t.Fatalf("deleted payload: %v", ev.Payload)
	}
}

func TestCustomChannelFuncSharedWithRouter(t *testing.T) {
	reg := schema.NewRegistry()
	if err := reg.Register(&schema.Resource{
		Name: "note",
		Fields: map[string]schema.Field{
			"id":   {Type: schema.TypeString},
			"text": {Type: schema.TypeString},
		},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	custom := func(path []string, input map[string]any) string {
		if len(path) == 0 {
			return ""
		}
		if input != nil {
			if id, ok := input["id"].(string); ok && id != "" {
				return "tenant-a/" + path[0] + "/" + id
			}
		}
		return "tenant-a/" + path[0]
	}

	bus := pubsub.New(pubsub.Options{})
	t.Cleanup(bus.Close)
	svc, err := NewService(Deps{Registry: reg, Store: store.NewMemory(), Bus: bus, Channels: custom})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	router := subscribe.NewRouterWith(svc.Channels())

	listSub, ch := router.Subscribe(bus, []string{"note"}, nil)
	if ch != "tenant-a/note" {
		t.Fatalf("list channel = %q", ch)
	}
	defer listSub.Close()
	itemSub, ch := router.Subscribe(bus, []string{"note"}, map[string]any{"id": "n1"})
	if ch != "tenant-a/note/n1" {
		t.Fatalf("item channel = %q", ch)
	}
	defer itemSub.Close()

	api, _ := svc.Resource("note")
	ctx := context.Background()
	if _, err := api.Create(ctx, map[string]any{"id": "n1", "text": "a"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	recvEvent(t, listSub)

	if _, err := api.Update(ctx, "n1", map[string]any{"text": "b"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	ev := recvEvent(t, itemSub)
	if ev.Payload.(map[string]any)["text"] != "b" {
		t.Fatalf("item payload: %v", ev.Payload)
	}
}

func TestLoaderBatchesSiblingLookups(t *testing.T) {
	svc, _ := chatService(t, schema.Hooks{})
	ctx := context.Background()
	users, _ := svc.Resource("user")
	messages, _ := svc.Resource("message")
	sessions, _ := svc.Resource("session")

	if _, err := sessions.Create(ctx, map[string]any{"id": "s1", "title": "chat"}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := users.Create(ctx, map[string]any{"id": "u1", "name": "ada"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	for i := 0; i < 3; i++ {
		_, err := messages.Create(ctx, map[string]any{
			"content": "m", "sessionId": "s1", "authorId": "u1", "seq": float64(i),
		})
		if err != nil {
			t.Fatalf("create message: %v", err)
		}
	}

	got, err := sessions.GetByID(ctx, "s1", sel(t, `{"messages":{"select":{"author":{"select":{"name":true}}}}}`))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	msgs := got["messages"].([]map[string]any)
	if len(msgs) != 3 {
		t.Fatalf("messages = %d", len(msgs))
	}
	for _, m := range msgs {
		author, ok := m["author"].(map[string]any)
		if !ok || author["name"] != "ada" {
			t.Fatalf("author not resolved: %v", m)
		}
	}
}
