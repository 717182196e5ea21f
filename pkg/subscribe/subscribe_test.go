package subscribe

import (
	"testing"
	"time"

	"github.com/sylphx/lens/pkg/pubsub"
	"github.com/sylphx/lens/pkg/strategy"
)

func TestDefaultChannel(t *testing.T) {
	cases := []struct {
		path  []string
		input map[string]any
		want  string
	}{
		{[]string{"message", "get"}, map[string]any{"id": "m1"}, "resource:message:m1"},
		{[]string{"message", "list"}, nil, "resource:message:list"},
		{[]string{"message"}, map[string]any{"id": ""}, "resource:message:list"},
		{[]string{"session"}, map[string]any{"filter": "x"}, "resource:session:list"},
		{nil, nil, ""},
	}
	for _, c := range cases {
		if got := DefaultChannel(c.path, c.input); got != c.want {
			t.Fatalf("DefaultChannel(%v, %v) = %q, want %q", c.path, c.input, got, c.want)
		}
	}
}

func TestExplicitChannelWins(t *testing.T) {
	r := NewRouter()
	r.Register("message", func(path []string, input map[string]any) string {
		return "custom:messages"
	})

	got := r.Resolve([]string{"message", "get"}, map[string]any{"id": "m1"})
	if got != "custom:messages" {
		t.Fatalf("explicit channel ignored, got %q", got)
	}
	if got := r.Resolve([]string{"session"}, map[string]any{"id": "s1"}); got != "resource:session:s1" {
		t.Fatalf("fallback broken, got %q", got)
	}
}

func TestRouterSubscribe(t *testing.T) {
	r := NewRouter()
	bus := pubsub.New(pubsub.Options{})
	defer bus.Close()

	sub, ch := r.Subscribe(bus, []string{"message"}, map[string]any{"id": "m1"})
	if sub == nil || ch != "resource:message:m1" {
		t.Fatalf("subscribe = %v %q", sub, ch)
	}
	defer sub.Close()

	bus.Publish("resource:message:m1", "mutation", map[string]any{"id": "m1"})
	select {
	case ev := <-sub.C:
		if ev.Channel != ch {
			t.Fatalf("wrong channel %q", ev.Channel)
		}
	case <-time.After(time.Second):
		t.Fatalf("no delivery")
	}
}

func TestEncoderFirstFrameIsFullValue(t *testing.T) {
	e := NewEncoder(nil)
	ev := pubsub.Event{
		Channel:   "resource:message:m1",
		Type:      "mutation",
		Payload:   map[string]any{"id": "m1", "content": "hi"},
		Timestamp: 42,
	}
	frame, err := e.Encode("sub-1", ev)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if frame.Update.Mode != strategy.ModeValue {
		t.Fatalf("first frame mode = %q, want value", frame.Update.Mode)
	}
	if frame.Timestamp != 42 || frame.Channel != ev.Channel {
		t.Fatalf("frame metadata lost: %+v", frame)
	}
}

func TestEncoderTracksPreviousPerSubscription(t *testing.T) {
	e := NewEncoder(nil)
	big := map[string]any{}
	for i := 0; i < 40; i++ {
		big[string(rune('a'+i%26))+string(rune('0'+i/26))] = "some reasonably long field value"
	}
	next := map[string]any{}
	for k, v := range big {
		next[k] = v
	}
	next["a0"] = "changed"

	if _, err := e.Encode("sub-1", pubsub.Event{Payload: big}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	second, err := e.Encode("sub-1", pubsub.Event{Payload: next})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if second.Update.Mode != strategy.ModePatch {
		t.Fatalf("small change should patch, got %q", second.Update.Mode)
	}

	// A different subscription has no history and gets a full value.
	other, err := e.Encode("sub-2", pubsub.Event{Payload: next})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if other.Update.Mode != strategy.ModeValue {
		t.Fatalf("fresh subscription mode = %q, want value", other.Update.Mode)
	}
}

func TestEncoderDropResetsHistory(t *testing.T) {
	e := NewEncoder(nil)
	if _, err := e.Encode("sub-1", pubsub.Event{Payload: "a"}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	appended, err := e.Encode("sub-1", pubsub.Event{Payload: "ab"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if appended.Update.Mode != strategy.ModeDelta {
		t.Fatalf("string append should delta, got %q", appended.Update.Mode)
	}

	e.Drop("sub-1")
	frame, err := e.Encode("sub-1", pubsub.Event{Payload: "abc"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if frame.Update.Mode != strategy.ModeValue {
		t.Fatalf("dropped history should force a full value, got %q", frame.Update.Mode)
	}
}
