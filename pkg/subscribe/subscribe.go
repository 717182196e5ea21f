// Package subscribe maps query paths onto bus channels and encodes
// outgoing events with the update-strategy engine. Explicitly declared
// subscriptions always win over the derived defaults.
package subscribe

import (
	"sync"

	"github.com/sylphx/lens/pkg/logger"
	"github.com/sylphx/lens/pkg/pubsub"
	"github.com/sylphx/lens/pkg/strategy"
)

// ChannelFunc derives the channel for a subscription request from the
// query path and its input.
type ChannelFunc func(path []string, input map[string]any) string

// DefaultChannel is the convention used when a resource declares no
// explicit channel: an id input pins the item channel, anything else
// is the list channel.
func DefaultChannel(path []string, input map[string]any) string {
	if len(path) == 0 {
		return ""
	}
	name := path[0]
	if input != nil {
		if id, ok := input["id"].(string); ok && id != "" {
			return "resource:" + name + ":" + id
		}
	}
	return "resource:" + name + ":list"
}

// Router resolves subscription requests to channels. Register pins an
// explicit ChannelFunc per path head; unregistered paths fall back to
// the router's naming function. The same function must be handed to
// the mutation publisher, or published events land on channels no
// subscription resolves to.
type Router struct {
	fallback ChannelFunc

	mu       sync.RWMutex
	explicit map[string]ChannelFunc
}

func NewRouter() *Router {
	return NewRouterWith(DefaultChannel)
}

// NewRouterWith builds a router over a custom naming function.
func NewRouterWith(fn ChannelFunc) *Router {
	if fn == nil {
		fn = DefaultChannel
	}
	return &Router{fallback: fn, explicit: make(map[string]ChannelFunc)}
}

// Register pins an explicit channel function for a path head.
func (r *Router) Register(head string, fn ChannelFunc) {
	r.mu.Lock()
	r.explicit[head] = fn
	r.mu.Unlock()
}

// Resolve returns the channel for a request.
func (r *Router) Resolve(path []string, input map[string]any) string {
	if len(path) == 0 {
		return ""
	}
	r.mu.RLock()
	fn, ok := r.explicit[path[0]]
	r.mu.RUnlock()
	if ok {
		ch := fn(path, input)
		logger.Debug("channel_resolved", "path", path[0], "channel", ch, "explicit", true)
		return ch
	}
	return r.fallback(path, input)
}

// AutoPublish announces a successful mutation on the channel the
// naming function derives for path and input. Subscriptions resolved
// through the same function are guaranteed to see it.
func AutoPublish(bus *pubsub.Bus, fn ChannelFunc, path []string, input map[string]any, result any) {
	if bus == nil {
		return
	}
	if fn == nil {
		fn = DefaultChannel
	}
	if ch := fn(path, input); ch != "" {
		bus.Publish(ch, "mutation", result)
	}
}

// Subscribe resolves the channel and opens a bus subscription on it.
func (r *Router) Subscribe(bus *pubsub.Bus, path []string, input map[string]any) (*pubsub.Subscription, string) {
	ch := r.Resolve(path, input)
	if ch == "" {
		return nil, ""
	}
	return bus.Subscribe(ch), ch
}

// Frame is one encoded subscription delivery.
type Frame struct {
	Channel   string           `json:"channel"`
	Type      string           `json:"type"`
	Update    strategy.Payload `json:"update"`
	Timestamp int64            `json:"timestamp"`
}

// Encoder turns raw bus events into strategy-encoded frames for one
// client. The previous value is tracked per subscription id, so the
// first delivery on each subscription is always a full value.
type Encoder struct {
	strat strategy.Strategy

	mu   sync.Mutex
	prev map[string]any
}

// NewEncoder builds an encoder around a strategy. A nil strategy uses
// Auto.
func NewEncoder(strat strategy.Strategy) *Encoder {
	if strat == nil {
		strat = strategy.Auto
	}
	return &Encoder{strat: strat, prev: make(map[string]any)}
}

// Encode produces the frame for one event delivered on subID.
func (e *Encoder) Encode(subID string, ev pubsub.Event) (Frame, error) {
	e.mu.Lock()
	prev := e.prev[subID]
	e.mu.Unlock()

	payload, err := e.strat.Encode(prev, ev.Payload)
	if err != nil {
		return Frame{}, err
	}

	e.mu.Lock()
	e.prev[subID] = ev.Payload
	e.mu.Unlock()

	return Frame{
		Channel:   ev.Channel,
		Type:      ev.Type,
		Update:    payload,
		Timestamp: ev.Timestamp,
	}, nil
}

// Drop forgets the previous value for a subscription.
func (e *Encoder) Drop(subID string) {
	e.mu.Lock()
	delete(e.prev, subID)
	e.mu.Unlock()
}
