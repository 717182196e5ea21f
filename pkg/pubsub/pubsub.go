// Package pubsub is the in-process event bus behind real-time
// subscriptions. Publishes on one channel are delivered to its
// subscribers in order; a slow subscriber drops events rather than
// stalling the publisher.
package pubsub

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sylphx/lens/pkg/logger"
	"github.com/sylphx/lens/pkg/telemetry"
	"github.com/sylphx/lens/pkg/utils"
)

// Event is one published message.
type Event struct {
	Channel   string `json:"channel"`
	Type      string `json:"type"`
	Payload   any    `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// Subscription receives events for one channel until Close.
type Subscription struct {
	ID      string
	Channel string
	C       <-chan Event

	bus  *Bus
	ch   chan Event
	once sync.Once
}

// Close unsubscribes and closes the event channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.closeSub(s)
	})
}

// Options tune the bus.
type Options struct {
	// Buffer is the per-subscriber channel depth.
	Buffer int
	// RPS/Burst optionally rate-limit publishes per channel. Zero
	// disables limiting.
	RPS   float64
	Burst int
}

// Bus fans events out to channel subscribers.
type Bus struct {
	mu       sync.Mutex
	subs     map[string][]*Subscription
	limiters map[string]*rate.Limiter
	opts     Options
	closed   bool
}

// New returns a bus. Buffer defaults to 64.
func New(opts Options) *Bus {
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	b := &Bus{
		subs: make(map[string][]*Subscription),
		opts: opts,
	}
	if opts.RPS > 0 {
		b.limiters = make(map[string]*rate.Limiter)
	}
	return b
}

// Subscribe registers a subscriber on channel.
func (b *Bus) Subscribe(channel string) *Subscription {
	ch := make(chan Event, b.opts.Buffer)
	sub := &Subscription{
		ID:      utils.GenSubID(),
		Channel: channel,
		C:       ch,
		bus:     b,
		ch:      ch,
	}
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], sub)
	b.mu.Unlock()
	telemetry.SubscriptionsActive.Inc()
	logger.Debug("subscribed", "channel", channel, "sub", sub.ID)
	return sub
}

// closeSub removes the subscription and closes its channel under the
// bus lock, so no publish can race the close.
func (b *Bus) closeSub(sub *Subscription) {
	b.mu.Lock()
	list := b.subs[sub.Channel]
	for i, s := range list {
		if s == sub {
			b.subs[sub.Channel] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(b.subs[sub.Channel]) == 0 {
		delete(b.subs, sub.Channel)
	}
	close(sub.ch)
	b.mu.Unlock()
	telemetry.SubscriptionsActive.Dec()
	logger.Debug("unsubscribed", "channel", sub.Channel, "sub", sub.ID)
}

// Publish delivers an event to every subscriber of channel. Delivery
// to each subscriber is non-blocking; a full subscriber buffer drops
// the event for that subscriber only.
func (b *Bus) Publish(channel, typ string, payload any) {
	ev := Event{
		Channel:   channel,
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now().UTC().UnixNano(),
	}
	if lim := b.limiter(channel); lim != nil {
		if err := lim.Wait(context.Background()); err != nil {
			return
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	telemetry.EventsPublished.WithLabelValues(telemetry.ChannelPrefix(channel)).Inc()
	// Sends are non-blocking, so delivering under the lock keeps
	// per-channel ordering without stalling other publishers for long.
	for _, sub := range b.subs[channel] {
		select {
		case sub.ch <- ev:
		default:
			telemetry.EventsDropped.Inc()
			logger.Warn("event_dropped", "channel", channel, "sub", sub.ID, "type", typ)
		}
	}
}

func (b *Bus) limiter(channel string) *rate.Limiter {
	if b.limiters == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	lim, ok := b.limiters[channel]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(b.opts.RPS), b.opts.Burst)
		b.limiters[channel] = lim
	}
	return lim
}

// SubscriberCount reports active subscribers on channel.
func (b *Bus) SubscriberCount(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[channel])
}

// Close drops all subscriptions and rejects further publishes.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*Subscription
	for _, list := range b.subs {
		all = append(all, list...)
	}
	b.subs = make(map[string][]*Subscription)
	for _, sub := range all {
		sub.once.Do(func() {
			close(sub.ch)
		})
	}
	b.mu.Unlock()
	for range all {
		telemetry.SubscriptionsActive.Dec()
	}
}
