package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sylphx/lens/pkg/logger"
	"github.com/sylphx/lens/pkg/pubsub"
	"github.com/sylphx/lens/pkg/strategy"
	"github.com/sylphx/lens/pkg/subscribe"
	"github.com/sylphx/lens/pkg/telemetry"
	"github.com/sylphx/lens/pkg/utils"
)

// Flusher is implemented by writers that can push buffered frames to
// the client immediately.
type Flusher interface {
	Flush()
}

// Stream pumps one subscription to an SSE client, encoding each event
// with the update-strategy engine. It owns a fresh subscription id, so
// the first frame is always a full value.
type Stream struct {
	SubID   string
	Channel string

	// MaxPayload, when positive, drops encoded frames larger than this
	// many bytes instead of writing them. Set before calling Run.
	MaxPayload int

	sub     *pubsub.Subscription
	encoder *subscribe.Encoder
}

// NewStream resolves the request against the router and subscribes.
// The request must carry type subscription.
func NewStream(router *subscribe.Router, bus *pubsub.Bus, req Request, strat strategy.Strategy) (*Stream, *Error) {
	if req.Type != "subscription" {
		return nil, typeMismatch(req.Type, "subscribe")
	}
	if len(req.Path) == 0 {
		return nil, badRequest("empty path")
	}
	sub, channel := router.Subscribe(bus, req.Path, req.Input)
	if sub == nil {
		return nil, badRequest("cannot resolve a channel for path %v", req.Path)
	}
	return &Stream{
		SubID:   utils.GenSubID(),
		Channel: channel,
		sub:     sub,
		encoder: subscribe.NewEncoder(strat),
	}, nil
}

// Run writes SSE frames until the context ends or the bus closes the
// subscription. Each frame is one "data:" line holding the encoded
// update.
func (s *Stream) Run(ctx context.Context, w io.Writer) error {
	defer s.Close()
	if _, err := fmt.Fprintf(w, "event: subscribed\ndata: {\"channel\":%q,\"sub\":%q}\n\n", s.Channel, s.SubID); err != nil {
		return err
	}
	flush(w)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-s.sub.C:
			if !ok {
				return nil
			}
			frame, err := s.encoder.Encode(s.SubID, ev)
			if err != nil {
				return err
			}
			data, err := json.Marshal(frame)
			if err != nil {
				return err
			}
			if s.MaxPayload > 0 && len(data) > s.MaxPayload {
				telemetry.EventsDropped.Inc()
				logger.Warn("frame_over_payload_cap", "sub", s.SubID, "channel", s.Channel, "size", len(data), "cap", s.MaxPayload)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return err
			}
			flush(w)
		}
	}
}

// Close tears the subscription down and drops encoder history.
func (s *Stream) Close() {
	s.sub.Close()
	s.encoder.Drop(s.SubID)
}

func flush(w io.Writer) {
	if f, ok := w.(Flusher); ok {
		f.Flush()
	}
}
