package optimistic

import (
	"time"

	"github.com/sylphx/lens/pkg/logger"
	"github.com/sylphx/lens/pkg/pubsub"
)

// EffectKind enumerates the side effects an optimistic transition
// requests. Transitions never perform side effects themselves; they
// return effects as data and the runner executes them.
type EffectKind string

const (
	EffectPatchState      EffectKind = "PATCH_STATE"
	EffectScheduleTimeout EffectKind = "SCHEDULE_TIMEOUT"
	EffectCancelTimeout   EffectKind = "CANCEL_TIMEOUT"
	EffectEmitEvent       EffectKind = "EMIT_EVENT"
	EffectLog             EffectKind = "LOG"
)

// Effect is one requested side effect.
type Effect struct {
	Kind EffectKind

	// Session scopes every effect.
	Session string

	// PATCH_STATE payload.
	Projection *Projection

	// SCHEDULE_TIMEOUT / CANCEL_TIMEOUT target.
	OpID    uint64
	Timeout time.Duration

	// EMIT_EVENT payload.
	Channel   string
	EventType string
	Payload   any

	// LOG payload.
	Level   string
	Message string
	Fields  []any
}

// EffectRunner executes effects. Implementations must be safe for
// concurrent use.
type EffectRunner interface {
	Run(effects []Effect)
}

// BusRunner is the default runner: events go to the bus, logs to the
// process logger, state patches to the session channel. Timeout
// effects are bookkeeping for the manager's sweeper and need no
// external action here.
type BusRunner struct {
	Bus *pubsub.Bus
}

func (r *BusRunner) Run(effects []Effect) {
	for _, e := range effects {
		switch e.Kind {
		case EffectPatchState:
			if r.Bus != nil && e.Projection != nil {
				r.Bus.Publish("session:"+e.Session+":state", "state", *e.Projection)
			}
		case EffectEmitEvent:
			if r.Bus != nil {
				r.Bus.Publish(e.Channel, e.EventType, e.Payload)
			}
		case EffectLog:
			switch e.Level {
			case "warn":
				logger.Warn(e.Message, e.Fields...)
			case "error":
				logger.Error(e.Message, e.Fields...)
			default:
				logger.Debug(e.Message, e.Fields...)
			}
		case EffectScheduleTimeout, EffectCancelTimeout:
			// The sweeper derives timeouts from pending op timestamps.
		}
	}
}
