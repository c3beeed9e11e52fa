package session

import (
	"log/slog"

	"github.com/code-tutor/tutor/internal/metrics"
)

type signalHandler interface {
	handleSignal(ev Event)
}

// Router hands inbound events to the handler registered for their kind.
// Connection signals go to the lifecycle manager instead. It holds no
// state beyond its handler table.
type Router struct {
	handlers Handlers
	signals  signalHandler
	deliver  func(func())
	log      *slog.Logger
}

func newRouter(h Handlers, signals signalHandler, deliver func(func()), log *slog.Logger) *Router {
	return &Router{
		handlers: h,
		signals:  signals,
		deliver:  deliver,
		log:      log,
	}
}

// Route dispatches one event. Unknown kinds are dropped.
func (r *Router) Route(ev Event) {
	switch ev.Kind {
	case EventOutput:
		r.emit(ev, r.handlers.OnOutput)
	case EventRuntimeError:
		r.emit(ev, r.handlers.OnError)
	case EventExplanation:
		r.emit(ev, r.handlers.OnExplanation)
	case EventOpened, EventClosed, EventTransportError:
		r.signals.handleSignal(ev)
	default:
		r.log.Debug("dropping unknown event", "type", ev.Text, "gen", ev.Gen)
	}
}

func (r *Router) emit(ev Event, fn func(string)) {
	metrics.EventsRouted.WithLabelValues(ev.Kind.String()).Inc()
	if fn == nil {
		return
	}
	text := ev.Text
	r.deliver(func() { fn(text) })
}
