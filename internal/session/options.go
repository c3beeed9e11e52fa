package session

import (
	"log/slog"

	"github.com/code-tutor/tutor/internal/backoff"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const defaultSendBuffer = 64

type options struct {
	id         string
	policy     backoff.Policy
	log        *slog.Logger
	sendBuffer int
	limiter    *rate.Limiter
}

// Option configures a Session.
type Option func(*options)

// WithBackoff sets the reconnect policy.
func WithBackoff(p backoff.Policy) Option {
	return func(o *options) { o.policy = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithSendBuffer sets how many outbound messages may wait for the writer.
func WithSendBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.sendBuffer = n
		}
	}
}

// WithRateLimit rejects intents beyond perSecond (with the given burst).
// A non-positive rate disables the limit.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *options) {
		if perSecond <= 0 {
			o.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithID overrides the generated session id.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

func defaultOptions() options {
	return options{
		id:         uuid.NewString(),
		policy:     backoff.Default(),
		sendBuffer: defaultSendBuffer,
	}
}
