// Package backoff computes reconnection delays for the tutor session.
package backoff

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultBase          = 1 * time.Second
	DefaultMaxAttempts   = 5
	DefaultRecoveryDelay = 1 * time.Second
)

// Policy describes how long to wait between connection attempts.
type Policy struct {
	Base          time.Duration
	MaxAttempts   int
	RecoveryDelay time.Duration
}

// Default returns the policy used when nothing is configured.
func Default() Policy {
	return Policy{
		Base:          DefaultBase,
		MaxAttempts:   DefaultMaxAttempts,
		RecoveryDelay: DefaultRecoveryDelay,
	}
}

// maxDelay is the largest representable delay; doubling saturates here.
const maxDelay = time.Duration(math.MaxInt64)

// Delay returns Base * 2^attempt. Growth is not capped; MaxAttempts bounds
// the total wait. A result too large for time.Duration saturates at
// maxDelay instead of wrapping negative.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.Base
	for i := 0; i < attempt; i++ {
		if d > maxDelay/2 {
			return maxDelay
		}
		d *= 2
	}
	return d
}

// Recovery is the fixed delay used after a clean server-side close.
func (p Policy) Recovery() time.Duration {
	return p.RecoveryDelay
}

// Exhausted reports whether no further attempt may be scheduled.
func (p Policy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}

func (p Policy) Validate() error {
	if p.Base <= 0 {
		return errors.Errorf("backoff: base delay must be positive, got %v", p.Base)
	}
	if p.MaxAttempts <= 0 {
		return errors.Errorf("backoff: max attempts must be positive, got %d", p.MaxAttempts)
	}
	if p.RecoveryDelay <= 0 {
		return errors.Errorf("backoff: recovery delay must be positive, got %v", p.RecoveryDelay)
	}
	return nil
}
