// Package limiter provides the per-transfer byte-rate limiter backing the
// engine speed cap.
package limiter

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

const minBurst = 64 * 1024

// Limiter throttles a single transfer to a bytes-per-second budget. A zero
// budget means unlimited and costs one atomic load per wait. Safe for
// concurrent SetLimit while a transfer is waiting.
type Limiter struct {
	rl      *rate.Limiter
	enabled atomic.Bool
}

// New creates a limiter with the given budget in bytes/sec. 0 disables it.
func New(bytesPerSec int64) *Limiter {
	l := &Limiter{rl: rate.NewLimiter(rate.Inf, minBurst)}
	l.SetLimit(bytesPerSec)
	return l
}

// SetLimit changes the budget. Takes effect immediately, including for
// transfers currently blocked in WaitN.
func (l *Limiter) SetLimit(bytesPerSec int64) {
	if bytesPerSec <= 0 {
		l.enabled.Store(false)
		l.rl.SetLimit(rate.Inf)
		l.rl.SetBurst(minBurst)
		return
	}
	burst := int(bytesPerSec)
	if burst < minBurst {
		burst = minBurst
	}
	l.rl.SetBurst(burst)
	l.rl.SetLimit(rate.Limit(bytesPerSec))
	l.enabled.Store(true)
}

// WaitN blocks until n bytes may be consumed. Requests larger than the
// burst are split so a small cap still admits large reads.
func (l *Limiter) WaitN(ctx context.Context, n int) error {
	if !l.enabled.Load() || n <= 0 {
		return nil
	}
	for n > 0 {
		chunk := n
		if burst := l.rl.Burst(); chunk > burst {
			chunk = burst
		}
		if err := l.rl.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
