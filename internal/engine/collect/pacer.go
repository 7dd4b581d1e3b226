package collect

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces the delay between list pages and scroll rounds.
// The first Wait returns immediately; later ones wait at least the base
// delay plus a random jitter.
type Pacer struct {
	limiter *rate.Limiter
	jitter  time.Duration
	started atomic.Bool
}

func NewPacer(delay, jitter time.Duration) *Pacer {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Pacer{limiter: rate.NewLimiter(limit, 1), jitter: jitter}
}

// Wait blocks until the next request may go out or ctx ends. A nil Pacer never waits.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return ctx.Err()
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	if first := !p.started.Swap(true); first || p.jitter <= 0 {
		return nil
	}
	t := time.NewTimer(rand.N(p.jitter))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
