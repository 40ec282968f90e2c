package common

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrLockedOut is returned when a private request cannot wait out an active lockout.
var ErrLockedOut = errors.New("api lockout active")

// Guard is the single throttle shared by all requests of one client: a minimum
// inter-request interval plus an optional lockout deadline for private calls.
type Guard struct {
	limiter *rate.Limiter
	now     func() time.Time

	mu          sync.RWMutex
	lockedUntil time.Time
	reason      string
}

// NewGuard creates a guard that lets one request through every minInterval.
func NewGuard(minInterval time.Duration) *Guard {
	lim := rate.NewLimiter(rate.Inf, 1)
	if minInterval > 0 {
		lim = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	return &Guard{
		limiter: lim,
		now:     time.Now,
	}
}

// WaitInterval blocks until the minimum interval since the previous request has elapsed.
func (g *Guard) WaitInterval(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}

// Lockout defers private requests for d. An existing later deadline is kept.
func (g *Guard) Lockout(d time.Duration, reason string) time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()

	until := g.now().Add(d)
	if until.After(g.lockedUntil) {
		g.lockedUntil = until
		g.reason = reason
	}
	return g.lockedUntil
}

// LockedUntil reports the current lockout deadline and its reason; zero when none.
func (g *Guard) LockedUntil() (time.Time, string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.lockedUntil.After(g.now()) {
		return time.Time{}, ""
	}
	return g.lockedUntil, g.reason
}

// WaitLockout blocks until an active lockout expires. When the context deadline
// falls before the lockout ends it fails immediately with ErrLockedOut.
func (g *Guard) WaitLockout(ctx context.Context) error {
	until, reason := g.LockedUntil()
	if until.IsZero() {
		return nil
	}
	if dl, ok := ctx.Deadline(); ok && dl.Before(until) {
		return fmt.Errorf("%w (%s) until %s", ErrLockedOut, reason, until.Format(time.RFC3339))
	}

	timer := time.NewTimer(until.Sub(g.now()))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
