// Package countdown drives wall-clock deadlines for reservations and
// waitlist offers. An Engine tracks one (start, deadline) window,
// reporting remaining time and elapsed fraction on a fixed tick and
// raising an edge-triggered expiry callback exactly once.
package countdown

import (
	"sync"
	"time"
)

// DefaultInterval is the tick period used unless overridden.
const DefaultInterval = time.Second

// TickFunc receives the remaining time and the elapsed fraction of the
// window, clamped to [0, 1].
type TickFunc func(remaining time.Duration, fraction float64)

// Engine evaluates one deadline window on a fixed tick. Callbacks run
// on the engine's own goroutine and are serialized with Stop: once
// Stop returns, no further callback is invoked. Callbacks must not
// call Stop on their own engine.
type Engine struct {
	start    time.Time
	deadline time.Time
	interval time.Duration
	now      func() time.Time
	onTick   TickFunc
	onExpire func()

	mu        sync.Mutex
	running   bool
	stopped   bool
	signaled  bool
	remaining time.Duration
	fraction  float64
	stop      chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithInterval overrides the tick period.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithTick sets the per-tick callback.
func WithTick(fn TickFunc) Option {
	return func(e *Engine) { e.onTick = fn }
}

// WithExpire sets the edge-triggered expiry callback.
func WithExpire(fn func()) Option {
	return func(e *Engine) { e.onExpire = fn }
}

// New builds an engine for the window [start, deadline]. It does not
// begin ticking until Start is called.
func New(start, deadline time.Time, opts ...Option) *Engine {
	e := &Engine{
		start:    start,
		deadline: deadline,
		interval: DefaultInterval,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start performs an immediate first evaluation, then ticks at the
// configured interval. A deadline already in the past is detected by
// that first evaluation, not after a full tick; this covers resuming a
// persisted reservation whose window has already closed. If either
// timestamp is unset the engine does nothing at all. Start is
// idempotent.
func (e *Engine) Start() {
	if e.start.IsZero() || e.deadline.IsZero() {
		return
	}
	e.mu.Lock()
	if e.running || e.stopped {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	if !e.evaluate() {
		return
	}
	go e.run()
}

func (e *Engine) run() {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			if !e.evaluate() {
				return
			}
		}
	}
}

// evaluate recomputes the window and dispatches at most one callback.
// It returns false once the engine has nothing further to do. The
// mutex is held across callback invocation so that Stop, which takes
// the same mutex, cannot return while a callback is in flight.
func (e *Engine) evaluate() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped || e.signaled {
		return false
	}

	now := e.now()
	remaining := e.deadline.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	total := e.deadline.Sub(e.start)
	if total < 0 {
		total = 0
	}
	fraction := 0.0
	if total > 0 {
		fraction = float64(total-remaining) / float64(total)
		if fraction < 0 {
			fraction = 0
		}
		if fraction > 1 {
			fraction = 1
		}
	}
	e.remaining = remaining
	e.fraction = fraction

	if remaining <= 0 {
		e.signaled = true
		if e.onExpire != nil {
			e.onExpire()
		}
		return false
	}
	if e.onTick != nil {
		e.onTick(remaining, fraction)
	}
	return true
}

// Stop halts the engine. After Stop returns no callback will be
// invoked, including evaluations already scheduled. Stop is idempotent
// and safe to call on an engine that has already expired.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	e.stopped = true
	close(e.stop)
}

// Remaining returns the time left as of the last evaluation.
func (e *Engine) Remaining() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remaining
}

// Fraction returns the elapsed fraction as of the last evaluation,
// clamped to [0, 1].
func (e *Engine) Fraction() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fraction
}

// Expired reports whether the expiry callback has been signaled.
func (e *Engine) Expired() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signaled
}
