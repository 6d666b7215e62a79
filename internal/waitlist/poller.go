// Package waitlist maintains a live view of the user's waitlist
// standing for one event by polling the booking service on a fixed
// interval and diffing consecutive snapshots into typed transition
// callbacks. The transport is plain polling; the transition contract
// is the invariant.
package waitlist

import (
	"context"
	"errors"
	"sync"
	"time"

	"ticketflow/internal/api"
	"ticketflow/internal/models"
)

// DefaultInterval is the poll period used unless overridden.
const DefaultInterval = 5 * time.Second

// Fetcher is the slice of the gateway client the poller needs.
type Fetcher interface {
	GetWaitlistPosition(ctx context.Context, eventID string) (*models.WaitlistEntry, error)
}

// Config holds poller options. All callbacks default to no-ops and run
// on the poller's fetch goroutine after the snapshot has been swapped.
type Config struct {
	Interval time.Duration

	// Authorized gates polling on authentication state. When it
	// reports false the poller clears its snapshot and stops, matching
	// the page lifecycle: polling runs only while signed in.
	Authorized func() bool

	// OnStatusChange fires on every observed status transition,
	// including first sight of an entry (prev is nil then).
	OnStatusChange func(current, previous *models.WaitlistEntry)

	// OnOffer fires when the user is promoted from waiting to offered.
	OnOffer func(current *models.WaitlistEntry)

	// OnOfferExpired fires when an offered user is recycled back to
	// waiting.
	OnOfferExpired func(current *models.WaitlistEntry)
}

// Poller polls one (user, event) waitlist entry. Start is idempotent;
// Stop is deterministic and discards any fetch still in flight.
type Poller struct {
	client  Fetcher
	eventID string
	cfg     Config

	mu      sync.Mutex
	running bool
	gen     int
	status  *models.WaitlistEntry
	errMsg  string
	loading bool
	stop    chan struct{}
	kick    chan struct{}
}

// New builds a poller for one event.
func New(client Fetcher, eventID string, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Poller{
		client:  client,
		eventID: eventID,
		cfg:     cfg,
		loading: true,
		kick:    make(chan struct{}, 1),
	}
}

// Start begins polling: an immediate fetch first, then one per
// interval. It refuses to run without an event ID or while
// unauthenticated, and is a no-op if polling is already active.
func (p *Poller) Start(ctx context.Context) error {
	if p.eventID == "" {
		return errors.New("event ID is required")
	}
	if p.cfg.Authorized != nil && !p.cfg.Authorized() {
		return models.ErrNotAuthenticated
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.gen++
	gen := p.gen
	p.stop = make(chan struct{})
	stop := p.stop
	p.mu.Unlock()

	go p.run(ctx, gen, stop)
	return nil
}

func (p *Poller) run(ctx context.Context, gen int, stop chan struct{}) {
	p.fetch(ctx, gen)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			p.Stop()
			return
		case <-p.kick:
			p.fetch(ctx, gen)
		case <-ticker.C:
			p.fetch(ctx, gen)
		}
	}
}

// Stop halts polling. Responses from fetches already in flight are
// discarded; no snapshot write or callback happens for them.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	p.gen++
	close(p.stop)
	p.stop = nil
}

// Refresh forces an immediate out-of-band fetch without disturbing the
// interval schedule. A no-op while stopped.
func (p *Poller) Refresh() {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	if !running {
		return
	}
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Status returns the latest snapshot, nil when the user is not on the
// waitlist.
func (p *Poller) Status() *models.WaitlistEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Err returns the retained message from the last failed fetch, empty
// after any successful or expected-absence fetch.
func (p *Poller) Err() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errMsg
}

// Loading reports whether the first fetch has completed yet.
func (p *Poller) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// Polling reports whether the poll loop is active.
func (p *Poller) Polling() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// fetch performs one poll and applies the snapshot diff. gen guards
// against writes from fetches that were in flight when Stop (or a
// restart) bumped the generation.
func (p *Poller) fetch(ctx context.Context, gen int) {
	if p.cfg.Authorized != nil && !p.cfg.Authorized() {
		p.mu.Lock()
		if gen == p.gen {
			p.status = nil
			p.loading = false
		}
		p.mu.Unlock()
		p.Stop()
		return
	}

	entry, err := p.client.GetWaitlistPosition(ctx, p.eventID)

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.loading = false

	if err != nil {
		// Absence from the waitlist is an expected state, not an
		// error. Anything else is retained without stopping the loop.
		if errors.Is(err, models.ErrNotOnWaitlist) || api.IsNotOnWaitlistMessage(err.Error()) {
			p.status = nil
			p.errMsg = ""
		} else {
			p.errMsg = err.Error()
		}
		p.mu.Unlock()
		return
	}

	previous := p.status
	p.status = entry
	p.errMsg = ""
	p.mu.Unlock()

	p.dispatch(entry, previous)
}

// dispatch fires transition callbacks for one snapshot swap. Each
// transition fires exactly once because the swap happens under the
// lock before callbacks run.
func (p *Poller) dispatch(current, previous *models.WaitlistEntry) {
	if current == nil {
		// Entry disappeared (left waitlist, booking completed):
		// cleared silently above.
		return
	}
	if previous != nil && previous.Status == current.Status {
		return
	}

	if p.cfg.OnStatusChange != nil {
		p.cfg.OnStatusChange(current, previous)
	}
	if previous == nil {
		return
	}
	switch {
	case previous.Status == models.WaitlistStatusWaiting && current.Status == models.WaitlistStatusOffered:
		if p.cfg.OnOffer != nil {
			p.cfg.OnOffer(current)
		}
	case previous.Status == models.WaitlistStatusOffered && current.Status == models.WaitlistStatusWaiting:
		if p.cfg.OnOfferExpired != nil {
			p.cfg.OnOfferExpired(current)
		}
	}
}
