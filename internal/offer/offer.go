// Package offer resolves a single time-boxed waitlist offer to one of
// accept, decline, or expiry. Accept hands the offered quantity to the
// booking flow; expiry leaves a terminal state whose only way out is a
// forced status re-fetch, because the server decides what the user is
// now.
package offer

import (
	"sync"
	"time"

	"ticketflow/internal/countdown"
	"ticketflow/internal/models"
)

// Callbacks are the lifecycle hooks for one offer. Each fires at most
// once per Offer instance; all default to no-ops.
type Callbacks struct {
	OnAccept  func()
	OnDecline func()
	OnExpired func()
}

// Config holds offer options.
type Config struct {
	Callbacks Callbacks

	// Refresh forces a fresh waitlist status fetch; wired to the
	// poller's Refresh. Used by ReturnToWaitlist in the expired state
	// instead of any local state patch.
	Refresh func()

	// TickInterval and Clock override countdown behavior in tests.
	TickInterval time.Duration
	Clock        func() time.Time
}

// Offer drives one waitlist offer window.
type Offer struct {
	eventID  string
	quantity int
	cfg      Config
	engine   *countdown.Engine

	mu       sync.Mutex
	accepted bool
	declined bool
	expired  bool
}

// New builds an Offer from an offered waitlist entry. The entry must
// carry an active offer window.
func New(eventID string, entry *models.WaitlistEntry, cfg Config) (*Offer, error) {
	if entry == nil || !entry.Offered() {
		return nil, models.ErrNotOnWaitlist
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = countdown.DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	o := &Offer{
		eventID:  eventID,
		quantity: entry.QuantityRequested,
		cfg:      cfg,
	}
	o.engine = countdown.New(*entry.OfferedAt, *entry.ExpiresAt,
		countdown.WithClock(cfg.Clock),
		countdown.WithInterval(cfg.TickInterval),
		countdown.WithExpire(o.handleExpired),
	)
	return o, nil
}

// Start begins the offer countdown. An offer already past its window
// expires on the first evaluation.
func (o *Offer) Start() {
	o.engine.Start()
}

// Quantity returns the ticket count the offer covers.
func (o *Offer) Quantity() int {
	return o.quantity
}

// EventID returns the event the offer belongs to.
func (o *Offer) EventID() string {
	return o.eventID
}

// Remaining returns the time left in the offer window.
func (o *Offer) Remaining() time.Duration {
	return o.engine.Remaining()
}

// Fraction returns the elapsed fraction of the offer window, for a
// progress indicator.
func (o *Offer) Fraction() float64 {
	return o.engine.Fraction()
}

// Expired reports whether the offer window has closed.
func (o *Offer) Expired() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.expired
}

// Accept resolves the offer toward booking. It returns the offered
// quantity for pre-filling the reserve step; the caller routes into a
// booking flow marked as offer-derived. Accepting twice, or after the
// window closed, is rejected.
func (o *Offer) Accept() (int, error) {
	o.mu.Lock()
	if o.expired {
		o.mu.Unlock()
		return 0, models.ErrOfferExpired
	}
	if o.accepted || o.declined {
		o.mu.Unlock()
		return 0, models.ErrOfferResolved
	}
	o.accepted = true
	o.mu.Unlock()

	o.engine.Stop()
	if o.cfg.Callbacks.OnAccept != nil {
		o.cfg.Callbacks.OnAccept()
	}
	return o.quantity, nil
}

// Decline resolves the offer away from booking. The caller is
// responsible for the leave-waitlist call.
func (o *Offer) Decline() error {
	o.mu.Lock()
	if o.expired {
		o.mu.Unlock()
		return models.ErrOfferExpired
	}
	if o.accepted || o.declined {
		o.mu.Unlock()
		return models.ErrOfferResolved
	}
	o.declined = true
	o.mu.Unlock()

	o.engine.Stop()
	if o.cfg.Callbacks.OnDecline != nil {
		o.cfg.Callbacks.OnDecline()
	}
	return nil
}

// ReturnToWaitlist is the only action in the expired state: a forced
// status re-fetch. The server is the authority on whether the user is
// now waiting again, expired, or gone.
func (o *Offer) ReturnToWaitlist() error {
	o.mu.Lock()
	expired := o.expired
	o.mu.Unlock()
	if !expired {
		return models.ErrOfferResolved
	}
	if o.cfg.Refresh != nil {
		o.cfg.Refresh()
	}
	return nil
}

// Close cancels the countdown without resolving the offer.
func (o *Offer) Close() {
	o.engine.Stop()
}

func (o *Offer) handleExpired() {
	o.mu.Lock()
	if o.accepted || o.declined || o.expired {
		o.mu.Unlock()
		return
	}
	o.expired = true
	o.mu.Unlock()

	if o.cfg.Callbacks.OnExpired != nil {
		o.cfg.Callbacks.OnExpired()
	}
}
