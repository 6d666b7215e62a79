// Package booking drives the three-step reserve → pay → confirm flow.
// The controller owns the active reservation and its countdown, and
// guards payment against a locally expired or server-invalidated hold.
// Local timers only disable actions early; the server's own expiry
// enforcement is the real guarantee.
package booking

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"ticketflow/internal/countdown"
	"ticketflow/internal/models"
)

// Step is the flow's position in the booking state machine.
type Step int

const (
	StepBrowsing Step = iota + 1
	StepReserved
	StepConfirmed
)

func (s Step) String() string {
	switch s {
	case StepBrowsing:
		return "browsing"
	case StepReserved:
		return "reserved"
	case StepConfirmed:
		return "confirmed"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// ExpiredMessage is the user-visible notice set when a reservation
// lapses before payment.
const ExpiredMessage = "Your reservation has expired. Please start over."

// expireNotifyTimeout bounds the best-effort server notification when
// a reservation lapses.
const expireNotifyTimeout = 10 * time.Second

// Service is the slice of the gateway client the flow needs.
type Service interface {
	CheckAvailability(ctx context.Context, eventID string, quantity int) (*models.Availability, error)
	Reserve(ctx context.Context, req models.ReserveRequest) (*models.Reservation, error)
	Confirm(ctx context.Context, req models.ConfirmRequest) (*models.Booking, error)
	ExpireReservation(ctx context.Context, reservationID string) error
}

// Store persists the active reservation so the flow survives process
// restarts, the way the page survives reloads.
type Store interface {
	SaveReservation(eventID string, r *models.Reservation, fromOffer bool) error
	ClearReservation(eventID string) error
}

// Flow is the booking state machine for one (user, event) pair.
type Flow struct {
	svc     Service
	store   Store
	userID  string
	eventID string

	now          func() time.Time
	tickInterval time.Duration
	onExpired    func()

	mu            sync.Mutex
	step          Step
	quantity      int
	maxPerBooking int
	fromOffer     bool
	attemptKey    string
	reservation   *models.Reservation
	booking       *models.Booking
	message       string
	engine        *countdown.Engine
}

// Option configures a Flow.
type Option func(*Flow)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) {
		if now != nil {
			f.now = now
		}
	}
}

// WithTickInterval overrides the countdown tick period.
func WithTickInterval(d time.Duration) Option {
	return func(f *Flow) {
		if d > 0 {
			f.tickInterval = d
		}
	}
}

// WithStore attaches reservation persistence.
func WithStore(store Store) Option {
	return func(f *Flow) { f.store = store }
}

// WithMaxPerBooking sets the event's per-booking ticket cap.
func WithMaxPerBooking(max int) Option {
	return func(f *Flow) { f.maxPerBooking = max }
}

// FromOffer marks the flow as derived from an accepted waitlist offer:
// the availability pre-check is skipped because the seats were already
// set aside for this user.
func FromOffer() Option {
	return func(f *Flow) { f.fromOffer = true }
}

// WithExpiredFunc registers a callback fired once when the active
// reservation lapses.
func WithExpiredFunc(fn func()) Option {
	return func(f *Flow) { f.onExpired = fn }
}

// New creates a flow in the browsing step with a quantity of 1.
func New(svc Service, userID, eventID string, opts ...Option) *Flow {
	f := &Flow{
		svc:          svc,
		userID:       userID,
		eventID:      eventID,
		now:          time.Now,
		tickInterval: countdown.DefaultInterval,
		step:         StepBrowsing,
		quantity:     1,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Step returns the current position in the state machine.
func (f *Flow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// Quantity returns the requested ticket count.
func (f *Flow) Quantity() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quantity
}

// SetQuantity updates the requested ticket count, clamped to the valid
// range on every change. Quantity is only mutable while browsing.
func (f *Flow) SetQuantity(quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step != StepBrowsing {
		return models.ErrInvalidStep
	}
	clamped := models.ClampQuantity(quantity, f.maxPerBooking)
	if clamped != f.quantity {
		// Changing the quantity is a new intent; the next reserve
		// attempt gets a fresh idempotency key.
		f.attemptKey = ""
	}
	f.quantity = clamped
	return nil
}

// Reservation returns the active hold, nil outside the reserved step.
func (f *Flow) Reservation() *models.Reservation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reservation
}

// Booking returns the confirmed booking, nil before confirmation.
func (f *Flow) Booking() *models.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.booking
}

// Message returns the current user-visible notice, such as the
// reservation-expired message.
func (f *Flow) Message() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.message
}

// Remaining returns the time left on the active reservation.
func (f *Flow) Remaining() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reservation == nil {
		return 0
	}
	return f.reservation.Remaining(f.now())
}

// Fraction returns the elapsed fraction of the reservation window.
func (f *Flow) Fraction() float64 {
	f.mu.Lock()
	engine := f.engine
	f.mu.Unlock()
	if engine == nil {
		return 0
	}
	return engine.Fraction()
}

// Reserve executes the browsing → reserved transition. The idempotency
// key is generated once per attempt and reused on retries of the same
// intent, so a double-click or a retry after a timeout cannot create
// two holds.
func (f *Flow) Reserve(ctx context.Context) error {
	f.mu.Lock()
	if f.step != StepBrowsing {
		f.mu.Unlock()
		return models.ErrInvalidStep
	}
	if f.attemptKey == "" {
		f.attemptKey = idempotencyKey(f.userID, f.eventID, f.now())
	}
	req := models.ReserveRequest{
		EventID:        f.eventID,
		Quantity:       f.quantity,
		IdempotencyKey: f.attemptKey,
	}
	fromOffer := f.fromOffer
	f.mu.Unlock()

	if !fromOffer {
		avail, err := f.svc.CheckAvailability(ctx, req.EventID, req.Quantity)
		if err != nil {
			return fmt.Errorf("availability check failed: %w", err)
		}
		if !avail.Available {
			return models.ErrSeatsUnavailable
		}
	}

	res, err := f.svc.Reserve(ctx, req)
	if err != nil {
		// The attempt key is kept: a retry of this same intent must
		// reuse it so the server deduplicates.
		return err
	}

	f.mu.Lock()
	f.reservation = res
	f.step = StepReserved
	f.message = ""
	f.attemptKey = ""
	f.mu.Unlock()

	if f.store != nil {
		if err := f.store.SaveReservation(f.eventID, res, fromOffer); err != nil {
			log.Printf("booking: failed to persist reservation %s: %v", res.ReservationID, err)
		}
	}

	f.startCountdown(res)
	return nil
}

// Resume rebuilds the reserved step from a persisted reservation, the
// reload case. A hold whose window has already closed triggers the
// expiry path immediately rather than after a tick.
func (f *Flow) Resume(res *models.Reservation, fromOffer bool) {
	if res == nil {
		return
	}
	f.mu.Lock()
	f.reservation = res
	f.step = StepReserved
	f.fromOffer = fromOffer
	f.quantity = res.Quantity
	f.message = ""
	f.mu.Unlock()

	f.startCountdown(res)
}

// Confirm executes the reserved → confirmed transition. Payment is
// gated on the reservation still being inside its window; a failed
// confirm leaves the flow reserved with the clock still running so the
// user can retry until expiry.
func (f *Flow) Confirm(ctx context.Context, paymentMethod, paymentToken string) error {
	f.mu.Lock()
	if f.step != StepReserved || f.reservation == nil {
		f.mu.Unlock()
		return models.ErrNoActiveReservation
	}
	res := f.reservation
	if !res.Valid(f.now()) {
		f.mu.Unlock()
		f.expire(true)
		return models.ErrReservationExpired
	}
	req := models.ConfirmRequest{
		ReservationID: res.ReservationID,
		PaymentToken:  paymentToken,
		PaymentMethod: paymentMethod,
	}
	f.mu.Unlock()

	booking, err := f.svc.Confirm(ctx, req)
	if err != nil {
		return err
	}

	// The server accepted payment, which is authoritative even if the
	// local timer fired in the meantime.
	f.mu.Lock()
	engine := f.engine
	f.engine = nil
	f.reservation = nil
	f.booking = booking
	f.step = StepConfirmed
	f.message = ""
	f.mu.Unlock()

	if engine != nil {
		engine.Stop()
	}
	if f.store != nil {
		if err := f.store.ClearReservation(f.eventID); err != nil {
			log.Printf("booking: failed to clear persisted reservation: %v", err)
		}
	}
	return nil
}

// Close stops the countdown and discards any pending callbacks. The
// reservation itself is left to the server's own expiry enforcement.
func (f *Flow) Close() {
	f.mu.Lock()
	engine := f.engine
	f.engine = nil
	f.mu.Unlock()
	if engine != nil {
		engine.Stop()
	}
}

// startCountdown begins ticking toward the reservation deadline. Must
// be called without holding f.mu: an already-lapsed deadline runs the
// expiry path synchronously.
func (f *Flow) startCountdown(res *models.Reservation) {
	now := f.now()
	if !res.Valid(now) {
		f.expire(false)
		return
	}

	engine := countdown.New(now, res.ExpiresAt,
		countdown.WithClock(f.now),
		countdown.WithInterval(f.tickInterval),
		countdown.WithExpire(func() { f.expire(false) }),
	)
	f.mu.Lock()
	f.engine = engine
	f.mu.Unlock()
	engine.Start()
}

// expire runs the local-deadline-exceeded path exactly once per hold:
// best-effort server notification, clear the local reservation, return
// to browsing with a user-visible message. stopEngine is false when
// the call originates from the engine's own expiry callback, which has
// already terminated itself.
func (f *Flow) expire(stopEngine bool) {
	f.mu.Lock()
	if f.step != StepReserved || f.reservation == nil {
		f.mu.Unlock()
		return
	}
	res := f.reservation
	engine := f.engine
	f.engine = nil
	f.reservation = nil
	f.step = StepBrowsing
	f.message = ExpiredMessage
	onExpired := f.onExpired
	f.mu.Unlock()

	if stopEngine && engine != nil {
		engine.Stop()
	}

	// Fire-and-forget: the server expires reservations on its own
	// schedule, this just returns the seats sooner.
	ctx, cancel := context.WithTimeout(context.Background(), expireNotifyTimeout)
	defer cancel()
	if err := f.svc.ExpireReservation(ctx, res.ReservationID); err != nil {
		log.Printf("booking: expire notification for %s failed: %v", res.ReservationID, err)
	}

	if f.store != nil {
		if err := f.store.ClearReservation(f.eventID); err != nil {
			log.Printf("booking: failed to clear persisted reservation: %v", err)
		}
	}
	if onExpired != nil {
		onExpired()
	}
}

// idempotencyKey derives a per-attempt key from the user, the event,
// and a high-resolution timestamp.
func idempotencyKey(userID, eventID string, now time.Time) string {
	return fmt.Sprintf("%s-booking-%s-%d", userID, eventID, now.UnixNano())
}
