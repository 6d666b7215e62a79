package offer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketflow/internal/models"
)

var offerBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func offeredEntry(offeredAt, expiresAt time.Time, quantity int) *models.WaitlistEntry {
	return &models.WaitlistEntry{
		Status:            models.WaitlistStatusOffered,
		QuantityRequested: quantity,
		OfferedAt:         &offeredAt,
		ExpiresAt:         &expiresAt,
	}
}

type offerCounters struct {
	accepted int
	declined int
	expired  int
	refresh  int
}

func (c *offerCounters) callbacks() Callbacks {
	return Callbacks{
		OnAccept:  func() { c.accepted++ },
		OnDecline: func() { c.declined++ },
		OnExpired: func() { c.expired++ },
	}
}

func newTestOffer(t *testing.T, now time.Time, window time.Duration, c *offerCounters) *Offer {
	t.Helper()
	o, err := New("evt-1", offeredEntry(now, now.Add(window), 2), Config{
		Callbacks:    c.callbacks(),
		Refresh:      func() { c.refresh++ },
		TickInterval: time.Hour,
		Clock:        func() time.Time { return now },
	})
	require.NoError(t, err)
	return o
}

func TestOfferRequiresActiveWindow(t *testing.T) {
	tests := []struct {
		name  string
		entry *models.WaitlistEntry
	}{
		{"nil entry", nil},
		{"waiting entry", &models.WaitlistEntry{Status: models.WaitlistStatusWaiting, Position: 3}},
		{
			"offered without window",
			&models.WaitlistEntry{Status: models.WaitlistStatusOffered, QuantityRequested: 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("evt-1", tt.entry, Config{})
			assert.ErrorIs(t, err, models.ErrNotOnWaitlist)
		})
	}
}

func TestOfferAcceptReturnsQuantity(t *testing.T) {
	c := &offerCounters{}
	o := newTestOffer(t, offerBase, 2*time.Minute, c)
	o.Start()
	defer o.Close()

	qty, err := o.Accept()
	require.NoError(t, err)
	assert.Equal(t, 2, qty)
	assert.Equal(t, 1, c.accepted)

	// A second resolution of either kind is rejected.
	_, err = o.Accept()
	assert.ErrorIs(t, err, models.ErrOfferResolved)
	assert.ErrorIs(t, o.Decline(), models.ErrOfferResolved)
	assert.Equal(t, 1, c.accepted)
	assert.Equal(t, 0, c.declined)
}

func TestOfferDecline(t *testing.T) {
	c := &offerCounters{}
	o := newTestOffer(t, offerBase, 2*time.Minute, c)
	o.Start()
	defer o.Close()

	require.NoError(t, o.Decline())
	assert.Equal(t, 1, c.declined)
	assert.ErrorIs(t, o.Decline(), models.ErrOfferResolved)
	_, err := o.Accept()
	assert.ErrorIs(t, err, models.ErrOfferResolved)
}

func TestOfferAlreadyPastWindowExpiresOnStart(t *testing.T) {
	c := &offerCounters{}
	now := offerBase
	o, err := New("evt-1", offeredEntry(now.Add(-3*time.Minute), now.Add(-time.Minute), 2), Config{
		Callbacks:    c.callbacks(),
		TickInterval: time.Hour,
		Clock:        func() time.Time { return now },
	})
	require.NoError(t, err)
	o.Start()
	defer o.Close()

	assert.True(t, o.Expired())
	assert.Equal(t, 1, c.expired)

	_, err = o.Accept()
	assert.ErrorIs(t, err, models.ErrOfferExpired)
	assert.ErrorIs(t, o.Decline(), models.ErrOfferExpired)
	assert.Equal(t, 0, c.accepted)
}

func TestOfferExpiresExactlyOnce(t *testing.T) {
	// Real clock, short ticks: the countdown must fire the expiry hook
	// a single time on its own.
	c := &offerCounters{}
	entry := offeredEntry(time.Now(), time.Now().Add(30*time.Millisecond), 2)
	o, err := New("evt-1", entry, Config{
		Callbacks:    c.callbacks(),
		TickInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	o.Start()
	defer o.Close()

	deadline := time.After(time.Second)
	for !o.Expired() {
		select {
		case <-deadline:
			t.Fatal("offer never expired")
		case <-time.After(5 * time.Millisecond):
		}
	}
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, c.expired)
}

func TestOfferAcceptedBeforeTimerFires(t *testing.T) {
	c := &offerCounters{}
	o := newTestOffer(t, offerBase, 2*time.Minute, c)
	o.Start()

	_, err := o.Accept()
	require.NoError(t, err)

	// Even if the expiry path runs afterward it must not flip an
	// already resolved offer.
	o.handleExpired()
	assert.False(t, o.Expired())
	assert.Equal(t, 0, c.expired)
}

func TestOfferReturnToWaitlist(t *testing.T) {
	c := &offerCounters{}
	o := newTestOffer(t, offerBase, 2*time.Minute, c)
	o.Start()
	defer o.Close()

	// Not available while the offer is still live.
	assert.ErrorIs(t, o.ReturnToWaitlist(), models.ErrOfferResolved)
	assert.Equal(t, 0, c.refresh)

	o.handleExpired()
	require.True(t, o.Expired())
	require.NoError(t, o.ReturnToWaitlist())
	assert.Equal(t, 1, c.refresh)
}

func TestOfferWindowProgress(t *testing.T) {
	now := offerBase
	clock := func() time.Time { return now }
	o, err := New("evt-1", offeredEntry(offerBase, offerBase.Add(2*time.Minute), 4), Config{
		TickInterval: time.Hour,
		Clock:        clock,
	})
	require.NoError(t, err)
	o.Start()
	defer o.Close()

	assert.Equal(t, 4, o.Quantity())
	assert.Equal(t, "evt-1", o.EventID())
	assert.Equal(t, 2*time.Minute, o.Remaining())
	assert.InDelta(t, 0.0, o.Fraction(), 1e-9)
}
