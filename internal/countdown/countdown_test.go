package countdown

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestEngineTickValues(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(base)

	var remaining []time.Duration
	var fractions []float64
	e := New(base, base.Add(300*time.Second),
		WithClock(clock.Now),
		WithTick(func(r time.Duration, f float64) {
			remaining = append(remaining, r)
			fractions = append(fractions, f)
		}),
	)

	// Drive evaluations directly instead of waiting on the ticker.
	steps := []time.Duration{0, 75 * time.Second, 75 * time.Second, 75 * time.Second}
	for _, step := range steps {
		clock.Advance(step)
		require.True(t, e.evaluate())
	}

	assert.Equal(t, []time.Duration{
		300 * time.Second, 225 * time.Second, 150 * time.Second, 75 * time.Second,
	}, remaining)

	// Elapsed fraction is monotonically non-decreasing and clamped.
	prev := -1.0
	for _, f := range fractions {
		assert.GreaterOrEqual(t, f, prev)
		assert.GreaterOrEqual(t, f, 0.0)
		assert.LessOrEqual(t, f, 1.0)
		prev = f
	}
	assert.InDelta(t, 0.75, fractions[3], 1e-9)
}

func TestEngineExpireExactlyOnce(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(base)

	expired := 0
	ticks := 0
	e := New(base, base.Add(10*time.Second),
		WithClock(clock.Now),
		WithTick(func(time.Duration, float64) { ticks++ }),
		WithExpire(func() { expired++ }),
	)

	require.True(t, e.evaluate())
	clock.Advance(11 * time.Second)
	require.False(t, e.evaluate())
	assert.Equal(t, 1, expired)
	assert.True(t, e.Expired())

	// Repeated evaluations after expiry never re-fire.
	require.False(t, e.evaluate())
	require.False(t, e.evaluate())
	assert.Equal(t, 1, expired)
	assert.Equal(t, 1, ticks)
	assert.Equal(t, time.Duration(0), e.Remaining())
	assert.Equal(t, 1.0, e.Fraction())
}

func TestEngineDeadlineAlreadyPast(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(base.Add(time.Hour))

	expired := 0
	ticks := 0
	e := New(base, base.Add(5*time.Minute),
		WithClock(clock.Now),
		WithInterval(time.Hour), // a full tick would never arrive in this test
		WithTick(func(time.Duration, float64) { ticks++ }),
		WithExpire(func() { expired++ }),
	)

	// Expiry is detected by the first evaluation in Start, not after a
	// tick interval.
	e.Start()
	assert.Equal(t, 1, expired)
	assert.Equal(t, 0, ticks)
	assert.True(t, e.Expired())
}

func TestEngineStopPreventsCallbacks(t *testing.T) {
	base := time.Now()
	var mu sync.Mutex
	calls := 0
	e := New(base, base.Add(time.Hour),
		WithInterval(5*time.Millisecond),
		WithTick(func(time.Duration, float64) {
			mu.Lock()
			calls++
			mu.Unlock()
		}),
		WithExpire(func() {
			mu.Lock()
			calls++
			mu.Unlock()
		}),
	)

	e.Start()
	time.Sleep(20 * time.Millisecond)
	e.Stop()
	mu.Lock()
	after := calls
	mu.Unlock()

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, after, calls, "no callbacks after Stop returns")
	mu.Unlock()
	assert.False(t, e.Expired())
}

func TestEngineStopIdempotent(t *testing.T) {
	base := time.Now()
	e := New(base, base.Add(time.Hour), WithInterval(time.Millisecond))
	e.Start()
	e.Stop()
	e.Stop()
}

func TestEngineUnsetTimesDoNothing(t *testing.T) {
	fired := false
	e := New(time.Time{}, time.Time{},
		WithExpire(func() { fired = true }),
		WithTick(func(time.Duration, float64) { fired = true }),
	)
	e.Start()
	time.Sleep(10 * time.Millisecond)
	assert.False(t, fired)
	assert.False(t, e.Expired())
}

func TestEngineZeroWindowFractionIsZero(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(base)

	e := New(base, base, WithClock(clock.Now))
	require.False(t, e.evaluate())
	assert.Equal(t, 0.0, e.Fraction())
	assert.True(t, e.Expired())
}
