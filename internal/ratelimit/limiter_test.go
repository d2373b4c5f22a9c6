package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(max, maxKeys int) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
	return New(max, 15*time.Minute, maxKeys, WithClock(clock.Now)), clock
}

func TestRecordExhaustsBudget(t *testing.T) {
	l, _ := newTestLimiter(3, 10)

	assert.Equal(t, Result{Allowed: true, Remaining: 3}, l.Check("1.2.3.4"))
	assert.Equal(t, 2, l.Record("1.2.3.4").Remaining)
	assert.Equal(t, 1, l.Record("1.2.3.4").Remaining)

	res := l.Record("1.2.3.4")
	require.False(t, res.Allowed)
	assert.Equal(t, 15*time.Minute, res.RetryAfter)
	assert.False(t, l.Check("1.2.3.4").Allowed)
	assert.True(t, l.Check("5.6.7.8").Allowed)
}

func TestWindowExpiresWithClock(t *testing.T) {
	l, clock := newTestLimiter(1, 10)

	require.False(t, l.Record("k").Allowed)
	clock.Advance(10 * time.Minute)
	res := l.Check("k")
	require.False(t, res.Allowed)
	assert.Equal(t, 5*time.Minute, res.RetryAfter)

	clock.Advance(5 * time.Minute)
	assert.True(t, l.Check("k").Allowed)
	assert.Equal(t, 0, l.Len())
}

func TestResetClearsKey(t *testing.T) {
	l, _ := newTestLimiter(1, 10)

	l.Record("k")
	l.Reset("k")
	assert.True(t, l.Check("k").Allowed)
	l.Reset("missing")
}

func TestLeastRecentlyUsedKeyIsEvicted(t *testing.T) {
	l, _ := newTestLimiter(2, 2)

	l.Record("a")
	l.Record("b")
	l.Check("a")
	l.Record("c")

	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 1, l.Check("a").Remaining)
	assert.Equal(t, 2, l.Check("b").Remaining, "b was evicted and starts fresh")
	assert.Equal(t, 1, l.Check("c").Remaining)
}
