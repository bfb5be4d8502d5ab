package security

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func TestFixedWindow_RejectsWithinWindow(t *testing.T) {
	clock := newStepClock()
	l := NewFixedWindowLimiter(clock.Now)

	assert.True(t, l.TryAcquire("ingest", "10.0.0.1", time.Second, 1))
	clock.Advance(400 * time.Millisecond)
	assert.False(t, l.TryAcquire("ingest", "10.0.0.1", time.Second, 1))
}

func TestFixedWindow_AdmitsAfterWindow(t *testing.T) {
	clock := newStepClock()
	l := NewFixedWindowLimiter(clock.Now)

	assert.True(t, l.TryAcquire("ingest", "10.0.0.1", time.Second, 1))
	clock.Advance(1200 * time.Millisecond)
	assert.True(t, l.TryAcquire("ingest", "10.0.0.1", time.Second, 1))
}

func TestFixedWindow_ExactBoundaryStillInWindow(t *testing.T) {
	clock := newStepClock()
	l := NewFixedWindowLimiter(clock.Now)

	require.True(t, l.TryAcquire("ingest", "a", time.Second, 1))
	clock.Advance(time.Second)
	assert.False(t, l.TryAcquire("ingest", "a", time.Second, 1), "reset needs strictly more than one window")
}

func TestFixedWindow_RejectionDoesNotIncrement(t *testing.T) {
	clock := newStepClock()
	l := NewFixedWindowLimiter(clock.Now)

	for i := 0; i < 3; i++ {
		require.True(t, l.TryAcquire("login", "ip", time.Minute, 3))
	}
	for i := 0; i < 5; i++ {
		assert.False(t, l.TryAcquire("login", "ip", time.Minute, 3))
	}

	rec, ok := l.Lookup("login", "ip")
	require.True(t, ok)
	assert.Equal(t, 3, rec.Count)
}

func TestFixedWindow_BucketsAndIdentitiesAreIndependent(t *testing.T) {
	clock := newStepClock()
	l := NewFixedWindowLimiter(clock.Now)

	assert.True(t, l.TryAcquire("ingest", "a", time.Second, 1))
	assert.True(t, l.TryAcquire("ingest", "b", time.Second, 1))
	assert.True(t, l.TryAcquire("video", "a", time.Second, 1))
	assert.False(t, l.TryAcquire("ingest", "a", time.Second, 1))
}

func TestFixedWindow_BoundaryBurst(t *testing.T) {
	clock := newStepClock()
	l := NewFixedWindowLimiter(clock.Now)
	p := Policy{Bucket: "login", Window: time.Second, Max: 2}

	// Two late in the first window, two right after it resets.
	assert.True(t, l.Allow(p, "ip"))
	clock.Advance(900 * time.Millisecond)
	assert.True(t, l.Allow(p, "ip"))
	clock.Advance(101 * time.Millisecond)
	assert.True(t, l.Allow(p, "ip"))
	assert.True(t, l.Allow(p, "ip"))
	assert.False(t, l.Allow(p, "ip"))
}

func TestFixedWindow_Sweep(t *testing.T) {
	clock := newStepClock()
	l := NewFixedWindowLimiter(clock.Now)

	l.TryAcquire("ingest", "a", time.Second, 1)
	l.TryAcquire("login", "a", time.Hour, 5)
	clock.Advance(2 * time.Second)

	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())
	_, ok := l.Lookup("login", "a")
	assert.True(t, ok)
}

func TestFixedWindow_ConcurrentAdmissionsNeverExceedMax(t *testing.T) {
	l := NewFixedWindowLimiter(newStepClock().Now)
	var admitted int64
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire("ingest", "device", time.Second, 5) {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(5), admitted)
}

func TestConnectionLimiter(t *testing.T) {
	cl := NewConnectionLimiter(2)

	assert.True(t, cl.TryConnect("ip"))
	assert.True(t, cl.TryConnect("ip"))
	assert.False(t, cl.TryConnect("ip"))

	cl.Disconnect("ip")
	assert.True(t, cl.TryConnect("ip"))
	cl.Disconnect("other")
}
