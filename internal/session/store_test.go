package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camview/internal/constants"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestStore_ValidateUnknownToken(t *testing.T) {
	store := NewStore(time.Hour)

	for _, token := range []string{"", "nope", "00000000-0000-0000-0000-000000000000"} {
		assert.False(t, store.Validate(token), "token %q", token)
	}
}

func TestStore_ValidUntilExpiry(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(time.Hour, WithClock(clock.Now))

	token, err := store.Create()
	require.NoError(t, err)
	assert.Len(t, token, 36)

	assert.True(t, store.Validate(token))

	clock.Advance(59*time.Minute + 59*time.Second)
	assert.True(t, store.Validate(token))

	clock.Advance(2 * time.Second)
	assert.False(t, store.Validate(token))
	assert.Equal(t, 0, store.Len(), "expired entry is removed on validate")
}

func TestStore_InvalidAtExactExpiry(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(time.Minute, WithClock(clock.Now))

	token, err := store.Create()
	require.NoError(t, err)

	clock.Advance(time.Minute)
	assert.False(t, store.Validate(token))
}

func TestStore_ValidateDoesNotRenew(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(time.Hour, WithClock(clock.Now))

	token, err := store.Create()
	require.NoError(t, err)
	before, ok := store.Get(token)
	require.True(t, ok)

	clock.Advance(30 * time.Minute)
	require.True(t, store.Validate(token))

	after, ok := store.Get(token)
	require.True(t, ok)
	assert.Equal(t, before.ExpiresAt, after.ExpiresAt)
}

func TestStore_TokensAreUnique(t *testing.T) {
	store := NewStore(time.Hour)
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		token, err := store.Create()
		require.NoError(t, err)
		require.False(t, seen[token])
		seen[token] = true
	}
	assert.Equal(t, 200, store.Len())
}

func TestStore_Sweep(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(time.Minute, WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		_, err := store.Create()
		require.NoError(t, err)
	}
	clock.Advance(30 * time.Second)
	fresh, err := store.Create()
	require.NoError(t, err)

	clock.Advance(45 * time.Second)
	assert.Equal(t, 3, store.Sweep())
	assert.Equal(t, 1, store.Len())
	assert.True(t, store.Validate(fresh))
}

func TestStore_CreateSweepsAboveThreshold(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(time.Minute, WithClock(clock.Now), WithSweepThreshold(3))

	for i := 0; i < 3; i++ {
		_, err := store.Create()
		require.NoError(t, err)
	}
	clock.Advance(2 * time.Minute)

	_, err := store.Create()
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
}

func TestStore_Delete(t *testing.T) {
	store := NewStore(time.Hour)
	token, err := store.Create()
	require.NoError(t, err)

	store.Delete(token)
	assert.False(t, store.Validate(token))
}

func TestStore_RunStopsOnCancel(t *testing.T) {
	store := NewStore(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- store.Run(ctx, time.Millisecond) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := NewStore(time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				token, err := store.Create()
				if err != nil {
					t.Error(err)
					return
				}
				store.Validate(token)
				store.Sweep()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 16*50, store.Len())
}

func TestCookie_SignAndVerify(t *testing.T) {
	signed := SignCookieValue("abc-123")

	token, ok := VerifyCookieValue(signed)
	assert.True(t, ok)
	assert.Equal(t, "abc-123", token)

	_, ok = VerifyCookieValue("abc-123:deadbeef")
	assert.False(t, ok)
	_, ok = VerifyCookieValue("abc-123")
	assert.False(t, ok)
	_, ok = VerifyCookieValue(":" + signed)
	assert.False(t, ok)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := TokenFromRequest(r)
	assert.False(t, ok)

	r.AddCookie(NewCookie("tok", 3600, false))
	token, ok := TokenFromRequest(r)
	assert.True(t, ok)
	assert.Equal(t, "tok", token)

	forged := httptest.NewRequest(http.MethodGet, "/", nil)
	forged.AddCookie(&http.Cookie{Name: constants.SessionCookieName, Value: "tok:00"})
	_, ok = TokenFromRequest(forged)
	assert.False(t, ok)
}
