package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"camview/internal/constants"
)

// Session is an issued login. It is never mutated after creation.
type Session struct {
	ID        string
	ExpiresAt time.Time
}

func (s Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store maps opaque tokens to their expiry. Entries are only removed when a
// lookup finds them expired, on Delete, or by Sweep.
type Store struct {
	mu             sync.Mutex
	sessions       map[string]Session
	duration       time.Duration
	sweepThreshold int
	now            func() time.Time
}

type Option func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSweepThreshold sets the size above which Create sweeps before inserting.
func WithSweepThreshold(n int) Option {
	return func(s *Store) { s.sweepThreshold = n }
}

func NewStore(duration time.Duration, opts ...Option) *Store {
	if duration <= 0 {
		duration = constants.SessionDuration
	}
	s := &Store{
		sessions:       make(map[string]Session),
		duration:       duration,
		sweepThreshold: constants.SessionSweepThreshold,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Duration() time.Duration {
	return s.duration
}

// Create issues a new random token valid for the configured duration.
func (s *Store) Create() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	token := id.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.sweepThreshold > 0 && len(s.sessions) >= s.sweepThreshold {
		s.sweepLocked(now)
	}
	s.sessions[token] = Session{ID: token, ExpiresAt: now.Add(s.duration)}
	return token, nil
}

// Validate reports whether token names a live session. Expired entries are
// removed as a side effect; live ones are left untouched.
func (s *Store) Validate(token string) bool {
	if token == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return false
	}
	if sess.IsExpired(s.now()) {
		delete(s.sessions, token)
		return false
	}
	return true
}

// Get returns a copy of the session if it exists, expired or not.
func (s *Store) Get(token string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	return sess, ok
}

func (s *Store) Delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

// Sweep removes all expired sessions and returns how many were dropped.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now())
}

func (s *Store) sweepLocked(now time.Time) int {
	removed := 0
	for token, sess := range s.sessions {
		if sess.IsExpired(now) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Run sweeps on every tick until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				slog.Debug("expired sessions cleaned up", "removed", n)
			}
		}
	}
}
