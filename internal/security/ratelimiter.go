package security

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Record is the fixed-window state for one (bucket, identity) pair.
type Record struct {
	WindowStart time.Time
	Count       int
	window      time.Duration
}

type recordKey struct {
	bucket   string
	identity string
}

// Policy names a bucket together with its window parameters.
type Policy struct {
	Bucket string
	Window time.Duration
	Max    int
}

// FixedWindowLimiter admits at most Max calls per window for each
// (bucket, identity). Counters reset at window boundaries, so up to twice the
// limit can pass around an edge.
type FixedWindowLimiter struct {
	mu      sync.Mutex
	records map[recordKey]*Record
	now     func() time.Time
}

func NewFixedWindowLimiter(now func() time.Time) *FixedWindowLimiter {
	if now == nil {
		now = time.Now
	}
	return &FixedWindowLimiter{
		records: make(map[recordKey]*Record),
		now:     now,
	}
}

// TryAcquire reports whether the call is admitted. A rejected call does not
// consume from the window.
func (l *FixedWindowLimiter) TryAcquire(bucket, identity string, window time.Duration, max int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := recordKey{bucket: bucket, identity: identity}
	rec, ok := l.records[key]
	if !ok || now.Sub(rec.WindowStart) > window {
		rec = &Record{WindowStart: now}
		l.records[key] = rec
	}
	rec.window = window

	if rec.Count >= max {
		return false
	}
	rec.Count++
	return true
}

func (l *FixedWindowLimiter) Allow(p Policy, identity string) bool {
	return l.TryAcquire(p.Bucket, identity, p.Window, p.Max)
}

// Lookup returns a copy of the record for (bucket, identity).
func (l *FixedWindowLimiter) Lookup(bucket, identity string) (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[recordKey{bucket: bucket, identity: identity}]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Sweep drops records whose window has already ended. A dropped record would
// have been reset on its next use anyway.
func (l *FixedWindowLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, rec := range l.records {
		if now.Sub(rec.WindowStart) > rec.window {
			delete(l.records, key)
			removed++
		}
	}
	return removed
}

func (l *FixedWindowLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

func (l *FixedWindowLimiter) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				slog.Debug("rate limit records cleaned up", "removed", n)
			}
		}
	}
}

// ConnectionLimiter caps concurrent connections per client IP.
type ConnectionLimiter struct {
	mu          sync.Mutex
	connections map[string]int
	maxConn     int
}

func NewConnectionLimiter(maxConn int) *ConnectionLimiter {
	return &ConnectionLimiter{
		connections: make(map[string]int),
		maxConn:     maxConn,
	}
}

func (cl *ConnectionLimiter) TryConnect(ip string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.connections[ip] >= cl.maxConn {
		return false
	}
	cl.connections[ip]++
	return true
}

func (cl *ConnectionLimiter) Disconnect(ip string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.connections[ip] > 0 {
		cl.connections[ip]--
		if cl.connections[ip] == 0 {
			delete(cl.connections, ip)
		}
	}
}
