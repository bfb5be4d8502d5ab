// Package hub owns the live frame state and fans it out to viewers.
package hub

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bytedance/sonic"

	"camview/internal/types"
)

const (
	defaultQueueSize = 16
	messageType      = "frame"
)

var ErrClosed = errors.New("hub closed")

// Sink is the transport end of a subscription.
type Sink interface {
	Send(data []byte) error
	Close() error
}

// Gauge receives the subscriber count. prometheus.Gauge satisfies it.
type Gauge interface {
	Set(float64)
}

type Option func(*Hub)

// WithQueueSize bounds how many payloads may wait for a slow subscriber.
// When the queue is full the oldest waiting payload is discarded.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

func WithSubscriberGauge(g Gauge) Option {
	return func(h *Hub) { h.gauge = g }
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.log = l }
}

type Hub struct {
	// mu serialises state replacement with enqueueing so every subscriber
	// sees payloads in commit order.
	mu     sync.Mutex
	state  types.FrameState
	closed bool

	subsMu sync.RWMutex
	subs   map[*Subscription]struct{}

	queueSize int
	gauge     Gauge
	log       *slog.Logger
}

func New(initial types.FrameState, opts ...Option) *Hub {
	h := &Hub{
		state:     initial.Clone(),
		subs:      make(map[*Subscription]struct{}),
		queueSize: defaultQueueSize,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscription is one registered viewer with its own ordered queue.
type Subscription struct {
	hub   *Hub
	sink  Sink
	queue chan []byte
	done  chan struct{}
	once  sync.Once
}

// Done is closed once the subscription has been removed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) pump() {
	for {
		select {
		case <-s.done:
			return
		case data := <-s.queue:
			if err := s.sink.Send(data); err != nil {
				s.hub.log.Debug("subscriber send failed", "error", err)
				s.hub.Unsubscribe(s)
				return
			}
		}
	}
}

// Subscribe registers sink for future broadcasts. Nothing already sent is
// replayed.
func (h *Hub) Subscribe(sink Sink) *Subscription {
	sub := &Subscription{
		hub:   h,
		sink:  sink,
		queue: make(chan []byte, h.queueSize),
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.done)
		_ = sink.Close()
		return sub
	}
	h.subsMu.Lock()
	h.subs[sub] = struct{}{}
	n := len(h.subs)
	h.subsMu.Unlock()
	h.mu.Unlock()
	h.setGauge(n)

	go sub.pump()
	return sub
}

// Unsubscribe removes sub and closes its sink. Calling it more than once is
// harmless.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.once.Do(func() {
		h.subsMu.Lock()
		delete(h.subs, sub)
		n := len(h.subs)
		h.subsMu.Unlock()
		h.setGauge(n)

		close(sub.done)
		_ = sub.sink.Close()
	})
}

func (h *Hub) setGauge(n int) {
	if h.gauge != nil {
		h.gauge.Set(float64(n))
	}
}

// Count returns the number of registered subscribers.
func (h *Hub) Count() int {
	h.subsMu.RLock()
	defer h.subsMu.RUnlock()
	return len(h.subs)
}

// State returns a copy of the current frame state.
func (h *Hub) State() types.FrameState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.Clone()
}

// UpdateAndBroadcast replaces the state and sends it to every subscriber.
func (h *Hub) UpdateAndBroadcast(state types.FrameState) error {
	return h.Update(func(s *types.FrameState) { *s = state.Clone() })
}

// Update applies fn to a copy of the current state, stores the result and
// broadcasts it.
func (h *Hub) Update(fn func(*types.FrameState)) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}

	next := h.state.Clone()
	fn(&next)
	h.state = next

	data, err := Encode(next)
	if err != nil {
		return err
	}
	h.broadcast(data)
	return nil
}

// broadcast must be called with h.mu held, so there is one producer per
// queue at a time.
func (h *Hub) broadcast(data []byte) {
	h.subsMu.RLock()
	defer h.subsMu.RUnlock()
	for sub := range h.subs {
		sub.enqueue(data, h.log)
	}
}

// enqueue appends data, discarding the oldest waiting payload when the queue
// is full. Every payload is a complete state, so the newest one is enough.
func (s *Subscription) enqueue(data []byte, log *slog.Logger) {
	for {
		select {
		case s.queue <- data:
			return
		default:
		}
		select {
		case <-s.queue:
			log.Debug("subscriber behind, coalescing frames")
		default:
		}
	}
}

// Close removes every subscriber. Later updates fail with ErrClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	h.subsMu.RLock()
	subs := make([]*Subscription, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.subsMu.RUnlock()

	for _, sub := range subs {
		h.Unsubscribe(sub)
	}
}

// Encode renders state as the real-time wire payload.
func Encode(state types.FrameState) ([]byte, error) {
	msg := types.FrameMessage{
		Type:         messageType,
		Labels:       state.Labels,
		AIEnabled:    state.AIEnabled,
		EdgeDetected: state.EdgeDetected,
		Gallery:      SnapshotMessages(state.Gallery),
	}
	if msg.Labels == nil {
		msg.Labels = []types.Label{}
	}
	if len(state.Image) > 0 {
		img := base64.StdEncoding.EncodeToString(state.Image)
		msg.Image = &img
	}

	data, err := sonic.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode frame message: %w", err)
	}
	return data, nil
}

// SnapshotMessages converts gallery entries to their wire form. The result is
// never nil.
func SnapshotMessages(snaps []types.Snapshot) []types.SnapshotMessage {
	out := make([]types.SnapshotMessage, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, types.SnapshotMessage{
			ID:     snap.ID,
			Time:   snap.Time,
			Image:  base64.StdEncoding.EncodeToString(snap.Image),
			Labels: snap.LabelSummary,
		})
	}
	return out
}
