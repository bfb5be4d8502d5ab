package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camview/internal/types"
)

type recordingSink struct {
	mu     sync.Mutex
	got    [][]byte
	closed bool
	fail   bool
	block  chan struct{}
}

func (s *recordingSink) Send(data []byte) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("broken pipe")
	}
	s.got = append(s.got, data)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) messages() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.got...)
}

func (s *recordingSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type gaugeStub struct {
	mu sync.Mutex
	v  float64
}

func (g *gaugeStub) Set(v float64) {
	g.mu.Lock()
	g.v = v
	g.mu.Unlock()
}

func (g *gaugeStub) value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.v
}

func TestHub_IdenticalPayloadForEverySubscriber(t *testing.T) {
	h := New(types.FrameState{AIEnabled: true})
	a, b := &recordingSink{}, &recordingSink{}
	h.Subscribe(a)
	h.Subscribe(b)

	require.NoError(t, h.Update(func(s *types.FrameState) {
		s.Image = []byte("jpeg")
		s.Labels = []types.Label{{Description: "Person", Score: 0.95}}
	}))

	require.Eventually(t, func() bool {
		return len(a.messages()) == 1 && len(b.messages()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, a.messages()[0], b.messages()[0])
}

func TestHub_PreservesOrderPerSubscriber(t *testing.T) {
	h := New(types.FrameState{}, WithQueueSize(64))
	sink := &recordingSink{}
	h.Subscribe(sink)

	for i := 0; i < 20; i++ {
		score := float64(i)
		require.NoError(t, h.Update(func(s *types.FrameState) {
			s.Labels = []types.Label{{Description: "n", Score: score}}
		}))
	}

	require.Eventually(t, func() bool { return len(sink.messages()) == 20 }, time.Second, 5*time.Millisecond)
	for i, raw := range sink.messages() {
		var msg types.FrameMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, float64(i), msg.Labels[0].Score)
	}
}

func TestHub_NoReplayOnSubscribe(t *testing.T) {
	h := New(types.FrameState{})
	require.NoError(t, h.UpdateAndBroadcast(types.FrameState{Image: []byte("old")}))

	sink := &recordingSink{}
	h.Subscribe(sink)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, sink.messages())
	assert.Equal(t, []byte("old"), h.State().Image)
}

func TestHub_FailingSinkIsRemovedWithoutAffectingOthers(t *testing.T) {
	gauge := &gaugeStub{}
	h := New(types.FrameState{}, WithSubscriberGauge(gauge))
	bad := &recordingSink{fail: true}
	good := &recordingSink{}
	h.Subscribe(bad)
	h.Subscribe(good)
	assert.Equal(t, 2.0, gauge.value())

	require.NoError(t, h.UpdateAndBroadcast(types.FrameState{Image: []byte("a")}))

	require.Eventually(t, func() bool { return h.Count() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, bad.isClosed())
	assert.Equal(t, 1.0, gauge.value())

	require.NoError(t, h.UpdateAndBroadcast(types.FrameState{Image: []byte("b")}))
	require.Eventually(t, func() bool { return len(good.messages()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestHub_SlowSubscriberDoesNotBlockBroadcast(t *testing.T) {
	h := New(types.FrameState{}, WithQueueSize(1))
	release := make(chan struct{})
	stuck := &recordingSink{block: release}
	fast := &recordingSink{}
	stuckSub := h.Subscribe(stuck)
	h.Subscribe(fast)

	var last []byte
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= 5; i++ {
			st := types.FrameState{Labels: []types.Label{{Description: "n", Score: float64(i)}}}
			_ = h.UpdateAndBroadcast(st)
			last, _ = Encode(st)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		close(release)
		t.Fatal("broadcast blocked on a slow subscriber")
	}

	assert.Equal(t, 2, h.Count(), "a subscriber that is only behind stays registered")
	select {
	case <-stuckSub.Done():
		t.Fatal("slow subscriber was dropped")
	default:
	}

	require.Eventually(t, func() bool {
		msgs := fast.messages()
		return len(msgs) > 0 && string(msgs[len(msgs)-1]) == string(last)
	}, time.Second, 5*time.Millisecond)

	close(release)
	require.Eventually(t, func() bool {
		msgs := stuck.messages()
		return len(msgs) > 0 && string(msgs[len(msgs)-1]) == string(last)
	}, time.Second, 5*time.Millisecond, "slow subscriber catches up with the newest frame")
	assert.LessOrEqual(t, len(stuck.messages()), 2)
}

func TestHub_SameStateTwiceGivesIdenticalPayloads(t *testing.T) {
	h := New(types.FrameState{})
	sink := &recordingSink{}
	h.Subscribe(sink)

	st := types.FrameState{
		Image:     []byte("jpeg"),
		Labels:    []types.Label{{Description: "Person", Score: 0.9}},
		AIEnabled: true,
		Gallery:   []types.Snapshot{{ID: 1, Time: "2026-01-01 00:00:00", Image: []byte("g"), LabelSummary: "Person"}},
	}
	require.NoError(t, h.UpdateAndBroadcast(st))
	require.NoError(t, h.UpdateAndBroadcast(st))

	require.Eventually(t, func() bool { return len(sink.messages()) == 2 }, time.Second, 5*time.Millisecond)
	msgs := sink.messages()
	assert.Equal(t, msgs[0], msgs[1])
}

func TestHub_SubscribeRacingCloseLeavesNoSubscribers(t *testing.T) {
	for round := 0; round < 50; round++ {
		h := New(types.FrameState{})
		sinks := make([]*recordingSink, 8)
		subs := make([]*Subscription, 8)

		var wg sync.WaitGroup
		for i := range sinks {
			sinks[i] = &recordingSink{}
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				subs[i] = h.Subscribe(sinks[i])
			}(i)
		}
		h.Close()
		wg.Wait()

		assert.Zero(t, h.Count())
		for i, sub := range subs {
			select {
			case <-sub.Done():
			default:
				t.Fatalf("round %d: subscription %d still live after Close", round, i)
			}
			assert.True(t, sinks[i].isClosed())
		}
	}
}

func TestHub_UnsubscribeIsIdempotent(t *testing.T) {
	h := New(types.FrameState{})
	sink := &recordingSink{}
	sub := h.Subscribe(sink)

	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	h.Unsubscribe(nil)

	assert.Equal(t, 0, h.Count())
	assert.True(t, sink.isClosed())
}

func TestHub_CloseRejectsLaterUpdates(t *testing.T) {
	h := New(types.FrameState{})
	sink := &recordingSink{}
	h.Subscribe(sink)

	h.Close()
	assert.Equal(t, 0, h.Count())
	assert.ErrorIs(t, h.UpdateAndBroadcast(types.FrameState{}), ErrClosed)

	late := &recordingSink{}
	sub := h.Subscribe(late)
	<-sub.Done()
	assert.True(t, late.isClosed())
}

func TestEncode_WirePayload(t *testing.T) {
	data, err := Encode(types.FrameState{
		Image:        []byte{0xff, 0xd8},
		Labels:       []types.Label{{Description: "Person", Score: 0.5}},
		AIEnabled:    true,
		EdgeDetected: true,
		Gallery: []types.Snapshot{{
			ID: 7, Time: "2026-01-01 00:00:00", Image: []byte{1}, LabelSummary: "Person",
		}},
	})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "frame", got["type"])
	assert.Equal(t, "/9g=", got["image"])
	assert.Equal(t, true, got["aiEnabled"])
	assert.Equal(t, true, got["edgeDetected"])
	gallery := got["gallery"].([]any)
	require.Len(t, gallery, 1)
	snap := gallery[0].(map[string]any)
	assert.Equal(t, float64(7), snap["id"])
	assert.Equal(t, "AQ==", snap["image"])
	assert.Equal(t, "Person", snap["labels"])
}

func TestEncode_EmptyState(t *testing.T) {
	data, err := Encode(types.FrameState{})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"frame","image":null,"labels":[],"aiEnabled":false,"edgeDetected":false,"gallery":[]}`,
		string(data))

	again, err := Encode(types.FrameState{})
	require.NoError(t, err)
	assert.Equal(t, data, again)
}
