package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransportClosed = errors.New("transport closed")

type fakeTransport struct {
	inbound  chan []byte
	outbound chan []byte
	closed   chan struct{}

	closeOnce   sync.Once
	mu          sync.Mutex
	closeCode   int
	closeReason string

	// writeLock is held for the whole of WriteMessage; WriteClose waits for it up to
	// closeWait, the way gorilla's WriteControl waits on a writer until its deadline.
	writeLock chan struct{}
	closeWait time.Duration
	// writeGate, when set, blocks every WriteMessage until it receives a value.
	writeGate chan struct{}
	writing   chan struct{}
	readPanic bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound:   make(chan []byte, 16),
		outbound:  make(chan []byte, 256),
		closed:    make(chan struct{}),
		writing:   make(chan struct{}, 256),
		writeLock: make(chan struct{}, 1),
		closeWait: time.Second,
	}
}

func (f *fakeTransport) ReadMessage() ([]byte, error) {
	if f.readPanic {
		panic("read exploded")
	}
	select {
	case data, ok := <-f.inbound:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	case <-f.closed:
		return nil, errTransportClosed
	}
}

func (f *fakeTransport) WriteMessage(data []byte) error {
	f.writeLock <- struct{}{}
	defer func() { <-f.writeLock }()
	f.writing <- struct{}{}
	if f.writeGate != nil {
		select {
		case <-f.writeGate:
		case <-f.closed:
			return errTransportClosed
		}
	}
	select {
	case <-f.closed:
		return errTransportClosed
	case f.outbound <- data:
		return nil
	}
}

// WriteClose records the requested frame, then waits for the writer like a real socket.
func (f *fakeTransport) WriteClose(code int, reason string) error {
	f.mu.Lock()
	if f.closeCode == 0 {
		f.closeCode = code
		f.closeReason = reason
	}
	f.mu.Unlock()

	select {
	case f.writeLock <- struct{}{}:
		<-f.writeLock
		return nil
	case <-time.After(f.closeWait):
		return errors.New("close frame timed out behind a pending write")
	}
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) closeFrame() (int, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCode, f.closeReason
}

func (f *fakeTransport) next(t *testing.T) map[string]json.RawMessage {
	t.Helper()
	select {
	case data := <-f.outbound:
		var frame map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(data, &frame))
		return frame
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for frame")
		return nil
	}
}

func (f *fakeTransport) expectSilence(t *testing.T) {
	t.Helper()
	select {
	case data := <-f.outbound:
		t.Fatalf("unexpected frame %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

type authorizerFunc func(ctx context.Context, userID string, key RoomKey) (bool, error)

func (f authorizerFunc) CanJoin(ctx context.Context, userID string, key RoomKey) (bool, error) {
	return f(ctx, userID, key)
}

func allowAll() Authorizer {
	return authorizerFunc(func(context.Context, string, RoomKey) (bool, error) { return true, nil })
}

func newTestHub(t *testing.T, authorizer Authorizer, buffer int) (*Hub, *Metrics) {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHub(NewRegistry(), authorizer, metrics, logger, HubConfig{SendBuffer: buffer}), metrics
}

type session struct {
	transport *fakeTransport
	done      chan error
}

func serve(t *testing.T, ctx context.Context, hub *Hub, userID string, key RoomKey) *session {
	t.Helper()
	s := &session{transport: newFakeTransport(), done: make(chan error, 1)}
	go func() { s.done <- hub.Serve(ctx, s.transport, Identity{UserID: userID}, key) }()
	return s
}

func (s *session) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-s.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve did not return")
		return nil
	}
}

func waitForSubscribers(t *testing.T, hub *Hub, key RoomKey, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Registry().Len(key) == n }, 2*time.Second, 5*time.Millisecond)
}

func TestServeRejectsMissingIdentity(t *testing.T) {
	called := false
	hub, _ := newTestHub(t, authorizerFunc(func(context.Context, string, RoomKey) (bool, error) {
		called = true
		return true, nil
	}), 8)

	s := serve(t, context.Background(), hub, "", GroupRoom("g1"))

	assert.ErrorIs(t, s.wait(t), ErrUnauthenticated)
	code, reason := s.transport.closeFrame()
	assert.Equal(t, CloseUnauthenticated, code)
	assert.Equal(t, "unauthenticated", reason)
	assert.False(t, called)
	assert.Zero(t, hub.Registry().RoomCount())
}

func TestServeRejectsUnauthorizedUser(t *testing.T) {
	hub, _ := newTestHub(t, authorizerFunc(func(_ context.Context, userID string, key RoomKey) (bool, error) {
		return userID == "alice" && key == GroupRoom("g1"), nil
	}), 8)

	s := serve(t, context.Background(), hub, "mallory", GroupRoom("g1"))

	assert.ErrorIs(t, s.wait(t), ErrUnauthorized)
	code, reason := s.transport.closeFrame()
	assert.Equal(t, CloseUnauthorized, code)
	assert.Equal(t, "unauthorized", reason)
	assert.Zero(t, hub.Registry().Len(GroupRoom("g1")))
}

func TestServeClosesWithInternalErrorWhenAuthorizerFails(t *testing.T) {
	boom := errors.New("store down")
	hub, _ := newTestHub(t, authorizerFunc(func(context.Context, string, RoomKey) (bool, error) {
		return false, boom
	}), 8)

	s := serve(t, context.Background(), hub, "alice", GroupRoom("g1"))

	assert.ErrorIs(t, s.wait(t), boom)
	code, _ := s.transport.closeFrame()
	assert.Equal(t, CloseInternalError, code)
}

func TestBroadcastReachesSnapshotOnly(t *testing.T) {
	hub, metrics := newTestHub(t, allowAll(), 8)
	key := GroupRoom("g1")

	first := serve(t, context.Background(), hub, "alice", key)
	waitForSubscribers(t, hub, key, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.connections.WithLabelValues("group")))

	require.NoError(t, hub.BroadcastToRoom(key, map[string]string{"type": "availability_changed", "groupId": "g1"}))
	frame := first.transport.next(t)
	assert.JSONEq(t, `{"type":"availability_changed","groupId":"g1"}`, string(frame["event"]))
	assert.Len(t, frame, 1, "frames carry no envelope beyond event")

	late := serve(t, context.Background(), hub, "bob", key)
	waitForSubscribers(t, hub, key, 2)
	late.transport.expectSilence(t)

	first.transport.Close()
	late.transport.Close()
	assert.NoError(t, first.wait(t))
	assert.NoError(t, late.wait(t))
	waitForSubscribers(t, hub, key, 0)
	assert.Zero(t, hub.Registry().RoomCount())
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.connections.WithLabelValues("group")))
}

func TestClientMessagesAreRelayedToWholeRoom(t *testing.T) {
	hub, _ := newTestHub(t, allowAll(), 8)
	key := ScheduleRoom("s1")
	other := ScheduleRoom("s2")

	sender := serve(t, context.Background(), hub, "alice", key)
	peer := serve(t, context.Background(), hub, "alice", key)
	outsider := serve(t, context.Background(), hub, "alice", other)
	waitForSubscribers(t, hub, key, 2)
	waitForSubscribers(t, hub, other, 1)

	sender.transport.inbound <- []byte(`{"event":{"cursor":3}}`)
	assert.JSONEq(t, `{"cursor":3}`, string(sender.transport.next(t)["event"]))
	assert.JSONEq(t, `{"cursor":3}`, string(peer.transport.next(t)["event"]))
	outsider.transport.expectSilence(t)

	sender.transport.inbound <- []byte(`{"note":"no event field"}`)
	sender.transport.inbound <- []byte(`not json`)
	sender.transport.inbound <- []byte(`{"event":null}`)
	assert.Equal(t, "null", string(sender.transport.next(t)["event"]))
	assert.Equal(t, "null", string(peer.transport.next(t)["event"]))

	for _, s := range []*session{sender, peer, outsider} {
		close(s.transport.inbound)
		assert.NoError(t, s.wait(t))
	}
}

func TestBroadcastOrderIsPreservedPerRoom(t *testing.T) {
	hub, _ := newTestHub(t, allowAll(), 128)
	key := GroupRoom("g1")
	a := serve(t, context.Background(), hub, "alice", key)
	b := serve(t, context.Background(), hub, "bob", key)
	waitForSubscribers(t, hub, key, 2)

	for i := 0; i < 50; i++ {
		require.NoError(t, hub.BroadcastToRoom(key, map[string]int{"seq": i}))
	}
	for _, s := range []*session{a, b} {
		for i := 0; i < 50; i++ {
			var payload struct{ Seq int }
			require.NoError(t, json.Unmarshal(s.transport.next(t)["event"], &payload))
			require.Equal(t, i, payload.Seq)
		}
		s.transport.Close()
		assert.NoError(t, s.wait(t))
	}
}

func TestSlowSubscriberIsDroppedWithoutBlockingOthers(t *testing.T) {
	hub, metrics := newTestHub(t, allowAll(), 1)
	key := GroupRoom("g1")

	slow := serve(t, context.Background(), hub, "alice", key)
	slow.transport.writeGate = make(chan struct{})
	slow.transport.closeWait = 500 * time.Millisecond
	fast := serve(t, context.Background(), hub, "bob", key)
	waitForSubscribers(t, hub, key, 2)

	require.NoError(t, hub.BroadcastToRoom(key, map[string]int{"n": 1}))
	<-slow.transport.writing // the writer holds frame 1 and the write lock
	fast.transport.next(t)

	require.NoError(t, hub.BroadcastToRoom(key, map[string]int{"n": 2})) // queued
	fast.transport.next(t)

	// The drop must not wait for the close frame, which is stuck behind the writer.
	started := time.Now()
	require.NoError(t, hub.BroadcastToRoom(key, map[string]int{"n": 3})) // queue full
	assert.Less(t, time.Since(started), 200*time.Millisecond)
	fast.transport.next(t)

	assert.Equal(t, 1, hub.Registry().Len(key))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.drops.WithLabelValues("group")))

	assert.NoError(t, slow.wait(t))
	code, _ := slow.transport.closeFrame()
	assert.Equal(t, ClosePolicyViolation, code)

	fast.transport.Close()
	assert.NoError(t, fast.wait(t))
}

func TestServeStopsWhenContextIsCancelled(t *testing.T) {
	hub, _ := newTestHub(t, allowAll(), 8)
	key := GroupRoom("g1")
	ctx, cancel := context.WithCancel(context.Background())

	s := serve(t, ctx, hub, "alice", key)
	waitForSubscribers(t, hub, key, 1)
	cancel()

	assert.NoError(t, s.wait(t))
	code, _ := s.transport.closeFrame()
	assert.Equal(t, CloseNormal, code)
	assert.Zero(t, hub.Registry().Len(key))
}

func TestSessionPanicClosesWithInternalError(t *testing.T) {
	hub, _ := newTestHub(t, allowAll(), 8)
	key := GroupRoom("g1")

	transport := newFakeTransport()
	transport.readPanic = true
	err := hub.Serve(context.Background(), transport, Identity{UserID: "alice"}, key)

	require.Error(t, err)
	code, reason := transport.closeFrame()
	assert.Equal(t, CloseInternalError, code)
	assert.Equal(t, "internal error", reason)
	assert.Zero(t, hub.Registry().Len(key))
}

func TestBroadcastRejectsUnencodablePayload(t *testing.T) {
	hub, _ := newTestHub(t, allowAll(), 8)
	assert.Error(t, hub.BroadcastToRoom(GroupRoom("g1"), func() {}))
}
