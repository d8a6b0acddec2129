package realtime

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSubscriber struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (s *stubSubscriber) ID() string { return s.id }

func (s *stubSubscriber) Enqueue(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *stubSubscriber) received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.frames...)
}

func TestRegistryAddRemoveIsIdempotent(t *testing.T) {
	registry := NewRegistry()
	key := GroupRoom("g1")
	sub := &stubSubscriber{id: "c1"}

	registry.Add(key, sub)
	registry.Add(key, sub)
	assert.Equal(t, 1, registry.Len(key))
	assert.Equal(t, 1, registry.RoomCount())

	assert.True(t, registry.Remove(key, "c1"))
	assert.False(t, registry.Remove(key, "c1"))
	assert.Equal(t, 0, registry.Len(key))
	assert.Equal(t, 0, registry.RoomCount(), "empty rooms are collected")
	assert.Empty(t, registry.Subscribers(key))
}

func TestRegistryRoomsAreIsolated(t *testing.T) {
	registry := NewRegistry()
	a := &stubSubscriber{id: "a"}
	b := &stubSubscriber{id: "b"}
	registry.Add(GroupRoom("g1"), a)
	registry.Add(ScheduleRoom("g1"), b)

	delivered, failed := registry.Fanout(GroupRoom("g1"), []byte("x"))

	assert.Equal(t, 1, delivered)
	assert.Empty(t, failed)
	assert.Len(t, a.received(), 1)
	assert.Empty(t, b.received())
}

func TestRegistryFanoutReportsFailures(t *testing.T) {
	registry := NewRegistry()
	key := GroupRoom("g1")
	ok := &stubSubscriber{id: "ok"}
	bad := &stubSubscriber{id: "bad", err: ErrSendQueueFull}
	registry.Add(key, ok)
	registry.Add(key, bad)

	delivered, failed := registry.Fanout(key, []byte("x"))

	assert.Equal(t, 1, delivered)
	require.Len(t, failed, 1)
	assert.Equal(t, "bad", failed[0].ID())
	assert.Equal(t, 2, registry.Len(key), "fanout leaves removal to the caller")
}

func TestRegistryFanoutToUnknownRoom(t *testing.T) {
	delivered, failed := NewRegistry().Fanout(GroupRoom("missing"), []byte("x"))
	assert.Zero(t, delivered)
	assert.Nil(t, failed)
}

func TestRegistryConcurrentAddRemove(t *testing.T) {
	registry := NewRegistry()
	keys := []RoomKey{GroupRoom("g1"), GroupRoom("g2"), ScheduleRoom("s1")}

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := keys[i%len(keys)]
			sub := &stubSubscriber{id: fmt.Sprintf("c%d", i)}
			for j := 0; j < 100; j++ {
				registry.Add(key, sub)
				registry.Fanout(key, []byte("x"))
				registry.Subscribers(key)
				registry.Remove(key, sub.id)
			}
		}(i)
	}
	wg.Wait()

	for _, key := range keys {
		assert.Zero(t, registry.Len(key))
	}
	assert.Zero(t, registry.RoomCount())
}

func TestRegistryKeepsSubscribersAddedDuringCollection(t *testing.T) {
	registry := NewRegistry()
	key := GroupRoom("g1")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(2)
		stay := &stubSubscriber{id: fmt.Sprintf("stay-%d", i)}
		leave := &stubSubscriber{id: fmt.Sprintf("leave-%d", i)}
		registry.Add(key, leave)
		go func() {
			defer wg.Done()
			registry.Remove(key, leave.id)
		}()
		go func() {
			defer wg.Done()
			registry.Add(key, stay)
		}()
	}
	wg.Wait()

	assert.Equal(t, 32, registry.Len(key))
}

func TestParseNamespace(t *testing.T) {
	ns, ok := ParseNamespace("groups")
	assert.True(t, ok)
	assert.Equal(t, NamespaceGroup, ns)

	ns, ok = ParseNamespace("schedules")
	assert.True(t, ok)
	assert.Equal(t, NamespaceSchedule, ns)

	_, ok = ParseNamespace("group")
	assert.False(t, ok)

	assert.Equal(t, "schedule:s1", ScheduleRoom("s1").String())
}
