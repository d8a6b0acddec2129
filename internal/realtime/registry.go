package realtime

import "sync"

// Subscriber is a connection registered in a room.
type Subscriber interface {
	ID() string
	// Enqueue hands a frame to the subscriber without blocking on its I/O.
	Enqueue(frame []byte) error
}

// Registry maps room keys to their subscribers. Safe for concurrent use. Rooms are
// created on the first Add and removed when their last subscriber leaves.
type Registry struct {
	mu    sync.RWMutex
	rooms map[RoomKey]*room
}

type room struct {
	mu          sync.Mutex
	subscribers map[string]Subscriber
	// retired is set once the room has been removed from the registry map.
	retired bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[RoomKey]*room)}
}

// Add registers sub under key. Adding the same subscriber twice is a no-op.
func (r *Registry) Add(key RoomKey, sub Subscriber) {
	for {
		rm := r.roomFor(key, true)
		rm.mu.Lock()
		if rm.retired {
			// Lost a race with the last Remove; retry against a fresh room.
			rm.mu.Unlock()
			continue
		}
		rm.subscribers[sub.ID()] = sub
		rm.mu.Unlock()
		return
	}
}

// Remove unregisters the subscriber id from key. It reports whether the subscriber
// was present; removing an absent subscriber is a no-op.
func (r *Registry) Remove(key RoomKey, id string) bool {
	rm := r.roomFor(key, false)
	if rm == nil {
		return false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, ok := rm.subscribers[id]; !ok {
		return false
	}
	delete(rm.subscribers, id)

	if len(rm.subscribers) == 0 && !rm.retired {
		rm.retired = true
		r.mu.Lock()
		if r.rooms[key] == rm {
			delete(r.rooms, key)
		}
		r.mu.Unlock()
	}
	return true
}

// Subscribers returns a snapshot of the room's subscribers.
func (r *Registry) Subscribers(key RoomKey) []Subscriber {
	rm := r.roomFor(key, false)
	if rm == nil {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	out := make([]Subscriber, 0, len(rm.subscribers))
	for _, sub := range rm.subscribers {
		out = append(out, sub)
	}
	return out
}

// Len returns the number of subscribers in a room.
func (r *Registry) Len(key RoomKey) int {
	rm := r.roomFor(key, false)
	if rm == nil {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.subscribers)
}

// RoomCount returns the number of rooms with at least one subscriber.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Fanout enqueues frame to every subscriber of the room while holding the room lock,
// so concurrent fan-outs to one room are observed in a single order by all of its
// subscribers. Subscribers whose Enqueue fails are returned and left registered;
// the caller decides how to drop them.
func (r *Registry) Fanout(key RoomKey, frame []byte) (delivered int, failed []Subscriber) {
	rm := r.roomFor(key, false)
	if rm == nil {
		return 0, nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	for _, sub := range rm.subscribers {
		if err := sub.Enqueue(frame); err != nil {
			failed = append(failed, sub)
			continue
		}
		delivered++
	}
	return delivered, failed
}

func (r *Registry) roomFor(key RoomKey, create bool) *room {
	r.mu.RLock()
	rm := r.rooms[key]
	r.mu.RUnlock()
	if rm != nil || !create {
		return rm
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rm = r.rooms[key]; rm == nil {
		rm = &room{subscribers: make(map[string]Subscriber)}
		r.rooms[key] = rm
	}
	return rm
}
