package realtime

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Close codes sent to clients.
const (
	CloseNormal          = 1000
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
	CloseUnauthenticated = 4401
	CloseUnauthorized    = 4403
)

var (
	// ErrSendQueueFull is returned by Enqueue when a subscriber is not draining its queue.
	ErrSendQueueFull = errors.New("realtime: send queue full")
	// ErrConnectionClosed is returned by Enqueue after the connection has closed.
	ErrConnectionClosed = errors.New("realtime: connection closed")
)

// Transport is the message-oriented socket a connection runs on. WriteMessage is only
// called from the connection's writer goroutine; WriteClose and Close may be called
// concurrently with it.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	WriteClose(code int, reason string) error
	Close() error
}

// State is the lifecycle stage of a connection.
type State int32

const (
	StateConnecting State = iota
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is one client connection subscribed to a single room.
type Conn struct {
	id        string
	userID    string
	key       RoomKey
	transport Transport

	state atomic.Int32
	send  chan []byte
	done  chan struct{}
	once  sync.Once
}

func newConn(id, userID string, key RoomKey, transport Transport, buffer int) *Conn {
	if buffer <= 0 {
		buffer = 1
	}
	c := &Conn{
		id:        id,
		userID:    userID,
		key:       key,
		transport: transport,
		send:      make(chan []byte, buffer),
		done:      make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))
	return c
}

// ID implements Subscriber.
func (c *Conn) ID() string { return c.id }

// UserID returns the authenticated user behind the connection.
func (c *Conn) UserID() string { return c.userID }

// Room returns the key of the room the connection joined.
func (c *Conn) Room() RoomKey { return c.key }

// State returns the current lifecycle stage.
func (c *Conn) State() State { return State(c.state.Load()) }

// Enqueue implements Subscriber. It never blocks.
func (c *Conn) Enqueue(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSendQueueFull
	}
}

// join moves the connection from Connecting to Joined.
func (c *Conn) join() bool {
	return c.state.CompareAndSwap(int32(StateConnecting), int32(StateJoined))
}

// shutdown closes the connection once, optionally sending a close frame first. It
// reports whether this call performed the transition to Closed.
func (c *Conn) shutdown(code int, reason string) bool {
	if !c.markClosed() {
		return false
	}
	c.release(code, reason)
	return true
}

// evict is shutdown for callers that must not wait on the transport: the close
// frame contends with a writer that may be stuck until its write deadline, so it
// is sent from a separate goroutine.
func (c *Conn) evict(code int, reason string) bool {
	if !c.markClosed() {
		return false
	}
	go c.release(code, reason)
	return true
}

func (c *Conn) markClosed() bool {
	closed := false
	c.once.Do(func() {
		closed = true
		c.state.Store(int32(StateClosed))
		close(c.done)
	})
	return closed
}

func (c *Conn) release(code int, reason string) {
	if code != 0 {
		_ = c.transport.WriteClose(code, reason)
	}
	_ = c.transport.Close()
}

// writeLoop drains the send queue until the connection closes or a write fails.
func (c *Conn) writeLoop(onError func(error)) {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			if err := c.transport.WriteMessage(frame); err != nil {
				onError(err)
				return
			}
		}
	}
}
