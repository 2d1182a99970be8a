package core

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultSendBuffer is the outbound queue size used when none is configured.
const DefaultSendBuffer = 64

// Identity is the user bound to a connection.
type Identity struct {
	UserID   string
	Username string
	// Verified is set when the identity came from a verified token.
	// A verified identity cannot be replaced by a presence frame.
	Verified bool
}

// Client is one live connection as seen by the core layer.
// It belongs to exactly one room for its whole life.
type Client struct {
	ID   string
	Room string
	Kind RoomKind

	mu       sync.RWMutex
	identity Identity

	events    chan *Event
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once

	lastActive   atomic.Int64
	attendanceID atomic.Int64
}

// NewClient constructs a client bound to the room of the given kind and id.
func NewClient(id string, kind RoomKind, roomID string, identity Identity, sendBuffer int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	c := &Client{
		ID:       id,
		Room:     kind.Key(roomID),
		Kind:     kind,
		identity: identity,
		events:   make(chan *Event, sendBuffer),
		done:     make(chan struct{}),
	}
	c.Touch()
	return c
}

// Events is the outbound queue drained by the transport writer.
func (c *Client) Events() <-chan *Event {
	return c.events
}

// Done is closed once the client has been disconnected.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Closed reports whether the client has been disconnected.
func (c *Client) Closed() bool {
	return c.closed.Load()
}

// Identity returns the identity currently bound to the connection.
func (c *Client) Identity() Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// SetIdentity attaches identity metadata after a presence handshake.
// Returns false when a verified identity is already bound.
func (c *Client) SetIdentity(id Identity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity.Verified {
		return false
	}
	id.Verified = false
	c.identity = id
	return true
}

// UserID returns the bound user id, or the connection id for anonymous clients.
func (c *Client) UserID() string {
	if id := c.Identity().UserID; id != "" {
		return id
	}
	return c.ID
}

// senderID resolves who a payload speaks for. A verified identity always wins
// over the user_id field of the payload.
func (c *Client) senderID(claimed string) string {
	id := c.Identity()
	switch {
	case id.Verified && id.UserID != "":
		return id.UserID
	case claimed != "":
		return claimed
	default:
		return c.UserID()
	}
}

// Touch records activity on the connection.
func (c *Client) Touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

// LastActive returns the time of the last inbound frame or successful write.
func (c *Client) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

// deliver enqueues without blocking.
func (c *Client) deliver(ev *Event) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	select {
	case c.events <- ev:
		return nil
	default:
		return ErrQueueSaturated
	}
}

// markClosed flips the liveness flag. Only the first caller gets true.
func (c *Client) markClosed() bool {
	return c.closed.CompareAndSwap(false, true)
}

func (c *Client) release() {
	c.closeOnce.Do(func() { close(c.done) })
}
