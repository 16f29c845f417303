package core

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/vovakirdan/mentorwire/internal/observability"
)

// DefaultEventBuffer is the outbound queue size used when none is configured.
const DefaultEventBuffer = 64

// Client is one live transport connection as seen by the core layer.
// A user may own several clients (tabs, devices).
type Client struct {
	ID          string
	ConnectedAt time.Time
	Events      chan Event

	userID atomic.Int64
	name   atomic.Value // string

	mu     sync.Mutex
	closed bool
}

// NewClient constructs a client with an initialized event queue.
func NewClient(id string, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	c := &Client{
		ID:          id,
		ConnectedAt: time.Now(),
		Events:      make(chan Event, buffer),
	}
	c.name.Store("")
	return c
}

// UserID returns the identity the connection joined as, or 0 before join.
func (c *Client) UserID() int64 {
	return c.userID.Load()
}

// Name returns the display name supplied at join.
func (c *Client) Name() string {
	return c.name.Load().(string)
}

// Push queues an event without blocking. It reports false when the queue is
// full or the client is closed; the event is then lost for this connection only.
func (c *Client) Push(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.Events <- ev:
		return true
	default:
		observability.IncDroppedEvent()
		return false
	}
}

// Close stops further pushes and closes the event channel. Safe to call twice.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.Events)
}
