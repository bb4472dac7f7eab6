// Package memory provides an in-process broadcast transport: a hub of named
// channels where every post is delivered synchronously to every subscriber of
// the same name, the sender's own subscribers included. It stands in for a
// browser BroadcastChannel between stores living in one process.
package memory

import (
	"sync"

	"mfestate/pkg/domain"
)

// Hub routes payloads between channels that joined the same name.
type Hub struct {
	mu     sync.Mutex
	nextID uint64
	rooms  map[string][]subscriber
}

type subscriber struct {
	id uint64
	fn func([]byte)
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string][]subscriber)}
}

var defaultHub = NewHub()

// DefaultHub returns the process-wide hub used by config-driven stores.
func DefaultHub() *Hub { return defaultHub }

// Join returns a channel endpoint attached to name.
func (h *Hub) Join(name string) *Channel {
	return &Channel{hub: h, name: name, subs: make(map[uint64]struct{})}
}

// Subscribers reports how many subscriptions name currently has.
func (h *Hub) Subscribers(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[name])
}

func (h *Hub) subscribe(name string, fn func([]byte)) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.rooms[name] = append(h.rooms[name], subscriber{id: h.nextID, fn: fn})
	return h.nextID
}

func (h *Hub) unsubscribe(name string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[name]
	next := make([]subscriber, 0, len(room))
	for _, sub := range room {
		if sub.id != id {
			next = append(next, sub)
		}
	}
	if len(next) == 0 {
		delete(h.rooms, name)
		return
	}
	h.rooms[name] = next
}

// deliver calls every subscriber of name outside the hub lock, in
// subscription order, each with its own copy of payload.
func (h *Hub) deliver(name string, payload []byte) {
	h.mu.Lock()
	room := h.rooms[name]
	h.mu.Unlock()
	for _, sub := range room {
		sub.fn(append([]byte(nil), payload...))
	}
}

// Channel is one endpoint on a hub. It implements domain.Channel.
type Channel struct {
	hub  *Hub
	name string

	mu     sync.Mutex
	subs   map[uint64]struct{}
	closed bool
}

var _ domain.Channel = (*Channel)(nil)

// Name returns the channel name.
func (c *Channel) Name() string { return c.name }

// Post delivers payload to every subscriber of the channel name.
func (c *Channel) Post(payload []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return domain.ErrChannelClosed
	}
	c.hub.deliver(c.name, payload)
	return nil
}

// Subscribe registers fn for payloads posted on the channel name.
func (c *Channel) Subscribe(fn func(payload []byte)) domain.Unsubscribe {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || fn == nil {
		return func() {}
	}
	id := c.hub.subscribe(c.name, fn)
	c.subs[id] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			c.hub.unsubscribe(c.name, id)
		})
	}
}

// Close drops every subscription made through this endpoint.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ids := make([]uint64, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	c.subs = nil
	c.mu.Unlock()
	for _, id := range ids {
		c.hub.unsubscribe(c.name, id)
	}
	return nil
}
