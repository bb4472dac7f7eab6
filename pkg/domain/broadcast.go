package domain

import "time"

// MessageType identifies a broadcast message kind on the wire.
type MessageType string

// Wire message kinds exchanged between sibling instances.
const (
	MessageUpdate MessageType = "STATE_UPDATE"
	MessageDelete MessageType = "STATE_DELETE"
	MessageClear  MessageType = "STATE_CLEAR"
)

// WireEvent is the serializable rendering of a ChangeEvent. Values have
// already passed through the serialization guard. Timestamp is in
// milliseconds since the Unix epoch.
type WireEvent struct {
	Key           string `json:"key"`
	Value         any    `json:"value"`
	PreviousValue any    `json:"previousValue"`
	Source        string `json:"source"`
	Timestamp     int64  `json:"timestamp"`
}

// Time returns the event timestamp as a time.Time.
func (e WireEvent) Time() time.Time {
	return time.UnixMilli(e.Timestamp).UTC()
}

// Message is the JSON object posted on a shared channel. Event is absent for
// STATE_CLEAR.
type Message struct {
	Type       MessageType `json:"type"`
	Event      *WireEvent  `json:"event,omitempty"`
	InstanceID string      `json:"instanceId"`
}

// Channel is the best-effort broadcast capability the store requires from its
// host. Delivery is at-most-once and unordered across senders. A transport may
// deliver a sender's own posts back to it; receivers filter by instance id.
type Channel interface {
	// Post publishes an encoded Message to every subscriber of the channel.
	Post(payload []byte) error
	// Subscribe registers fn for inbound payloads. fn may be invoked from a
	// transport goroutine.
	Subscribe(fn func(payload []byte)) Unsubscribe
	// Close detaches from the channel. Further posts fail with ErrChannelClosed.
	Close() error
}
