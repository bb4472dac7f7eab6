package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mfestate/pkg/domain"
)

// crossInstanceSync posts committed local writes on a shared channel and
// applies sibling writes received from it.
type crossInstanceSync struct {
	store       *Store
	channel     domain.Channel
	unsubscribe domain.Unsubscribe
	closed      atomic.Bool

	inboxMu  sync.Mutex
	inbox    [][]byte
	draining bool
}

func newCrossInstanceSync(s *Store, ch domain.Channel) *crossInstanceSync {
	b := &crossInstanceSync{store: s, channel: ch}
	b.unsubscribe = ch.Subscribe(b.receive)
	return b
}

func (b *crossInstanceSync) publish(ev domain.ChangeEvent, deleted bool) {
	msg := domain.Message{
		Type: domain.MessageUpdate,
		Event: &domain.WireEvent{
			Key:           ev.Key,
			Value:         Sanitize(ev.Value),
			PreviousValue: Sanitize(ev.PreviousValue),
			Source:        ev.Source,
			Timestamp:     ev.Timestamp.UnixMilli(),
		},
		InstanceID: b.store.instanceID,
	}
	if deleted {
		msg.Type = domain.MessageDelete
		msg.Event.Value = nil
	}
	b.post(msg)
}

func (b *crossInstanceSync) publishClear() {
	b.post(domain.Message{Type: domain.MessageClear, InstanceID: b.store.instanceID})
}

func (b *crossInstanceSync) post(msg domain.Message) {
	started := time.Now()
	err := b.send(msg)
	if err != nil {
		b.store.logger.Warnf("broadcast %s: %v", describe(msg), err)
	}
	b.store.metrics.Observe(context.Background(), "broadcast", err == nil, time.Since(started))
}

func (b *crossInstanceSync) send(msg domain.Message) (err error) {
	if b.closed.Load() {
		return domain.ErrChannelClosed
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("transport panicked: %v", rec)
		}
	}()
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return b.channel.Post(payload)
}

// receive queues payload and, unless another call is already draining the
// inbox, applies queued messages one at a time until it is empty. Applies
// therefore never interleave, and a delivery that arrives while this instance
// is applying (on any goroutine, including a nested synchronous one) is
// handled after the current message instead of inside it.
func (b *crossInstanceSync) receive(payload []byte) {
	if b.closed.Load() {
		return
	}
	b.inboxMu.Lock()
	b.inbox = append(b.inbox, payload)
	if b.draining {
		b.inboxMu.Unlock()
		return
	}
	b.draining = true
	for len(b.inbox) > 0 {
		next := b.inbox[0]
		b.inbox[0] = nil
		b.inbox = b.inbox[1:]
		b.inboxMu.Unlock()
		b.apply(next)
		b.inboxMu.Lock()
	}
	b.draining = false
	b.inboxMu.Unlock()
}

// apply commits one message as a remote change: listeners fire with a
// "(cross-tab)" source, nothing is persisted and nothing is re-broadcast.
// Messages posted by this instance are ignored.
func (b *crossInstanceSync) apply(payload []byte) {
	if b.closed.Load() {
		return
	}
	var msg domain.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.store.logger.Warnf("drop undecodable broadcast: %v", err)
		b.store.metrics.Observe(context.Background(), "apply", false, 0)
		return
	}
	if msg.InstanceID == b.store.instanceID {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			b.store.logger.Errorf("apply %s panicked: %v", describe(msg), rec)
		}
	}()

	started := time.Now()
	s := b.store

	ok := true
	switch msg.Type {
	case domain.MessageUpdate:
		if msg.Event == nil || msg.Event.Key == "" {
			ok = false
			break
		}
		s.commit([]change{{event: domain.ChangeEvent{
			Key:    msg.Event.Key,
			Value:  msg.Event.Value,
			Source: remoteSource(msg.Event.Source),
		}}}, true)
	case domain.MessageDelete:
		if msg.Event == nil || msg.Event.Key == "" {
			ok = false
			break
		}
		if _, present := s.Lookup(msg.Event.Key); !present {
			break
		}
		s.commit([]change{{
			event:   domain.ChangeEvent{Key: msg.Event.Key, Source: remoteSource(msg.Event.Source)},
			deleted: true,
		}}, true)
	case domain.MessageClear:
		s.wipe(remoteSource(domain.SourceClear))
	default:
		ok = false
	}
	if !ok {
		s.logger.Warnf("drop malformed broadcast %s from %s", describe(msg), msg.InstanceID)
	}
	s.metrics.Observe(context.Background(), "apply", ok, time.Since(started))
}

func (b *crossInstanceSync) close() {
	if b.closed.Swap(true) {
		return
	}
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
}

func remoteSource(source string) string {
	if source == "" {
		source = domain.SourceUnknown
	}
	return source + domain.SourceCrossTab
}

func describe(msg domain.Message) string {
	if msg.Event != nil {
		return fmt.Sprintf("%s %q", msg.Type, msg.Event.Key)
	}
	return string(msg.Type)
}
