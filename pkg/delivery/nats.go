package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"direct-chat-be/pkg/conversation"
)

// NatsBus implements Publisher and Subscriber over a shared NATS connection.
// Core NATS (not JetStream) is deliberate: a conversation attachment is an
// ephemeral delivery window, not a durable consumer; missed messages are
// recovered by the history load on the next attach.
type NatsBus struct {
	nc *nats.Conn

	mu   sync.Mutex
	subs map[*natsSubscription]struct{}
}

func NewNatsBus(url string) (*NatsBus, error) {
	b := &NatsBus{
		subs: make(map[*natsSubscription]struct{}),
	}

	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
		nats.ClosedHandler(func(c *nats.Conn) {
			// Reconnect attempts exhausted; every open attachment is dead.
			b.dropAll(fmt.Errorf("nats connection closed: %w", c.LastError()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	b.nc = nc
	return b, nil
}

func (b *NatsBus) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message event: %w", err)
	}

	if err := b.nc.Publish(SubjectFor(msg.Pair()), data); err != nil {
		return fmt.Errorf("failed to publish message event: %w", err)
	}
	return nil
}

func (b *NatsBus) Attach(pair conversation.Pair, handler Handler, onDrop DropHandler) (Subscription, error) {
	s := &natsSubscription{bus: b, onDrop: onDrop}

	sub, err := b.nc.Subscribe(SubjectFor(pair), func(m *nats.Msg) {
		var msg Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			log.Printf("delivery: dropping undecodable event on %s: %v", m.Subject, err)
			return
		}
		// Subject scoping already guarantees the pair, but re-check so a foreign
		// publisher on the subject cannot leak into the log.
		if !pair.Matches(msg.SenderId, msg.ReceiverId) {
			return
		}
		handler(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to %s: %w", SubjectFor(pair), err)
	}

	s.sub = sub

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	return s, nil
}

func (b *NatsBus) dropAll(err error) {
	b.mu.Lock()
	active := make([]*natsSubscription, 0, len(b.subs))
	for s := range b.subs {
		active = append(active, s)
	}
	b.subs = make(map[*natsSubscription]struct{})
	b.mu.Unlock()

	for _, s := range active {
		s.drop(err)
	}
}

func (b *NatsBus) remove(s *natsSubscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

func (b *NatsBus) Close() error {
	if b.nc != nil {
		b.nc.Close()
	}
	return nil
}

type natsSubscription struct {
	bus    *NatsBus
	sub    *nats.Subscription
	onDrop DropHandler
	once   sync.Once
}

func (s *natsSubscription) Detach() {
	s.once.Do(func() {
		s.bus.remove(s)
		if err := s.sub.Unsubscribe(); err != nil {
			log.Printf("delivery: unsubscribe failed: %v", err)
		}
	})
}

// drop fires the drop callback unless the subscription was already detached.
func (s *natsSubscription) drop(err error) {
	s.once.Do(func() {
		if s.onDrop != nil {
			s.onDrop(err)
		}
	})
}
