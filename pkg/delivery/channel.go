package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"direct-chat-be/pkg/conversation"
)

// ChannelBus implements Publisher and Subscriber on a watermill gochannel
// pub/sub. Single-process only; used by the local profile and by tests.
type ChannelBus struct {
	pubSub *gochannel.GoChannel
}

func NewChannelBus() *ChannelBus {
	return &ChannelBus{
		pubSub: gochannel.NewGoChannel(
			gochannel.Config{},
			watermill.NewStdLogger(false, false),
		),
	}
}

func (b *ChannelBus) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message event: %w", err)
	}

	wm := message.NewMessage(watermill.NewUUID(), data)
	if err := b.pubSub.Publish(SubjectFor(msg.Pair()), wm); err != nil {
		return fmt.Errorf("failed to publish message event: %w", err)
	}
	return nil
}

func (b *ChannelBus) Attach(pair conversation.Pair, handler Handler, onDrop DropHandler) (Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())

	messages, err := b.pubSub.Subscribe(ctx, SubjectFor(pair))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to attach to %s: %w", SubjectFor(pair), err)
	}

	s := &channelSubscription{cancel: cancel}

	go func() {
		for wm := range messages {
			var msg Message
			if err := json.Unmarshal(wm.Payload, &msg); err != nil {
				log.Printf("delivery: dropping undecodable event: %v", err)
				wm.Ack()
				continue
			}
			wm.Ack()
			if !pair.Matches(msg.SenderId, msg.ReceiverId) {
				continue
			}
			handler(msg)
		}
		// Channel closed without a Detach means the bus itself went away.
		s.drop(onDrop, fmt.Errorf("delivery channel closed"))
	}()

	return s, nil
}

func (b *ChannelBus) Close() error {
	return b.pubSub.Close()
}

type channelSubscription struct {
	cancel context.CancelFunc
	once   sync.Once
}

func (s *channelSubscription) Detach() {
	s.once.Do(s.cancel)
}

func (s *channelSubscription) drop(onDrop DropHandler, err error) {
	s.once.Do(func() {
		s.cancel()
		if onDrop != nil {
			onDrop(err)
		}
	})
}
