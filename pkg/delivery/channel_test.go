package delivery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"direct-chat-be/pkg/conversation"
)

type collector struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *collector) handle(msg Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func waitForCount(t *testing.T, c *collector, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.count() >= want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("received %d messages, want %d", c.count(), want)
}

func TestChannelBusDeliversToAttachedPair(t *testing.T) {
	bus := NewChannelBus()
	defer bus.Close()

	a := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	b := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	pair := conversation.NewPair(a, b)

	col := &collector{}
	sub, err := bus.Attach(pair, col.handle, nil)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer sub.Detach()

	msg := Message{Id: uuid.New(), Content: "hello", SenderId: a, ReceiverId: b, CreatedAt: time.Now()}
	if err := bus.Publish(context.Background(), msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitForCount(t, col, 1)
	col.mu.Lock()
	got := col.msgs[0]
	col.mu.Unlock()
	if got.Id != msg.Id || got.Content != "hello" {
		t.Errorf("received %+v, want %+v", got, msg)
	}
}

func TestChannelBusIsolatesConversations(t *testing.T) {
	bus := NewChannelBus()
	defer bus.Close()

	a := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	b := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	c := uuid.MustParse("33333333-3333-3333-3333-333333333333")

	abCol := &collector{}
	abSub, err := bus.Attach(conversation.NewPair(a, b), abCol.handle, nil)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer abSub.Detach()

	acCol := &collector{}
	acSub, err := bus.Attach(conversation.NewPair(a, c), acCol.handle, nil)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer acSub.Detach()

	bus.Publish(context.Background(), Message{Id: uuid.New(), SenderId: c, ReceiverId: a, CreatedAt: time.Now()})
	waitForCount(t, acCol, 1)

	if abCol.count() != 0 {
		t.Errorf("a-b attachment received %d messages from the a-c conversation", abCol.count())
	}
}

func TestDetachStopsDeliveryAndIsIdempotent(t *testing.T) {
	bus := NewChannelBus()
	defer bus.Close()

	a := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	b := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	pair := conversation.NewPair(a, b)

	col := &collector{}
	dropped := make(chan error, 1)
	sub, err := bus.Attach(pair, col.handle, func(err error) { dropped <- err })
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	sub.Detach()
	sub.Detach()

	bus.Publish(context.Background(), Message{Id: uuid.New(), SenderId: a, ReceiverId: b, CreatedAt: time.Now()})
	time.Sleep(30 * time.Millisecond)

	if col.count() != 0 {
		t.Errorf("detached attachment still received %d messages", col.count())
	}
	select {
	case err := <-dropped:
		t.Errorf("deliberate detach reported as a drop: %v", err)
	default:
	}
}

func TestBusCloseReportsDrop(t *testing.T) {
	bus := NewChannelBus()

	a := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	b := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	dropped := make(chan error, 1)
	if _, err := bus.Attach(conversation.NewPair(a, b), func(Message) {}, func(err error) { dropped <- err }); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	bus.Close()

	select {
	case <-dropped:
	case <-time.After(2 * time.Second):
		t.Fatal("bus close never reported a drop to the live attachment")
	}
}

func TestSubjectForIsDirectionless(t *testing.T) {
	a := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	b := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	s1 := SubjectFor(conversation.NewPair(a, b))
	s2 := SubjectFor(conversation.NewPair(b, a))
	if s1 != s2 {
		t.Errorf("subjects differ by direction: %q vs %q", s1, s2)
	}

	msgPair := Message{SenderId: b, ReceiverId: a}.Pair()
	if SubjectFor(msgPair) != s1 {
		t.Errorf("message-derived subject %q, want %q", SubjectFor(msgPair), s1)
	}
}
