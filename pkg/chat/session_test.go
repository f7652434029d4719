package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"direct-chat-be/pkg/conversation"
	"direct-chat-be/pkg/delivery"
)

// ---- fakes ----

type fakeDirectory struct {
	mu      sync.Mutex
	calls   []string
	results map[string][]Profile
	gates   map[string]chan struct{}
	err     error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		results: make(map[string][]Profile),
		gates:   make(map[string]chan struct{}),
	}
}

func (f *fakeDirectory) Search(ctx context.Context, query string, excludeId uuid.UUID, limit int) ([]Profile, error) {
	f.mu.Lock()
	f.calls = append(f.calls, query)
	gate := f.gates[query]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.results[query], nil
}

func (f *fakeDirectory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type sendRecord struct {
	senderId, receiverId uuid.UUID
	content              string
}

type fakeGateway struct {
	mu      sync.Mutex
	history map[string][]delivery.Message
	gates   map[string]chan struct{}
	loadErr error
	sends   []sendRecord
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		history: make(map[string][]delivery.Message),
		gates:   make(map[string]chan struct{}),
	}
}

func (f *fakeGateway) LoadHistory(ctx context.Context, pair conversation.Pair) ([]delivery.Message, error) {
	f.mu.Lock()
	gate := f.gates[pair.Key()]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	out := make([]delivery.Message, len(f.history[pair.Key()]))
	copy(out, f.history[pair.Key()])
	return out, nil
}

func (f *fakeGateway) Send(ctx context.Context, senderId, receiverId uuid.UUID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sendRecord{senderId, receiverId, content})
	return nil
}

func (f *fakeGateway) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

type fakeSubscription struct {
	pair     conversation.Pair
	handler  delivery.Handler
	onDrop   delivery.DropHandler
	mu       sync.Mutex
	detached bool
}

func (s *fakeSubscription) Detach() {
	s.mu.Lock()
	s.detached = true
	s.mu.Unlock()
}

func (s *fakeSubscription) isDetached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detached
}

type fakeSubscriber struct {
	mu        sync.Mutex
	subs      []*fakeSubscription
	attachErr error
}

func (f *fakeSubscriber) Attach(pair conversation.Pair, handler delivery.Handler, onDrop delivery.DropHandler) (delivery.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attachErr != nil {
		return nil, f.attachErr
	}
	s := &fakeSubscription{pair: pair, handler: handler, onDrop: onDrop}
	f.subs = append(f.subs, s)
	return s, nil
}

func (f *fakeSubscriber) attachCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeSubscriber) liveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.subs {
		if !s.isDetached() {
			n++
		}
	}
	return n
}

// push delivers a message to every live subscription for its pair, the way the
// real bus would.
func (f *fakeSubscriber) push(msg delivery.Message) {
	f.mu.Lock()
	subs := make([]*fakeSubscription, len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()

	for _, s := range subs {
		if !s.isDetached() && s.pair.Matches(msg.SenderId, msg.ReceiverId) {
			s.handler(msg)
		}
	}
}

// dropAll kills every live subscription, like a bus-wide connection loss.
func (f *fakeSubscriber) dropAll(err error) {
	f.mu.Lock()
	subs := make([]*fakeSubscription, len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()

	for _, s := range subs {
		if !s.isDetached() {
			s.Detach()
			if s.onDrop != nil {
				s.onDrop(err)
			}
		}
	}
}

// ---- helpers ----

func testConfig() Config {
	return Config{
		SearchDebounce:   20 * time.Millisecond,
		SearchLimit:      10,
		ReattachBackoff:  5 * time.Millisecond,
		ReattachAttempts: 3,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func msg(id byte, from, to uuid.UUID, at time.Time, content string) delivery.Message {
	var raw [16]byte
	raw[15] = id
	return delivery.Message{
		Id:         uuid.UUID(raw),
		Content:    content,
		SenderId:   from,
		ReceiverId: to,
		CreatedAt:  at,
	}
}

func contents(messages []delivery.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.Content
	}
	return out
}

var (
	me    = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	alice = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000002")
	bob   = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000003")
	t0    = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
)

// ---- tests ----

func TestSelectLoadsHistoryAndGoesLive(t *testing.T) {
	gw := newFakeGateway()
	sub := &fakeSubscriber{}
	pair := conversation.NewPair(me, alice)
	gw.history[pair.Key()] = []delivery.Message{
		msg(1, alice, me, t0, "hi"),
		msg(2, me, alice, t0.Add(time.Minute), "hello"),
	}

	s := NewSession(me, newFakeDirectory(), gw, sub, testConfig(), nil)
	defer s.Close()

	if err := s.Select(Profile{Id: alice, Email: "alice@example.com"}); err != nil {
		t.Fatalf("Select: %v", err)
	}
	waitFor(t, "live state", func() bool { return s.Snapshot().State == StateLive })

	snap := s.Snapshot()
	if got := contents(snap.Messages); len(got) != 2 || got[0] != "hi" || got[1] != "hello" {
		t.Errorf("messages = %v, want [hi hello]", got)
	}
	if sub.liveCount() != 1 {
		t.Errorf("live subscriptions = %d, want 1", sub.liveCount())
	}
	if snap.Selected == nil || snap.Selected.Id != alice {
		t.Errorf("selected = %v, want alice", snap.Selected)
	}
}

func TestReselectSameTargetIsNoop(t *testing.T) {
	gw := newFakeGateway()
	sub := &fakeSubscriber{}
	s := NewSession(me, newFakeDirectory(), gw, sub, testConfig(), nil)
	defer s.Close()

	target := Profile{Id: alice, Email: "alice@example.com"}
	s.Select(target)
	waitFor(t, "live state", func() bool { return s.Snapshot().State == StateLive })

	before := sub.attachCount()
	s.Select(target)
	time.Sleep(20 * time.Millisecond)
	if sub.attachCount() != before {
		t.Errorf("re-selecting the same target attached again: %d -> %d", before, sub.attachCount())
	}
}

func TestLiveDeliveryDedupAndOrder(t *testing.T) {
	gw := newFakeGateway()
	sub := &fakeSubscriber{}
	s := NewSession(me, newFakeDirectory(), gw, sub, testConfig(), nil)
	defer s.Close()

	s.Select(Profile{Id: alice})
	waitFor(t, "live state", func() bool { return s.Snapshot().State == StateLive })

	m1 := msg(1, alice, me, t0, "first")
	m2 := msg(2, me, alice, t0.Add(time.Second), "second")

	// Arrives out of creation order, plus a duplicate.
	sub.push(m2)
	sub.push(m1)
	sub.push(m2)

	snap := s.Snapshot()
	if got := contents(snap.Messages); len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("messages = %v, want [first second]", got)
	}
}

func TestDeliveryForOtherConversationIgnored(t *testing.T) {
	gw := newFakeGateway()
	sub := &fakeSubscriber{}
	s := NewSession(me, newFakeDirectory(), gw, sub, testConfig(), nil)
	defer s.Close()

	s.Select(Profile{Id: alice})
	waitFor(t, "live state", func() bool { return s.Snapshot().State == StateLive })

	// Craft a foreign message and hand it straight to the handler, simulating a
	// miswired bus subject.
	sub.mu.Lock()
	handler := sub.subs[0].handler
	sub.mu.Unlock()
	handler(msg(9, bob, me, t0, "wrong room"))

	if snap := s.Snapshot(); len(snap.Messages) != 0 {
		t.Errorf("foreign message leaked into the log: %v", contents(snap.Messages))
	}
}

func TestHistoryRaceMergesLiveArrivals(t *testing.T) {
	gw := newFakeGateway()
	sub := &fakeSubscriber{}
	pair := conversation.NewPair(me, alice)

	h1 := msg(1, alice, me, t0, "h1")
	live := msg(2, me, alice, t0.Add(30*time.Second), "live")
	h2 := msg(3, alice, me, t0.Add(time.Minute), "h2")

	// History contains the live event too: it was created between the query
	// being issued and the subscription attaching.
	gw.history[pair.Key()] = []delivery.Message{h1, live, h2}
	gate := make(chan struct{})
	gw.gates[pair.Key()] = gate

	s := NewSession(me, newFakeDirectory(), gw, sub, testConfig(), nil)
	defer s.Close()

	s.Select(Profile{Id: alice})
	waitFor(t, "subscription attach", func() bool { return sub.liveCount() == 1 })

	// Live event lands while history is still in flight.
	sub.push(live)
	if got := contents(s.Snapshot().Messages); len(got) != 1 || got[0] != "live" {
		t.Fatalf("pre-merge messages = %v, want [live]", got)
	}

	close(gate)
	waitFor(t, "live state", func() bool { return s.Snapshot().State == StateLive })

	if got := contents(s.Snapshot().Messages); len(got) != 3 || got[0] != "h1" || got[1] != "live" || got[2] != "h2" {
		t.Errorf("merged messages = %v, want [h1 live h2]", got)
	}
}

func TestStaleHistoryLoadDiscardedAfterSwitch(t *testing.T) {
	gw := newFakeGateway()
	sub := &fakeSubscriber{}
	alicePair := conversation.NewPair(me, alice)
	bobPair := conversation.NewPair(me, bob)

	gw.history[alicePair.Key()] = []delivery.Message{msg(1, alice, me, t0, "from alice")}
	gw.history[bobPair.Key()] = []delivery.Message{msg(2, bob, me, t0, "from bob")}
	aliceGate := make(chan struct{})
	gw.gates[alicePair.Key()] = aliceGate

	s := NewSession(me, newFakeDirectory(), gw, sub, testConfig(), nil)
	defer s.Close()

	// Alice's slow load is still in flight when the user switches to Bob.
	s.Select(Profile{Id: alice})
	s.Select(Profile{Id: bob})
	waitFor(t, "live state", func() bool { return s.Snapshot().State == StateLive })

	close(aliceGate)
	time.Sleep(30 * time.Millisecond)

	snap := s.Snapshot()
	if got := contents(snap.Messages); len(got) != 1 || got[0] != "from bob" {
		t.Errorf("messages = %v, want [from bob]; stale load leaked through", got)
	}
	if snap.State != StateLive {
		t.Errorf("state = %s, want live", snap.State)
	}
}

func TestSwitchDetachesPreviousSubscription(t *testing.T) {
	gw := newFakeGateway()
	sub := &fakeSubscriber{}
	s := NewSession(me, newFakeDirectory(), gw, sub, testConfig(), nil)
	defer s.Close()

	s.Select(Profile{Id: alice})
	waitFor(t, "first attach", func() bool { return sub.liveCount() == 1 })

	s.Select(Profile{Id: bob})
	waitFor(t, "second live", func() bool { return s.Snapshot().State == StateLive && sub.attachCount() == 2 })

	if sub.liveCount() != 1 {
		t.Errorf("live subscriptions after switch = %d, want 1", sub.liveCount())
	}
	sub.mu.Lock()
	firstDetached := sub.subs[0].isDetached()
	sub.mu.Unlock()
	if !firstDetached {
		t.Error("previous conversation's subscription still attached")
	}

	// An event for the old conversation must not reach the new log.
	sub.push(msg(7, alice, me, t0, "late for alice"))
	if got := contents(s.Snapshot().Messages); len(got) != 0 {
		t.Errorf("old-conversation event leaked: %v", got)
	}
}

func TestDeselectReturnsToIdle(t *testing.T) {
	gw := newFakeGateway()
	sub := &fakeSubscriber{}
	s := NewSession(me, newFakeDirectory(), gw, sub, testConfig(), nil)
	defer s.Close()

	s.Select(Profile{Id: alice})
	waitFor(t, "live state", func() bool { return s.Snapshot().State == StateLive })

	s.Deselect()
	snap := s.Snapshot()
	if snap.State != StateIdle || snap.Selected != nil || len(snap.Messages) != 0 {
		t.Errorf("after deselect: state=%s selected=%v messages=%d", snap.State, snap.Selected, len(snap.Messages))
	}
	if sub.liveCount() != 0 {
		t.Errorf("live subscriptions after deselect = %d, want 0", sub.liveCount())
	}
	// Deselecting twice must be harmless.
	s.Deselect()
}

func TestSendDoesNotAppendLocally(t *testing.T) {
	gw := newFakeGateway()
	sub := &fakeSubscriber{}
	s := NewSession(me, newFakeDirectory(), gw, sub, testConfig(), nil)
	defer s.Close()

	s.Select(Profile{Id: alice})
	waitFor(t, "live state", func() bool { return s.Snapshot().State == StateLive })

	if err := s.SendMessage(context.Background(), "  hello there  "); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if gw.sendCount() != 1 {
		t.Fatalf("sends = %d, want 1", gw.sendCount())
	}
	if got := gw.sends[0].content; got != "hello there" {
		t.Errorf("sent content = %q, want trimmed %q", got, "hello there")
	}

	// Nothing in the log until the echo comes back over delivery.
	if n := len(s.Snapshot().Messages); n != 0 {
		t.Fatalf("log has %d messages before echo, want 0", n)
	}

	echo := msg(5, me, alice, t0, "hello there")
	sub.push(echo)
	sub.push(echo) // the echo is subject to the same dedup as everything else

	if got := contents(s.Snapshot().Messages); len(got) != 1 || got[0] != "hello there" {
		t.Errorf("after echo: messages = %v, want [hello there]", got)
	}
}

func TestSendValidation(t *testing.T) {
	gw := newFakeGateway()
	s := NewSession(me, newFakeDirectory(), gw, &fakeSubscriber{}, testConfig(), nil)
	defer s.Close()

	if err := s.SendMessage(context.Background(), "hi"); !errors.Is(err, ErrNoSelection) {
		t.Errorf("send without selection: err = %v, want ErrNoSelection", err)
	}

	s.Select(Profile{Id: alice})
	waitFor(t, "live state", func() bool { return s.Snapshot().State == StateLive })

	if err := s.SendMessage(context.Background(), "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("blank send: err = %v, want ErrEmptyMessage", err)
	}
	if gw.sendCount() != 0 {
		t.Errorf("gateway saw %d sends, want 0", gw.sendCount())
	}
}

func TestHistoryLoadFailureSurfacesAndRetriesOnReselect(t *testing.T) {
	gw := newFakeGateway()
	gw.loadErr = errors.New("store down")
	sub := &fakeSubscriber{}
	s := NewSession(me, newFakeDirectory(), gw, sub, testConfig(), nil)
	defer s.Close()

	s.Select(Profile{Id: alice})
	waitFor(t, "history error", func() bool { return s.Snapshot().HistoryError != "" })

	snap := s.Snapshot()
	if snap.State != StateLoading {
		t.Errorf("state = %s, want loading", snap.State)
	}

	// Reselecting after a bounce through idle retries the load.
	gw.mu.Lock()
	gw.loadErr = nil
	gw.mu.Unlock()
	s.Deselect()
	s.Select(Profile{Id: alice})
	waitFor(t, "live state", func() bool { return s.Snapshot().State == StateLive })
}

func TestDropReattachesAndRecovers(t *testing.T) {
	gw := newFakeGateway()
	sub := &fakeSubscriber{}
	pair := conversation.NewPair(me, alice)
	s := NewSession(me, newFakeDirectory(), gw, sub, testConfig(), nil)
	defer s.Close()

	s.Select(Profile{Id: alice})
	waitFor(t, "live state", func() bool { return s.Snapshot().State == StateLive })

	// A message lands while the subscription is dead; the post-reattach history
	// reload recovers it.
	missed := msg(4, alice, me, t0, "missed during outage")
	gw.mu.Lock()
	gw.history[pair.Key()] = []delivery.Message{missed}
	gw.mu.Unlock()

	sub.dropAll(errors.New("connection lost"))
	waitFor(t, "live down flag", func() bool { return s.Snapshot().LiveDown })
	waitFor(t, "reattach", func() bool { return sub.liveCount() == 1 && !s.Snapshot().LiveDown })
	waitFor(t, "gap recovery", func() bool { return len(s.Snapshot().Messages) == 1 })

	if got := contents(s.Snapshot().Messages); got[0] != "missed during outage" {
		t.Errorf("messages = %v", got)
	}
}

func TestCloseDetachesAndIsIdempotent(t *testing.T) {
	gw := newFakeGateway()
	sub := &fakeSubscriber{}
	s := NewSession(me, newFakeDirectory(), gw, sub, testConfig(), nil)

	s.Select(Profile{Id: alice})
	waitFor(t, "live state", func() bool { return s.Snapshot().State == StateLive })

	s.Close()
	s.Close()

	if sub.liveCount() != 0 {
		t.Errorf("live subscriptions after close = %d, want 0", sub.liveCount())
	}
	if err := s.Select(Profile{Id: bob}); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Select after close: err = %v, want ErrSessionClosed", err)
	}
	if err := s.SendMessage(context.Background(), "hi"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("SendMessage after close: err = %v, want ErrSessionClosed", err)
	}
}

func TestOnChangeReceivesOrderedSnapshots(t *testing.T) {
	gw := newFakeGateway()
	sub := &fakeSubscriber{}

	var mu sync.Mutex
	var versions []uint64
	s := NewSession(me, newFakeDirectory(), gw, sub, testConfig(), func(snap Snapshot) {
		mu.Lock()
		versions = append(versions, snap.Version)
		mu.Unlock()
	})
	defer s.Close()

	s.Select(Profile{Id: alice})
	waitFor(t, "live state", func() bool { return s.Snapshot().State == StateLive })
	sub.push(msg(1, alice, me, t0, "hi"))

	waitFor(t, "snapshots dispatched", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(versions) >= 3
	})

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Fatalf("snapshot versions out of order: %v", versions)
		}
	}
}
