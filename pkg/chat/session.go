package chat

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"direct-chat-be/pkg/conversation"
	"direct-chat-be/pkg/delivery"
)

// State is the lifecycle of the active conversation.
type State string

const (
	StateIdle    State = "idle"    // no selection
	StateLoading State = "loading" // selection made, history fetch in flight
	StateLive    State = "live"    // history loaded, subscription active
)

// Config tunes the session. Zero values fall back to defaults.
type Config struct {
	SearchDebounce   time.Duration // quiet period before a search is issued
	SearchLimit      int           // directory result cap
	ReattachBackoff  time.Duration // first retry delay after a subscription drop
	ReattachAttempts int           // retries before parking in "live unavailable"
}

func (c *Config) setDefaults() {
	if c.SearchDebounce <= 0 {
		c.SearchDebounce = 300 * time.Millisecond
	}
	if c.SearchLimit <= 0 {
		c.SearchLimit = 10
	}
	if c.ReattachBackoff <= 0 {
		c.ReattachBackoff = 250 * time.Millisecond
	}
	if c.ReattachAttempts <= 0 {
		c.ReattachAttempts = 5
	}
}

// Snapshot is an immutable view of the session handed to the presentation
// layer. Slices are copies; Version increases with every change.
type Snapshot struct {
	Version       uint64             `json:"version"`
	State         State              `json:"state"`
	Selected      *Profile           `json:"selected,omitempty"`
	Messages      []delivery.Message `json:"messages"`
	Query         string             `json:"query"`
	SearchResults []Profile          `json:"search_results"`
	SearchFailed  bool               `json:"search_failed"`
	HistoryError  string             `json:"history_error,omitempty"`
	LiveDown      bool               `json:"live_down"`
}

// Session owns the conversation state of one user: the active selection, the
// merged message log, the single live subscription and the search state.
//
// All mutations — Select, Deselect, SendMessage, SetQuery, delivery callbacks,
// late history results — are serialized behind one mutex, because delivery runs
// on the bus goroutine and history loads complete on their own goroutines.
// Every asynchronous completion re-checks the selection epoch before applying,
// so work finishing after the user moved on can never overwrite newer state.
type Session struct {
	userId     uuid.UUID
	directory  Directory
	gateway    Gateway
	subscriber delivery.Subscriber
	cfg        Config

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	state    State
	selected *Profile
	pair     conversation.Pair
	epoch    uint64 // bumped on every selection change; guards late completions
	sub      delivery.Subscription
	messages []delivery.Message
	seen     map[uuid.UUID]struct{}
	loadErr  error
	liveDown bool

	query        string
	searchTimer  *time.Timer
	searchSeq    uint64 // latest issued search; only its response is applied
	results      []Profile
	searchFailed bool

	version uint64
	events  chan Snapshot
}

// NewSession creates a session for userId. onChange, when non-nil, receives
// snapshots in order after every state change; it runs on the session's own
// dispatch goroutine and must not call back into the session.
func NewSession(userId uuid.UUID, directory Directory, gateway Gateway, subscriber delivery.Subscriber, cfg Config, onChange func(Snapshot)) *Session {
	cfg.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		userId:     userId,
		directory:  directory,
		gateway:    gateway,
		subscriber: subscriber,
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
		state:      StateIdle,
		seen:       make(map[uuid.UUID]struct{}),
		events:     make(chan Snapshot, 32),
	}

	if onChange != nil {
		go func() {
			for snap := range s.events {
				onChange(snap)
			}
		}()
	} else {
		go func() {
			for range s.events {
			}
		}()
	}

	return s
}

func (s *Session) UserId() uuid.UUID {
	return s.userId
}

// Select makes target the active conversation. Selecting the current target is
// a no-op. The previous subscription is detached and the previous log discarded
// before anything about the new conversation is observable; history load and
// subscription attach then start concurrently.
func (s *Session) Select(target Profile) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.selected != nil && s.selected.Id == target.Id {
		s.mu.Unlock()
		return nil
	}

	s.detachLocked()
	s.resetConversationLocked()

	sel := target
	s.selected = &sel
	s.pair = conversation.NewPair(s.userId, target.Id)
	s.state = StateLoading

	epoch := s.epoch
	pair := s.pair
	s.notifyLocked()
	s.mu.Unlock()

	go s.attach(epoch, pair)
	go s.loadHistory(epoch, pair)
	return nil
}

// Deselect closes the active conversation and returns to Idle.
func (s *Session) Deselect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.detachLocked()
	s.resetConversationLocked()
	s.selected = nil
	s.state = StateIdle
	s.notifyLocked()
}

// resetConversationLocked discards all per-conversation state and supersedes
// any in-flight load, attach or delivery for the previous conversation.
func (s *Session) resetConversationLocked() {
	s.epoch++
	s.messages = nil
	s.seen = make(map[uuid.UUID]struct{})
	s.loadErr = nil
	s.liveDown = false
}

func (s *Session) detachLocked() {
	if s.sub != nil {
		s.sub.Detach()
		s.sub = nil
	}
}

// SendMessage persists a message to the active conversation. The log is NOT
// updated here: the message is expected back through the live delivery path,
// where it goes through the same dedup and ordering rules as everything else.
func (s *Session) SendMessage(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	selected := s.selected
	s.mu.Unlock()

	if selected == nil {
		return ErrNoSelection
	}
	if content == "" {
		return ErrEmptyMessage
	}

	return s.gateway.Send(ctx, s.userId, selected.Id, content)
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Close tears the session down: detaches the subscription, cancels in-flight
// work and stops the dispatch goroutine. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.detachLocked()
	s.epoch++
	if s.searchTimer != nil {
		s.searchTimer.Stop()
		s.searchTimer = nil
	}
	close(s.events)
	s.mu.Unlock()

	s.cancel()
}

// attach opens the live subscription for the conversation selected at epoch.
func (s *Session) attach(epoch uint64, pair conversation.Pair) {
	sub, err := s.subscriber.Attach(pair,
		func(msg delivery.Message) { s.deliver(epoch, msg) },
		func(err error) { s.dropped(epoch, pair, err) },
	)

	s.mu.Lock()
	if err != nil {
		if s.epoch == epoch && !s.closed {
			s.liveDown = true
			s.notifyLocked()
		}
		s.mu.Unlock()
		return
	}
	if s.epoch != epoch || s.closed {
		// Superseded while attaching; this handle must not stay live.
		s.mu.Unlock()
		sub.Detach()
		return
	}
	s.sub = sub
	s.mu.Unlock()
}

// loadHistory fetches and merges the history for the conversation selected at
// epoch. A load that completes after the selection changed is discarded.
func (s *Session) loadHistory(epoch uint64, pair conversation.Pair) {
	history, err := s.gateway.LoadHistory(s.ctx, pair)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch || s.closed {
		return
	}
	if err != nil {
		// Stay in Loading with a visible error; reselecting retries.
		s.loadErr = err
		s.notifyLocked()
		return
	}

	s.mergeHistoryLocked(history)
	s.loadErr = nil
	s.state = StateLive
	s.notifyLocked()
}

// mergeHistoryLocked replaces the log with the union of the loaded history and
// any live events that raced in before the load resolved: dedup by id, then a
// full re-sort. A naive "replace with history" would drop those early events; a
// naive append would misorder them.
func (s *Session) mergeHistoryLocked(history []delivery.Message) {
	merged := make([]delivery.Message, 0, len(history)+len(s.messages))
	seen := make(map[uuid.UUID]struct{}, len(history)+len(s.messages))

	for _, m := range history {
		if _, dup := seen[m.Id]; dup {
			continue
		}
		seen[m.Id] = struct{}{}
		merged = append(merged, m)
	}
	for _, m := range s.messages {
		if _, dup := seen[m.Id]; dup {
			continue
		}
		seen[m.Id] = struct{}{}
		merged = append(merged, m)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].Id.String() < merged[j].Id.String()
		}
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})

	s.messages = merged
	s.seen = seen
}

// deliver merges one live event into the log. Runs on the bus goroutine.
func (s *Session) deliver(epoch uint64, msg delivery.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch || s.closed {
		return
	}
	if !s.pair.Matches(msg.SenderId, msg.ReceiverId) {
		return
	}
	if _, dup := s.seen[msg.Id]; dup {
		return
	}
	s.seen[msg.Id] = struct{}{}
	s.insertSortedLocked(msg)
	s.notifyLocked()
}

// insertSortedLocked places msg at its CreatedAt position. CreatedAt is not
// guaranteed monotonic across senders, so append alone is not enough.
func (s *Session) insertSortedLocked(msg delivery.Message) {
	i := sort.Search(len(s.messages), func(i int) bool {
		if s.messages[i].CreatedAt.Equal(msg.CreatedAt) {
			return s.messages[i].Id.String() > msg.Id.String()
		}
		return s.messages[i].CreatedAt.After(msg.CreatedAt)
	})
	s.messages = append(s.messages, delivery.Message{})
	copy(s.messages[i+1:], s.messages[i:])
	s.messages[i] = msg
}

// dropped handles an unexpected subscription death: the channel is treated as
// recoverable and reattached with doubling backoff; if every attempt fails the
// session parks in "live updates unavailable" rather than retrying forever.
func (s *Session) dropped(epoch uint64, pair conversation.Pair, _ error) {
	s.mu.Lock()
	if s.epoch != epoch || s.closed {
		s.mu.Unlock()
		return
	}
	s.sub = nil
	s.liveDown = true
	s.notifyLocked()
	s.mu.Unlock()

	go s.reattach(epoch, pair)
}

func (s *Session) reattach(epoch uint64, pair conversation.Pair) {
	backoff := s.cfg.ReattachBackoff

	for attempt := 0; attempt < s.cfg.ReattachAttempts; attempt++ {
		select {
		case <-time.After(backoff):
		case <-s.ctx.Done():
			return
		}
		backoff *= 2

		s.mu.Lock()
		if s.epoch != epoch || s.closed {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		sub, err := s.subscriber.Attach(pair,
			func(msg delivery.Message) { s.deliver(epoch, msg) },
			func(err error) { s.dropped(epoch, pair, err) },
		)
		if err != nil {
			continue
		}

		s.mu.Lock()
		if s.epoch != epoch || s.closed {
			s.mu.Unlock()
			sub.Detach()
			return
		}
		s.sub = sub
		s.liveDown = false
		s.notifyLocked()
		s.mu.Unlock()

		// Recover anything created during the gap, echoes of own sends included.
		go s.loadHistory(epoch, pair)
		return
	}
	// Exhausted: liveDown stays set and surfaces as a persistent status.
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		Version:      s.version,
		State:        s.state,
		Query:        s.query,
		SearchFailed: s.searchFailed,
		LiveDown:     s.liveDown,
		Messages:     make([]delivery.Message, len(s.messages)),
	}
	copy(snap.Messages, s.messages)

	if s.selected != nil {
		sel := *s.selected
		snap.Selected = &sel
	}
	snap.SearchResults = make([]Profile, len(s.results))
	copy(snap.SearchResults, s.results)

	if s.loadErr != nil {
		snap.HistoryError = s.loadErr.Error()
	}
	return snap
}

func (s *Session) notifyLocked() {
	if s.closed {
		return
	}
	s.version++
	snap := s.snapshotLocked()
	select {
	case s.events <- snap:
	default:
		// Dispatch backlog full; the consumer can always pull a fresh snapshot.
	}
}
