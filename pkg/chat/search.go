package chat

import (
	"strings"
	"time"
)

// SetQuery records a keystroke. The query text updates immediately; the actual
// directory search is deferred by the debounce quiet period, and a newer
// keystroke cancels the pending one. An empty-after-trim query clears results
// without ever issuing a request.
func (s *Session) SetQuery(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.query = text
	if s.searchTimer != nil {
		s.searchTimer.Stop()
		s.searchTimer = nil
	}

	if strings.TrimSpace(text) == "" {
		// Supersede any in-flight response so a late result cannot repopulate a
		// cleared list.
		s.searchSeq++
		s.results = nil
		s.searchFailed = false
		s.notifyLocked()
		return
	}

	s.searchTimer = time.AfterFunc(s.cfg.SearchDebounce, func() {
		s.issueSearch(text)
	})
}

// issueSearch runs after the quiet period. Response application is guarded by a
// monotonically increasing sequence number: only the response of the latest
// issued search is applied, so an older response arriving late can never
// overwrite a newer result set.
func (s *Session) issueSearch(text string) {
	s.mu.Lock()
	if s.closed || text != s.query {
		// A newer keystroke won the race with timer cancellation.
		s.mu.Unlock()
		return
	}
	s.searchSeq++
	seq := s.searchSeq
	s.mu.Unlock()

	results, err := s.directory.Search(s.ctx, text, s.userId, s.cfg.SearchLimit)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || seq != s.searchSeq {
		return
	}
	if err != nil {
		// Absorbed: empty applied results plus a non-fatal status flag.
		s.results = nil
		s.searchFailed = true
		s.notifyLocked()
		return
	}
	s.results = results
	s.searchFailed = false
	s.notifyLocked()
}
