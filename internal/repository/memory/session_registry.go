package memory

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"direct-chat-be/pkg/chat"
)

// SessionRegistry holds the live chat session of each user in memory with a
// sliding TTL. Eviction closes the session, which is what guarantees an idle
// user's subscription handle is released and never leaks.
type SessionRegistry struct {
	cache *cache.Cache
}

func NewSessionRegistry(ttl time.Duration) *SessionRegistry {
	c := cache.New(ttl, 10*time.Minute)
	c.OnEvicted(func(_ string, value interface{}) {
		if session, ok := value.(*chat.Session); ok {
			session.Close()
		}
	})
	return &SessionRegistry{cache: c}
}

func (r *SessionRegistry) Save(session *chat.Session) {
	r.cache.Set(session.UserId().String(), session, cache.DefaultExpiration)
}

func (r *SessionRegistry) Get(userId uuid.UUID) (*chat.Session, bool) {
	if x, found := r.cache.Get(userId.String()); found {
		// Touch to keep active sessions alive.
		r.cache.Set(userId.String(), x, cache.DefaultExpiration)
		return x.(*chat.Session), true
	}
	return nil, false
}

func (r *SessionRegistry) Delete(userId uuid.UUID) {
	// OnEvicted fires on explicit deletes too, closing the session.
	r.cache.Delete(userId.String())
}
