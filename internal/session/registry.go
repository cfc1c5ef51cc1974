package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"glossa/bot/internal/store"
	"glossa/bot/internal/util"
)

const sweepInterval = 15 * time.Second

// Registry owns every live session. Expired sessions are pruned lazily on
// access and by a background sweeper; the sweeper reports each expiry once
// on Expired so rendered controls can be disabled.
type Registry struct {
	actions  EntryActions
	ttl      time.Duration
	pageSize int
	log      *zap.SugaredLogger

	mu       sync.Mutex
	sessions map[string]*Session
	expired  chan string
	done     chan struct{}
}

func NewRegistry(actions EntryActions, ttl time.Duration, pageSize int, log *zap.SugaredLogger) *Registry {
	r := &Registry{
		actions:  actions,
		ttl:      ttl,
		pageSize: pageSize,
		log:      log,
		sessions: make(map[string]*Session),
		expired:  make(chan string, 16),
		done:     make(chan struct{}),
	}
	go r.sweep()
	return r
}

// Create freezes the given result set into a new session. An empty ownerID
// leaves the session open to everyone in the channel.
func (r *Registry) Create(ownerID, channelID, label string, entries []store.Entry) *Session {
	now := time.Now()
	sess := &Session{
		ID:        util.NewID("sess"),
		OwnerID:   ownerID,
		ChannelID: channelID,
		Label:     label,
		entries:   append([]store.Entry(nil), entries...),
		pageSize:  r.pageSize,
		state:     StateActive,
		deadline:  now.Add(r.ttl),
		ttl:       r.ttl,
		actions:   r.actions,
	}
	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()
	return sess
}

// Get looks up a live session. A session past its deadline is pruned here
// and reported as expired to the caller directly, not on the channel.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok && sess.expired(time.Now()) {
		delete(r.sessions, id)
		ok = false
	}
	r.mu.Unlock()
	if !ok {
		return nil, ErrExpired
	}
	return sess, nil
}

// Expired yields the ids of sessions the sweeper has collected.
func (r *Registry) Expired() <-chan string {
	return r.expired
}

func (r *Registry) Close() {
	close(r.done)
}

func (r *Registry) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			for _, id := range r.collect(time.Now()) {
				select {
				case r.expired <- id:
				default:
					r.log.Warnw("expiry report dropped", "session", id)
				}
			}
		}
	}
}

// collect removes every expired session and returns their ids. Each id
// comes back from exactly one call.
func (r *Registry) collect(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var gone []string
	for id, sess := range r.sessions {
		if sess.expired(now) {
			delete(r.sessions, id)
			gone = append(gone, id)
		}
	}
	return gone
}
