package dedup

import (
	"context"
	"sync"
	"time"
)

// pruneThreshold bounds the in-memory id set; expired ids are cleared
// whenever the map grows past it.
const pruneThreshold = 4096

// Memory is the single-process fallback used when no Redis is
// configured. Replays are only caught within this process's lifetime.
type Memory struct {
	ttl time.Duration

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:  ttl,
		seen: make(map[string]time.Time),
	}
}

// Seen marks eventID as handled and reports whether it already was. An
// id past its ttl counts as unseen again.
func (d *Memory) Seen(_ context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	if expiry, ok := d.seen[eventID]; ok && now.Before(expiry) {
		return true, nil
	}
	if len(d.seen) >= pruneThreshold {
		d.prune(now)
	}
	d.seen[eventID] = now.Add(d.ttl)
	return false, nil
}

func (d *Memory) prune(now time.Time) {
	for id, expiry := range d.seen {
		if now.After(expiry) {
			delete(d.seen, id)
		}
	}
}
