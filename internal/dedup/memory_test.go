package dedup

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemorySeen(t *testing.T) {
	d := NewMemory(time.Minute)
	ctx := context.Background()

	seen, err := d.Seen(ctx, "evt-1")
	if err != nil {
		t.Fatalf("first Seen failed: %v", err)
	}
	if seen {
		t.Error("expected a fresh id to be unseen")
	}

	seen, err = d.Seen(ctx, "evt-1")
	if err != nil {
		t.Fatalf("second Seen failed: %v", err)
	}
	if !seen {
		t.Error("expected a replayed id to be seen")
	}
}

func TestMemorySeenExpires(t *testing.T) {
	d := NewMemory(time.Minute)
	ctx := context.Background()

	if _, err := d.Seen(ctx, "evt-1"); err != nil {
		t.Fatalf("Seen failed: %v", err)
	}
	d.mu.Lock()
	d.seen["evt-1"] = time.Now().Add(-time.Second)
	d.mu.Unlock()

	seen, err := d.Seen(ctx, "evt-1")
	if err != nil {
		t.Fatalf("Seen after expiry failed: %v", err)
	}
	if seen {
		t.Error("expected an expired id to be unseen again")
	}
}

func TestMemoryPrunesExpiredIDs(t *testing.T) {
	d := NewMemory(time.Minute)
	ctx := context.Background()

	for i := 0; i < pruneThreshold; i++ {
		if _, err := d.Seen(ctx, fmt.Sprintf("evt-%d", i)); err != nil {
			t.Fatalf("Seen failed: %v", err)
		}
	}
	d.mu.Lock()
	for id := range d.seen {
		d.seen[id] = time.Now().Add(-time.Second)
	}
	d.mu.Unlock()

	if _, err := d.Seen(ctx, "evt-new"); err != nil {
		t.Fatalf("Seen failed: %v", err)
	}
	d.mu.Lock()
	left := len(d.seen)
	d.mu.Unlock()
	if left != 1 {
		t.Errorf("expected expired ids pruned, %d left", left)
	}
}
