package glossary

import (
	"context"
	"time"

	"glossa/bot/internal/store"
)

// TryAddVote records one vote per user per entry. The in-memory voter check
// catches the common duplicate cheaply; the store update is conditional on
// the voter still being absent, so two sessions racing on the same entry
// cannot double-count. Rejection is a bool, never an error.
//
// On acceptance the caller's copy is updated in place so a live session view
// keeps rendering votes == len(voters) without a re-read.
func (s *Service) TryAddVote(ctx context.Context, entry *store.Entry, userID string, delta int) (bool, error) {
	if entry.HasVoter(userID) {
		return false, nil
	}

	now := time.Now().UTC()
	accepted, err := s.store.AddVote(ctx, entry.ID, userID, delta, now)
	if err != nil || !accepted {
		return false, err
	}

	entry.Voters = append(entry.Voters, userID)
	entry.Votes += delta
	entry.LastUpdatedAt = now
	return true, nil
}
