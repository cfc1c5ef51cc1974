package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"glossa/bot/internal/glossary"
	"glossa/bot/internal/store"
)

type fakeActions struct {
	voteFn   func(ctx context.Context, actor glossary.Actor, entry *store.Entry) (bool, error)
	editFn   func(ctx context.Context, actor glossary.Actor, entry *store.Entry, input glossary.EditEntryInput) error
	moveFn   func(ctx context.Context, actor glossary.Actor, entry *store.Entry, category, topic string) error
	deleteFn func(ctx context.Context, actor glossary.Actor, entry *store.Entry) error

	deleteCalls int
}

func (f *fakeActions) Vote(ctx context.Context, actor glossary.Actor, entry *store.Entry) (bool, error) {
	if f.voteFn != nil {
		return f.voteFn(ctx, actor, entry)
	}
	if entry.HasVoter(actor.ID) {
		return false, nil
	}
	entry.Voters = append(entry.Voters, actor.ID)
	entry.Votes++
	return true, nil
}

func (f *fakeActions) EditEntry(ctx context.Context, actor glossary.Actor, entry *store.Entry, input glossary.EditEntryInput) error {
	if f.editFn != nil {
		return f.editFn(ctx, actor, entry, input)
	}
	if input.Description != "" {
		entry.Description = input.Description
	}
	if input.Reference != "" {
		entry.Reference = input.Reference
	}
	return nil
}

func (f *fakeActions) MoveEntry(ctx context.Context, actor glossary.Actor, entry *store.Entry, category, topic string) error {
	if f.moveFn != nil {
		return f.moveFn(ctx, actor, entry, category, topic)
	}
	entry.Category = category
	entry.Topic = topic
	return nil
}

func (f *fakeActions) DeleteEntry(ctx context.Context, actor glossary.Actor, entry *store.Entry) error {
	f.deleteCalls++
	if f.deleteFn != nil {
		return f.deleteFn(ctx, actor, entry)
	}
	return nil
}

func testEntries(n int) []store.Entry {
	entries := make([]store.Entry, n)
	for i := range entries {
		entries[i] = store.Entry{
			ID:          primitive.NewObjectID(),
			Title:       fmt.Sprintf("TERM %d", i),
			Category:    store.DefaultBucket,
			Topic:       store.DefaultBucket,
			Description: "a term",
			AuthorID:    "author-1",
		}
	}
	return entries
}

func newTestSession(entries []store.Entry, actions EntryActions) *Session {
	return &Session{
		ID:       "sess_test",
		entries:  entries,
		pageSize: 5,
		state:    StateActive,
		deadline: time.Now().Add(time.Minute),
		ttl:      time.Minute,
		actions:  actions,
	}
}

func TestPagingClampsAtBounds(t *testing.T) {
	sess := newTestSession(testEntries(7), &fakeActions{})

	view, err := sess.PagePrev("user-1")
	if err != nil {
		t.Fatalf("PagePrev at first page: %v", err)
	}
	if view.Page != 0 {
		t.Fatalf("expected page 0 after prev at bound, got %d", view.Page)
	}

	view, err = sess.PageNext("user-1")
	if err != nil {
		t.Fatalf("PageNext: %v", err)
	}
	if view.Page != 1 || view.PageCount != 2 {
		t.Fatalf("expected page 1 of 2, got %d of %d", view.Page, view.PageCount)
	}
	if len(view.Entries) != 2 || view.Entries[0].Title != "TERM 5" {
		t.Fatalf("unexpected second page: %+v", view.Entries)
	}

	view, err = sess.PageNext("user-1")
	if err != nil {
		t.Fatalf("PageNext at last page: %v", err)
	}
	if view.Page != 1 {
		t.Fatalf("expected page to stay at 1, got %d", view.Page)
	}

	view, err = sess.PagePrev("user-1")
	if err != nil {
		t.Fatalf("PagePrev: %v", err)
	}
	if view.Page != 0 || view.Entries[0].Title != "TERM 0" {
		t.Fatalf("expected first page again, got page %d", view.Page)
	}
}

func TestVoteRendersUpdatedEntry(t *testing.T) {
	sess := newTestSession(testEntries(3), &fakeActions{})

	view, accepted, err := sess.Vote(context.Background(), glossary.Actor{ID: "user-1"})
	if err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if !accepted {
		t.Fatal("expected vote to be accepted")
	}
	if view.Entries[0].Votes != 1 {
		t.Fatalf("expected re-rendered entry to show 1 vote, got %d", view.Entries[0].Votes)
	}
}

func TestDuplicateVoteSignalsWithoutError(t *testing.T) {
	sess := newTestSession(testEntries(3), &fakeActions{})
	actor := glossary.Actor{ID: "user-1"}

	if _, _, err := sess.Vote(context.Background(), actor); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	view, accepted, err := sess.Vote(context.Background(), actor)
	if err != nil {
		t.Fatalf("duplicate vote should not error: %v", err)
	}
	if accepted {
		t.Fatal("expected duplicate vote to be rejected")
	}
	if view.Entries[0].Votes != 1 {
		t.Fatalf("expected vote count to stay 1, got %d", view.Entries[0].Votes)
	}
	if view.State != StateActive {
		t.Fatalf("expected session to stay active, got %s", view.State)
	}
}

func TestVoteTargetsFirstEntryOfCurrentPage(t *testing.T) {
	var voted *store.Entry
	actions := &fakeActions{
		voteFn: func(_ context.Context, _ glossary.Actor, entry *store.Entry) (bool, error) {
			voted = entry
			return true, nil
		},
	}
	sess := newTestSession(testEntries(7), actions)

	if _, err := sess.PageNext("user-1"); err != nil {
		t.Fatalf("PageNext: %v", err)
	}
	if _, _, err := sess.Vote(context.Background(), glossary.Actor{ID: "user-1"}); err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if voted == nil || voted.Title != "TERM 5" {
		t.Fatalf("expected vote on first entry of page 1, got %+v", voted)
	}
}

func TestDeleteClampsCursor(t *testing.T) {
	sess := newTestSession(testEntries(6), &fakeActions{})

	if _, err := sess.PageNext("user-1"); err != nil {
		t.Fatalf("PageNext: %v", err)
	}
	view, err := sess.Delete(context.Background(), glossary.Actor{ID: "author-1"})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if view.Total != 5 {
		t.Fatalf("expected 5 entries left, got %d", view.Total)
	}
	if view.Page != 0 || view.PageCount != 1 {
		t.Fatalf("expected cursor clamped to page 0 of 1, got %d of %d", view.Page, view.PageCount)
	}
	if view.State != StateActive {
		t.Fatalf("expected session to stay active, got %s", view.State)
	}
}

func TestDeleteLastEntryDisablesSession(t *testing.T) {
	sess := newTestSession(testEntries(1), &fakeActions{})

	view, err := sess.Delete(context.Background(), glossary.Actor{ID: "author-1"})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if view.State != StateDisabled {
		t.Fatalf("expected disabled session, got %s", view.State)
	}
	if view.Total != 0 || view.Notice == "" {
		t.Fatalf("expected empty-list notice, got total=%d notice=%q", view.Total, view.Notice)
	}

	if _, _, err := sess.Vote(context.Background(), glossary.Actor{ID: "user-1"}); err != ErrExpired {
		t.Fatalf("expected ErrExpired after terminal delete, got %v", err)
	}
}

func TestExpiredSessionRejectsActions(t *testing.T) {
	sess := newTestSession(testEntries(3), &fakeActions{})
	sess.deadline = time.Now().Add(-time.Second)

	if _, err := sess.PageNext("user-1"); err != ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if view := sess.View(); view.State != StateDisabled {
		t.Fatalf("expected session disabled after expiry, got %s", view.State)
	}
}

func TestSuccessfulActionExtendsDeadline(t *testing.T) {
	sess := newTestSession(testEntries(3), &fakeActions{})
	sess.deadline = time.Now().Add(time.Second)
	before := sess.deadline

	if _, err := sess.PageNext("user-1"); err != nil {
		t.Fatalf("PageNext: %v", err)
	}
	if !sess.deadline.After(before) {
		t.Fatal("expected deadline to move forward after a successful action")
	}
}

func TestFailedActionKeepsDeadline(t *testing.T) {
	actions := &fakeActions{
		editFn: func(context.Context, glossary.Actor, *store.Entry, glossary.EditEntryInput) error {
			return fmt.Errorf("store down")
		},
	}
	sess := newTestSession(testEntries(3), actions)
	before := sess.deadline

	_, err := sess.Edit(context.Background(), glossary.Actor{ID: "author-1"}, glossary.EditEntryInput{Description: "x"})
	if err == nil {
		t.Fatal("expected edit error")
	}
	if !sess.deadline.Equal(before) {
		t.Fatal("expected deadline unchanged after a failed action")
	}
	if view := sess.View(); view.State != StateActive {
		t.Fatalf("expected session to survive the failure, got %s", view.State)
	}
}

func TestOwnedSessionRejectsOtherUsers(t *testing.T) {
	sess := newTestSession(testEntries(3), &fakeActions{})
	sess.OwnerID = "user-1"

	if _, err := sess.PageNext("user-2"); err != ErrNotOwner {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if _, err := sess.PageNext("user-1"); err != nil {
		t.Fatalf("owner should page freely: %v", err)
	}
}

func TestEditRendersUpdatedEntry(t *testing.T) {
	sess := newTestSession(testEntries(3), &fakeActions{})

	view, err := sess.Edit(context.Background(), glossary.Actor{ID: "author-1"}, glossary.EditEntryInput{Description: "sharper wording"})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if view.Entries[0].Description != "sharper wording" {
		t.Fatalf("expected re-rendered description, got %q", view.Entries[0].Description)
	}
}

func TestMoveRendersUpdatedEntry(t *testing.T) {
	sess := newTestSession(testEntries(3), &fakeActions{})

	view, err := sess.Move(context.Background(), glossary.Actor{ID: "author-1"}, "Frontend", "Rendering")
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if view.Entries[0].Category != "Frontend" || view.Entries[0].Topic != "Rendering" {
		t.Fatalf("expected moved entry in view, got %s/%s", view.Entries[0].Category, view.Entries[0].Topic)
	}
}
