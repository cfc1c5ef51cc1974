// Package session tracks the ephemeral state of interactive entry lists:
// a frozen result set, a page cursor, and a deadline. Nothing here is
// persisted; a restart drops every live session.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"glossa/bot/internal/glossary"
	"glossa/bot/internal/store"
)

var (
	// ErrExpired is returned for any action on a session that has timed
	// out or otherwise reached its terminal state.
	ErrExpired = errors.New("session expired")

	// ErrNotOwner is returned when someone other than the session owner
	// interacts with a personal session.
	ErrNotOwner = errors.New("session belongs to another user")
)

type State string

const (
	StateActive   State = "active"
	StateDisabled State = "disabled"
)

// EntryActions is the slice of the glossary service a session drives.
type EntryActions interface {
	Vote(ctx context.Context, actor glossary.Actor, entry *store.Entry) (bool, error)
	EditEntry(ctx context.Context, actor glossary.Actor, entry *store.Entry, input glossary.EditEntryInput) error
	MoveEntry(ctx context.Context, actor glossary.Actor, entry *store.Entry, category, topic string) error
	DeleteEntry(ctx context.Context, actor glossary.Actor, entry *store.Entry) error
}

// Session is one paginated list a user is working through. The result set
// is captured once at creation and only mutated by the session's own
// actions, so the rendered view never drifts from what the user acted on.
// All methods serialize on the session's mutex; distinct sessions run
// independently.
type Session struct {
	ID        string
	OwnerID   string
	ChannelID string
	Label     string

	mu       sync.Mutex
	entries  []store.Entry
	page     int
	pageSize int
	state    State
	deadline time.Time
	ttl      time.Duration
	notice   string
	actions  EntryActions
}

// View is the render-ready snapshot handed back after every action.
type View struct {
	SessionID string
	Label     string
	State     State
	Entries   []store.Entry
	Page      int
	PageCount int
	Total     int
	Notice    string
}

// View renders the current page without touching the deadline.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

// Current returns a copy of the entry at the cursor, for prompts that
// reference it. ok is false once the session is disabled or empty.
func (s *Session) Current() (store.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisabled || len(s.entries) == 0 {
		return store.Entry{}, false
	}
	return *s.current(), true
}

// PageNext advances the cursor one page. At the last page it is a no-op,
// not an error.
func (s *Session) PageNext(actorID string) (View, error) {
	return s.shift(actorID, 1)
}

// PagePrev moves the cursor one page back, clamping at the first page.
func (s *Session) PagePrev(actorID string) (View, error) {
	return s.shift(actorID, -1)
}

func (s *Session) shift(actorID string, delta int) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if err := s.guard(now); err != nil {
		return View{}, err
	}
	if !s.permits(actorID) {
		return View{}, ErrNotOwner
	}
	next := s.page + delta
	if next >= 0 && next < pageCount(len(s.entries), s.pageSize) {
		s.page = next
	}
	s.extend(now)
	return s.view(), nil
}

// Vote records the actor's vote on the entry at the cursor. A duplicate
// vote comes back as accepted=false with no error; the caller tells the
// actor privately instead of re-rendering.
func (s *Session) Vote(ctx context.Context, actor glossary.Actor) (View, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if err := s.guard(now); err != nil {
		return View{}, false, err
	}
	if !s.permits(actor.ID) {
		return View{}, false, ErrNotOwner
	}
	accepted, err := s.actions.Vote(ctx, actor, s.current())
	if err != nil {
		return View{}, false, err
	}
	s.extend(now)
	return s.view(), accepted, nil
}

// Edit applies a free-text update to the entry at the cursor. Author
// checks live in the glossary service; a rejection leaves the session
// active with its deadline untouched.
func (s *Session) Edit(ctx context.Context, actor glossary.Actor, input glossary.EditEntryInput) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if err := s.guard(now); err != nil {
		return View{}, err
	}
	if !s.permits(actor.ID) {
		return View{}, ErrNotOwner
	}
	if err := s.actions.EditEntry(ctx, actor, s.current(), input); err != nil {
		return View{}, err
	}
	s.extend(now)
	return s.view(), nil
}

// Move reassigns the entry at the cursor to a new category and topic,
// usually collected by a wizard.
func (s *Session) Move(ctx context.Context, actor glossary.Actor, category, topic string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if err := s.guard(now); err != nil {
		return View{}, err
	}
	if !s.permits(actor.ID) {
		return View{}, ErrNotOwner
	}
	if err := s.actions.MoveEntry(ctx, actor, s.current(), category, topic); err != nil {
		return View{}, err
	}
	s.extend(now)
	return s.view(), nil
}

// Delete removes the entry at the cursor from the store and the list.
// Deleting the last entry disables the session with an explicit notice;
// otherwise the cursor is clamped back into bounds.
func (s *Session) Delete(ctx context.Context, actor glossary.Actor) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if err := s.guard(now); err != nil {
		return View{}, err
	}
	if !s.permits(actor.ID) {
		return View{}, ErrNotOwner
	}
	if err := s.actions.DeleteEntry(ctx, actor, s.current()); err != nil {
		return View{}, err
	}
	idx := s.page * s.pageSize
	s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
	if len(s.entries) == 0 {
		s.state = StateDisabled
		s.notice = "The list is now empty."
		return s.view(), nil
	}
	if last := pageCount(len(s.entries), s.pageSize) - 1; s.page > last {
		s.page = last
	}
	s.extend(now)
	return s.view(), nil
}

// guard enforces the deadline. Callers hold the mutex. Once disabled a
// session never comes back.
func (s *Session) guard(now time.Time) error {
	if s.state == StateDisabled {
		return ErrExpired
	}
	if now.After(s.deadline) {
		s.state = StateDisabled
		return ErrExpired
	}
	return nil
}

func (s *Session) extend(now time.Time) {
	s.deadline = now.Add(s.ttl)
}

func (s *Session) permits(actorID string) bool {
	return s.OwnerID == "" || actorID == s.OwnerID
}

// current returns the entry actions apply to: the first entry of the
// visible page. An active session always has one.
func (s *Session) current() *store.Entry {
	return &s.entries[s.page*s.pageSize]
}

func (s *Session) expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateDisabled || now.After(s.deadline)
}

func (s *Session) view() View {
	total := len(s.entries)
	start := s.page * s.pageSize
	end := start + s.pageSize
	if end > total {
		end = total
	}
	var visible []store.Entry
	if start < total {
		visible = append([]store.Entry(nil), s.entries[start:end]...)
	}
	return View{
		SessionID: s.ID,
		Label:     s.Label,
		State:     s.state,
		Entries:   visible,
		Page:      s.page,
		PageCount: pageCount(total, s.pageSize),
		Total:     total,
		Notice:    s.notice,
	}
}

func pageCount(total, size int) int {
	if total == 0 {
		return 1
	}
	return (total + size - 1) / size
}
