// Package wizard runs the multi-step category/topic selection flows used
// when creating or moving an entry. A wizard only collects input; the
// caller performs the store mutation once the flow completes, so an
// aborted or timed-out flow leaves nothing behind.
package wizard

import (
	"errors"
	"time"
)

// NewChoice is the synthetic menu value that switches a step from
// pick-from-set to free-text capture.
const NewChoice = "__new__"

var (
	// ErrExpired is returned for any action on a flow whose step deadline
	// has passed or that no longer exists.
	ErrExpired = errors.New("wizard expired")

	// ErrAborted is returned when empty input cancels the whole flow.
	ErrAborted = errors.New("wizard aborted")

	// ErrNotOwner is returned when someone other than the flow owner
	// interacts with it.
	ErrNotOwner = errors.New("wizard belongs to another user")
)

type Kind string

const (
	KindCreate Kind = "create"
	KindMove   Kind = "move"
)

type Step string

const (
	StepCategory Step = "category"
	StepTopic    Step = "topic"
	StepText     Step = "text"
)

// Flow is one in-progress wizard. Values accumulate step by step; the
// deadline covers the current step only and resets on every advance.
// All access goes through the registry, under its lock.
type Flow struct {
	ID        string
	Kind      Kind
	OwnerID   string
	ChannelID string
	SessionID string

	title       string
	description string
	category    string
	topic       string

	step     Step
	deadline time.Time
}

func (f *Flow) result() *Result {
	return &Result{
		Kind:        f.Kind,
		SessionID:   f.SessionID,
		Title:       f.title,
		Category:    f.category,
		Topic:       f.topic,
		Description: f.description,
	}
}

// Prompt tells the caller what to render next: a choice menu when Choices
// is set, otherwise a free-text request.
type Prompt struct {
	FlowID   string
	Step     Step
	Title    string
	Choices  []string
	AllowNew bool
	FreeText bool
}

// Result is the fully collected outcome of a completed flow. The caller
// applies it; the wizard never touches the store.
type Result struct {
	Kind        Kind
	SessionID   string
	Title       string
	Category    string
	Topic       string
	Description string
}

// Capture identifies who is waiting for a raw text message: either a
// wizard step or a session edit, never both.
type Capture struct {
	FlowID    string
	SessionID string
}

func menuPrompt(flow *Flow, choices []string) Prompt {
	return Prompt{
		FlowID:   flow.ID,
		Step:     flow.step,
		Title:    flow.title,
		Choices:  choices,
		AllowNew: true,
	}
}

func textPrompt(flow *Flow) Prompt {
	return Prompt{
		FlowID:   flow.ID,
		Step:     flow.step,
		Title:    flow.title,
		FreeText: true,
	}
}
