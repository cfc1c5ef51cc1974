package wizard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"glossa/bot/internal/util"
)

const sweepInterval = 15 * time.Second

// Taxonomy is the slice of the glossary service the wizard reads its
// candidate sets from.
type Taxonomy interface {
	Categories(ctx context.Context) ([]string, error)
	Topics(ctx context.Context, category string) ([]string, error)
}

type pendingCapture struct {
	flowID    string
	sessionID string
	deadline  time.Time
}

// Registry owns every in-progress flow plus the free-text captures, keyed
// by channel and actor so a raw message can be routed to whoever asked
// for it. One registry lock serializes all wizard work; flows are short
// menu hops and the candidate-set queries are cheap.
type Registry struct {
	taxonomy Taxonomy
	stepTTL  time.Duration
	log      *zap.SugaredLogger

	mu       sync.Mutex
	flows    map[string]*Flow
	captures map[string]pendingCapture
	expired  chan string
	done     chan struct{}
}

func NewRegistry(tax Taxonomy, stepTTL time.Duration, log *zap.SugaredLogger) *Registry {
	r := &Registry{
		taxonomy: tax,
		stepTTL:  stepTTL,
		log:      log,
		flows:    make(map[string]*Flow),
		captures: make(map[string]pendingCapture),
		expired:  make(chan string, 16),
		done:     make(chan struct{}),
	}
	go r.sweep()
	return r
}

// StartCreate opens a creation flow. A non-empty description seeds the
// entry text (taken from a referenced message) and skips the final
// free-text step. A failed start leaves no flow behind.
func (r *Registry) StartCreate(ctx context.Context, ownerID, channelID, title, description string) (Prompt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	flow := &Flow{
		ID:          util.NewID("wiz"),
		Kind:        KindCreate,
		OwnerID:     ownerID,
		ChannelID:   channelID,
		title:       title,
		description: strings.TrimSpace(description),
		step:        StepCategory,
		deadline:    time.Now().Add(r.stepTTL),
	}
	categories, err := r.taxonomy.Categories(ctx)
	if err != nil {
		return Prompt{}, fmt.Errorf("load categories: %w", err)
	}
	r.flows[flow.ID] = flow
	return menuPrompt(flow, categories), nil
}

// StartMove opens a move flow for the entry a session is pointing at.
// The flow stops after the topic step; the caller applies the result to
// the session.
func (r *Registry) StartMove(ctx context.Context, ownerID, channelID, sessionID, title string) (Prompt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	flow := &Flow{
		ID:        util.NewID("wiz"),
		Kind:      KindMove,
		OwnerID:   ownerID,
		ChannelID: channelID,
		SessionID: sessionID,
		title:     title,
		step:      StepCategory,
		deadline:  time.Now().Add(r.stepTTL),
	}
	categories, err := r.taxonomy.Categories(ctx)
	if err != nil {
		return Prompt{}, fmt.Errorf("load categories: %w", err)
	}
	r.flows[flow.ID] = flow
	return menuPrompt(flow, categories), nil
}

// Choose applies a menu selection. Picking NewChoice switches the step to
// a free-text capture instead of advancing.
func (r *Registry) Choose(ctx context.Context, flowID, actorID, value string) (Prompt, *Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	flow, ok := r.flows[flowID]
	if !ok {
		return Prompt{}, nil, ErrExpired
	}
	if actorID != flow.OwnerID {
		return Prompt{}, nil, ErrNotOwner
	}
	if now.After(flow.deadline) {
		r.drop(flow)
		return Prompt{}, nil, ErrExpired
	}
	// A menu press supersedes any capture this flow was waiting on.
	r.releaseCapture(flow)
	if value == NewChoice {
		return r.awaitValue(flow, now), nil, nil
	}
	return r.apply(ctx, flow, value, now)
}

// SubmitText feeds a claimed free-text capture into its flow. Empty input
// aborts the whole flow, discarding every collected value.
func (r *Registry) SubmitText(ctx context.Context, flowID, actorID, text string) (Prompt, *Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	flow, ok := r.flows[flowID]
	if !ok {
		return Prompt{}, nil, ErrExpired
	}
	if actorID != flow.OwnerID {
		return Prompt{}, nil, ErrNotOwner
	}
	if now.After(flow.deadline) {
		r.drop(flow)
		return Prompt{}, nil, ErrExpired
	}
	text = strings.TrimSpace(text)
	if text == "" {
		r.drop(flow)
		return Prompt{}, nil, ErrAborted
	}
	return r.apply(ctx, flow, text, now)
}

// AwaitEdit registers a free-text capture for a session edit. The next
// message from that actor in that channel belongs to the session.
func (r *Registry) AwaitEdit(sessionID, channelID, actorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captures[captureKey(channelID, actorID)] = pendingCapture{
		sessionID: sessionID,
		deadline:  time.Now().Add(r.stepTTL),
	}
}

// ClaimCapture hands out the pending capture for a channel and actor, if
// any. Claims are one-shot; an expired capture is discarded here.
func (r *Registry) ClaimCapture(channelID, actorID string) (Capture, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := captureKey(channelID, actorID)
	pending, ok := r.captures[key]
	if !ok {
		return Capture{}, false
	}
	delete(r.captures, key)
	if time.Now().After(pending.deadline) {
		return Capture{}, false
	}
	return Capture{FlowID: pending.flowID, SessionID: pending.sessionID}, true
}

// Expired yields the ids of flows the sweeper has collected.
func (r *Registry) Expired() <-chan string {
	return r.expired
}

func (r *Registry) Close() {
	close(r.done)
}

// apply records value for the current step and moves the flow forward.
// Caller holds the lock. A mid-flow candidate query failure aborts the
// whole flow rather than stranding it half-filled.
func (r *Registry) apply(ctx context.Context, flow *Flow, value string, now time.Time) (Prompt, *Result, error) {
	switch flow.step {
	case StepCategory:
		flow.category = value
		flow.step = StepTopic
		flow.deadline = now.Add(r.stepTTL)
		topics, err := r.taxonomy.Topics(ctx, flow.category)
		if err != nil {
			r.drop(flow)
			return Prompt{}, nil, fmt.Errorf("load topics: %w", err)
		}
		return menuPrompt(flow, topics), nil, nil
	case StepTopic:
		flow.topic = value
		if flow.Kind == KindMove || flow.description != "" {
			r.drop(flow)
			return Prompt{}, flow.result(), nil
		}
		return r.awaitDescription(flow, now), nil, nil
	default:
		flow.description = value
		r.drop(flow)
		return Prompt{}, flow.result(), nil
	}
}

func (r *Registry) awaitValue(flow *Flow, now time.Time) Prompt {
	flow.deadline = now.Add(r.stepTTL)
	r.captures[captureKey(flow.ChannelID, flow.OwnerID)] = pendingCapture{
		flowID:   flow.ID,
		deadline: flow.deadline,
	}
	return textPrompt(flow)
}

func (r *Registry) awaitDescription(flow *Flow, now time.Time) Prompt {
	flow.step = StepText
	return r.awaitValue(flow, now)
}

func (r *Registry) releaseCapture(flow *Flow) {
	key := captureKey(flow.ChannelID, flow.OwnerID)
	if pending, ok := r.captures[key]; ok && pending.flowID == flow.ID {
		delete(r.captures, key)
	}
}

func (r *Registry) drop(flow *Flow) {
	delete(r.flows, flow.ID)
	r.releaseCapture(flow)
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
					r.log.Warnw("expiry report dropped", "flow", id)
				}
			}
		}
	}
}

// collect removes every flow past its step deadline plus any stale
// session-edit captures. Each flow id comes back from exactly one call.
func (r *Registry) collect(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var gone []string
	for id, flow := range r.flows {
		if now.After(flow.deadline) {
			r.drop(flow)
			gone = append(gone, id)
		}
	}
	for key, pending := range r.captures {
		if now.After(pending.deadline) {
			delete(r.captures, key)
		}
	}
	return gone
}

func captureKey(channelID, actorID string) string {
	return channelID + ":" + actorID
}
