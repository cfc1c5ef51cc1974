package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"glossa/bot/internal/glossary"
	"glossa/bot/internal/session"
	"glossa/bot/internal/store"
	"glossa/bot/internal/wizard"
)

const searchLimit = 25

// Deduper tells the dispatcher whether an event id was already handled.
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
}

// entryOps is the slice of the glossary service the dispatcher calls.
type entryOps interface {
	CreateEntry(ctx context.Context, actor glossary.Actor, input glossary.CreateEntryInput) (store.Entry, error)
	BrowseByTitle(ctx context.Context, title string, byVotes bool) ([]store.Entry, error)
	ListEntries(ctx context.Context, category, topic string) ([]store.Entry, error)
	Categories(ctx context.Context) ([]string, error)
	Topics(ctx context.Context, category string) ([]string, error)
	Search(ctx context.Context, query, category string, limit int64) ([]store.Entry, error)
	RetireCategory(ctx context.Context, actor glossary.Actor, category string) (int64, error)
	RetireTopic(ctx context.Context, actor glossary.Actor, category, topic string) (int64, error)
	Reindex(ctx context.Context) (int, error)
}

// Dispatcher routes decoded events to commands, sessions, and wizards.
type Dispatcher struct {
	glossary entryOps
	sessions *session.Registry
	wizards  *wizard.Registry
	dedup    Deduper
	log      *zap.SugaredLogger
}

func NewDispatcher(svc *glossary.Service, sessions *session.Registry, wizards *wizard.Registry, dedup Deduper, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		glossary: svc,
		sessions: sessions,
		wizards:  wizards,
		dedup:    dedup,
		log:      log,
	}
}

// Dispatch routes one event and always produces a renderable response.
// A redelivered event id is acknowledged without running anything twice;
// a failed dedup check lets the event through rather than dropping it.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) Response {
	seen, err := d.dedup.Seen(ctx, event.ID)
	if err != nil {
		d.log.Warnw("event dedup check failed", "event", event.ID, "error", err)
	} else if seen {
		return Response{}
	}

	switch event.Type {
	case EventCommand:
		if event.Command == nil {
			return Response{}
		}
		return d.command(ctx, event)
	case EventComponent:
		if event.Component == nil {
			return Response{}
		}
		return d.component(ctx, event)
	case EventMessage:
		if event.Message == nil {
			return Response{}
		}
		return d.message(ctx, event)
	default:
		d.log.Warnw("unhandled event type", "type", event.Type)
		return Response{}
	}
}

// Reindex rebuilds the search index from the store.
func (d *Dispatcher) Reindex(ctx context.Context) (int, error) {
	return d.glossary.Reindex(ctx)
}

// LogExpiries drains the registries' expiry reports until done closes.
// The platform adapter follows these log lines to disable controls on
// messages whose session or wizard timed out untouched.
func (d *Dispatcher) LogExpiries(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case id := <-d.sessions.Expired():
			d.log.Infow("session expired", "session", id)
		case id := <-d.wizards.Expired():
			d.log.Infow("wizard expired", "flow", id)
		}
	}
}

func (d *Dispatcher) command(ctx context.Context, event Event) Response {
	switch event.Command.Name {
	case "define":
		return d.define(ctx, event)
	case "add":
		return d.add(ctx, event)
	case "browse":
		return d.browse(ctx)
	case "search":
		return d.search(ctx, event)
	case "retire":
		return d.retire(ctx, event)
	default:
		return notice(fmt.Sprintf("Unknown command %q.", event.Command.Name), true)
	}
}

func (d *Dispatcher) define(ctx context.Context, event Event) Response {
	title := event.Command.arg("title")
	if title == "" {
		return notice("A title is required.", true)
	}
	byVotes := event.Command.arg("sort") == "votes"
	entries, err := d.glossary.BrowseByTitle(ctx, title, byVotes)
	if err != nil {
		return d.actionError("browse by title", err)
	}
	title = store.NormalizeTitle(title)
	if len(entries) == 0 {
		return notice(fmt.Sprintf("No entries found for %s.", title), false)
	}
	sess := d.sessions.Create("", event.ChannelID, title, entries)
	return pageResponse(sess.View())
}

// add creates an entry directly when the command brought everything the
// entry needs, and otherwise opens a creation wizard. A command sent as
// a reply seeds the description from the referenced message.
func (d *Dispatcher) add(ctx context.Context, event Event) Response {
	cmd := event.Command
	title := cmd.arg("title")
	if title == "" {
		return notice("A title is required.", true)
	}
	description := cmd.arg("description")
	if description == "" {
		description = strings.TrimSpace(cmd.ReplyText)
	}
	category, topic := cmd.arg("category"), cmd.arg("topic")
	if category != "" && topic != "" && description != "" {
		entry, err := d.glossary.CreateEntry(ctx, domainActor(event.Actor), glossary.CreateEntryInput{
			Title:         title,
			Category:      category,
			Topic:         topic,
			Description:   description,
			Reference:     cmd.arg("reference"),
			ImageURL:      cmd.arg("image"),
			AttachmentURL: cmd.Attachment,
		})
		if err != nil {
			return d.actionError("create entry", err)
		}
		return notice(fmt.Sprintf("Added %s to %s/%s.", entry.Title, entry.Category, entry.Topic), false)
	}
	prompt, err := d.wizards.StartCreate(ctx, event.Actor.ID, event.ChannelID, title, description)
	if err != nil {
		return d.actionError("start create wizard", err)
	}
	return promptResponse(prompt)
}

func (d *Dispatcher) browse(ctx context.Context) Response {
	categories, err := d.glossary.Categories(ctx)
	if err != nil {
		return d.actionError("list categories", err)
	}
	if len(categories) == 0 {
		return notice("The glossary is empty.", false)
	}
	return Response{Menu: &MenuView{
		CustomID: browseCategoryID,
		Title:    "Pick a category",
		Choices:  categories,
	}}
}

func (d *Dispatcher) search(ctx context.Context, event Event) Response {
	query := event.Command.arg("query")
	if query == "" {
		return notice("A search query is required.", true)
	}
	entries, err := d.glossary.Search(ctx, query, event.Command.arg("category"), searchLimit)
	if err != nil {
		return d.actionError("search", err)
	}
	if len(entries) == 0 {
		return notice(fmt.Sprintf("No matches for %q.", query), false)
	}
	sess := d.sessions.Create("", event.ChannelID, "Search: "+query, entries)
	return pageResponse(sess.View())
}

func (d *Dispatcher) retire(ctx context.Context, event Event) Response {
	category := event.Command.arg("category")
	topic := event.Command.arg("topic")
	actor := domainActor(event.Actor)
	var moved int64
	var err error
	if topic != "" {
		moved, err = d.glossary.RetireTopic(ctx, actor, category, topic)
	} else {
		moved, err = d.glossary.RetireCategory(ctx, actor, category)
	}
	if err != nil {
		return d.actionError("retire", err)
	}
	retired := category
	if topic != "" {
		retired = category + "/" + topic
	}
	return notice(fmt.Sprintf("Retired %s; moved %d entries to %s.", retired, moved, store.DefaultBucket), false)
}

func (d *Dispatcher) component(ctx context.Context, event Event) Response {
	parts := strings.SplitN(event.Component.CustomID, ":", 3)
	switch parts[0] {
	case componentSession:
		if len(parts) != 3 {
			return Response{}
		}
		return d.sessionAction(ctx, event, parts[1], parts[2])
	case componentWizard:
		if len(parts) != 3 || parts[2] != "choose" {
			return Response{}
		}
		return d.wizardChoice(ctx, event, parts[1])
	case componentBrowse:
		return d.browseHop(ctx, event, parts)
	default:
		d.log.Warnw("unknown component id", "custom_id", event.Component.CustomID)
		return Response{}
	}
}

func (d *Dispatcher) sessionAction(ctx context.Context, event Event, sessionID, action string) Response {
	sess, err := d.sessions.Get(sessionID)
	if err != nil {
		return d.actionError("session lookup", err)
	}
	actor := domainActor(event.Actor)
	switch action {
	case "prev":
		view, err := sess.PagePrev(actor.ID)
		if err != nil {
			return d.actionError("page back", err)
		}
		return pageResponse(view)
	case "next":
		view, err := sess.PageNext(actor.ID)
		if err != nil {
			return d.actionError("page forward", err)
		}
		return pageResponse(view)
	case "vote":
		view, accepted, err := sess.Vote(ctx, actor)
		if err != nil {
			return d.actionError("vote", err)
		}
		if !accepted {
			return notice("You've already voted on this entry.", true)
		}
		resp := pageResponse(view)
		resp.Notice = &NoticeView{Text: "Vote recorded.", Private: true}
		return resp
	case "edit":
		entry, ok := sess.Current()
		if !ok {
			return notice("This session has ended.", true)
		}
		if entry.AuthorID != event.Actor.ID {
			return notice("Only the author can edit this entry.", true)
		}
		d.wizards.AwaitEdit(sess.ID, event.ChannelID, event.Actor.ID)
		return Response{Prompt: &PromptView{Title: entry.Title, Text: "Reply with the new description."}}
	case "delete":
		view, err := sess.Delete(ctx, actor)
		if err != nil {
			return d.actionError("delete entry", err)
		}
		return pageResponse(view)
	case "move":
		entry, ok := sess.Current()
		if !ok {
			return notice("This session has ended.", true)
		}
		if entry.AuthorID != event.Actor.ID {
			return notice("Only the author can move this entry.", true)
		}
		prompt, err := d.wizards.StartMove(ctx, event.Actor.ID, event.ChannelID, sess.ID, entry.Title)
		if err != nil {
			return d.actionError("start move wizard", err)
		}
		return promptResponse(prompt)
	default:
		return Response{}
	}
}

func (d *Dispatcher) wizardChoice(ctx context.Context, event Event, flowID string) Response {
	prompt, result, err := d.wizards.Choose(ctx, flowID, event.Actor.ID, event.Component.Value)
	if err != nil {
		return d.actionError("wizard choice", err)
	}
	if result != nil {
		return d.completeWizard(ctx, event, result)
	}
	return promptResponse(prompt)
}

func (d *Dispatcher) browseHop(ctx context.Context, event Event, parts []string) Response {
	if len(parts) < 2 {
		return Response{}
	}
	switch parts[1] {
	case "cat":
		category := event.Component.Value
		topics, err := d.glossary.Topics(ctx, category)
		if err != nil {
			return d.actionError("list topics", err)
		}
		if len(topics) == 0 {
			return notice(fmt.Sprintf("No topics under %s.", category), false)
		}
		return Response{Menu: &MenuView{
			CustomID: browseTopicPrefix + category,
			Title:    category,
			Choices:  topics,
		}}
	case "top":
		if len(parts) != 3 {
			return Response{}
		}
		category, topic := parts[2], event.Component.Value
		entries, err := d.glossary.ListEntries(ctx, category, topic)
		if err != nil {
			return d.actionError("list entries", err)
		}
		if len(entries) == 0 {
			return notice(fmt.Sprintf("No entries under %s/%s.", category, topic), false)
		}
		sess := d.sessions.Create("", event.ChannelID, category+"/"+topic, entries)
		return pageResponse(sess.View())
	default:
		return Response{}
	}
}

// message routes a raw channel message to whoever was waiting for text:
// a wizard step or a session edit. Unclaimed messages are ordinary chat.
func (d *Dispatcher) message(ctx context.Context, event Event) Response {
	claimed, ok := d.wizards.ClaimCapture(event.ChannelID, event.Actor.ID)
	if !ok {
		return Response{}
	}
	if claimed.FlowID != "" {
		prompt, result, err := d.wizards.SubmitText(ctx, claimed.FlowID, event.Actor.ID, event.Message.Text)
		if err != nil {
			return d.actionError("wizard input", err)
		}
		if result != nil {
			return d.completeWizard(ctx, event, result)
		}
		return promptResponse(prompt)
	}
	sess, err := d.sessions.Get(claimed.SessionID)
	if err != nil {
		return d.actionError("session lookup", err)
	}
	view, err := sess.Edit(ctx, domainActor(event.Actor), glossary.EditEntryInput{Description: event.Message.Text})
	if err != nil {
		return d.actionError("edit entry", err)
	}
	resp := pageResponse(view)
	resp.Notice = &NoticeView{Text: "Entry updated.", Private: true}
	return resp
}

// completeWizard applies a finished flow: creation inserts the entry,
// move hands the picked buckets back to the flow's session.
func (d *Dispatcher) completeWizard(ctx context.Context, event Event, result *wizard.Result) Response {
	actor := domainActor(event.Actor)
	if result.Kind == wizard.KindMove {
		sess, err := d.sessions.Get(result.SessionID)
		if err != nil {
			return d.actionError("session lookup", err)
		}
		view, err := sess.Move(ctx, actor, result.Category, result.Topic)
		if err != nil {
			return d.actionError("move entry", err)
		}
		resp := pageResponse(view)
		resp.Notice = &NoticeView{Text: fmt.Sprintf("Moved to %s/%s.", result.Category, result.Topic), Private: true}
		return resp
	}
	entry, err := d.glossary.CreateEntry(ctx, actor, glossary.CreateEntryInput{
		Title:       result.Title,
		Category:    result.Category,
		Topic:       result.Topic,
		Description: result.Description,
	})
	if err != nil {
		return d.actionError("create entry", err)
	}
	return notice(fmt.Sprintf("Added %s to %s/%s.", entry.Title, entry.Category, entry.Topic), false)
}

// actionError turns a failed action into the notice the actor sees.
// Constraint rejections keep their message; infrastructure failures are
// logged and come back generic.
func (d *Dispatcher) actionError(op string, err error) Response {
	var domain *glossary.DomainError
	switch {
	case errors.As(err, &domain):
		return notice(domain.Message, true)
	case errors.Is(err, session.ErrExpired):
		return notice("This session has ended.", true)
	case errors.Is(err, session.ErrNotOwner):
		return notice("This session belongs to someone else.", true)
	case errors.Is(err, wizard.ErrExpired):
		return notice("This wizard has expired.", true)
	case errors.Is(err, wizard.ErrNotOwner):
		return notice("This wizard belongs to someone else.", true)
	case errors.Is(err, wizard.ErrAborted):
		return notice("Cancelled. Nothing was saved.", true)
	default:
		d.log.Errorw(op+" failed", "error", err)
		return notice("Something went wrong. Try again.", true)
	}
}

func domainActor(a Actor) glossary.Actor {
	return glossary.Actor{ID: a.ID, Name: a.Name, Roles: a.Roles}
}
