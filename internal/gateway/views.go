package gateway

import (
	"time"

	"glossa/bot/internal/session"
	"glossa/bot/internal/store"
	"glossa/bot/internal/wizard"
)

// Response is the render-ready answer to one event. All fields are plain
// data for the platform adapter; an empty response is a bare ack.
type Response struct {
	Page   *PageView   `json:"page,omitempty"`
	Menu   *MenuView   `json:"menu,omitempty"`
	Prompt *PromptView `json:"prompt,omitempty"`
	Notice *NoticeView `json:"notice,omitempty"`
}

type EntryView struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Topic       string    `json:"topic"`
	Description string    `json:"description"`
	AuthorName  string    `json:"authorName"`
	Reference   string    `json:"reference,omitempty"`
	ImageRef    string    `json:"imageRef,omitempty"`
	Votes       int       `json:"votes"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Control is one button the renderer should attach to a page.
type Control struct {
	CustomID string `json:"customId"`
	Action   string `json:"action"`
}

// PageView is one rendered page of a session. Disabled sessions carry no
// controls.
type PageView struct {
	SessionID string      `json:"sessionId"`
	Label     string      `json:"label"`
	State     string      `json:"state"`
	Entries   []EntryView `json:"entries"`
	Page      int         `json:"page"`
	PageCount int         `json:"pageCount"`
	Total     int         `json:"total"`
	Notice    string      `json:"notice,omitempty"`
	Controls  []Control   `json:"controls,omitempty"`
}

// MenuView asks the renderer for a single selection. NewChoice, when
// set, is the value to send back for the synthetic create-new option.
type MenuView struct {
	CustomID  string   `json:"customId"`
	Title     string   `json:"title"`
	Choices   []string `json:"choices"`
	AllowNew  bool     `json:"allowNew,omitempty"`
	NewChoice string   `json:"newChoice,omitempty"`
}

// PromptView asks the actor to reply with free text. The reply is routed
// back by channel and author, so the view carries no id.
type PromptView struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// NoticeView is a plain confirmation or rejection. Private notices go to
// the acting user only.
type NoticeView struct {
	Text    string `json:"text"`
	Private bool   `json:"private,omitempty"`
}

var sessionActions = [...]string{"prev", "next", "vote", "edit", "delete", "move"}

func pageResponse(v session.View) Response {
	pv := pageView(v)
	return Response{Page: &pv}
}

func pageView(v session.View) PageView {
	entries := make([]EntryView, 0, len(v.Entries))
	for _, e := range v.Entries {
		entries = append(entries, entryView(e))
	}
	view := PageView{
		SessionID: v.SessionID,
		Label:     v.Label,
		State:     string(v.State),
		Entries:   entries,
		Page:      v.Page,
		PageCount: v.PageCount,
		Total:     v.Total,
		Notice:    v.Notice,
	}
	if v.State == session.StateActive {
		for _, action := range sessionActions {
			view.Controls = append(view.Controls, Control{
				CustomID: sessionComponentID(v.SessionID, action),
				Action:   action,
			})
		}
	}
	return view
}

func entryView(e store.Entry) EntryView {
	return EntryView{
		ID:          e.ID.Hex(),
		Title:       e.Title,
		Category:    e.Category,
		Topic:       e.Topic,
		Description: e.Description,
		AuthorName:  e.AuthorName,
		Reference:   e.Reference,
		ImageRef:    e.ImageRef,
		Votes:       e.Votes,
		LastUpdated: e.LastUpdatedAt,
	}
}

func promptResponse(p wizard.Prompt) Response {
	if p.FreeText {
		return Response{Prompt: &PromptView{Title: p.Title, Text: promptText(p.Step)}}
	}
	menu := MenuView{
		CustomID: wizardComponentID(p.FlowID),
		Title:    menuTitle(p),
		Choices:  p.Choices,
	}
	if p.AllowNew {
		menu.AllowNew = true
		menu.NewChoice = wizard.NewChoice
	}
	return Response{Menu: &menu}
}

func promptText(step wizard.Step) string {
	switch step {
	case wizard.StepCategory:
		return "Reply with the new category name."
	case wizard.StepTopic:
		return "Reply with the new topic name."
	default:
		return "Reply with the description."
	}
}

func menuTitle(p wizard.Prompt) string {
	if p.Step == wizard.StepCategory {
		return "Pick a category for " + p.Title
	}
	return "Pick a topic for " + p.Title
}

func notice(text string, private bool) Response {
	return Response{Notice: &NoticeView{Text: text, Private: private}}
}
