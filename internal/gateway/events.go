// Package gateway adapts signed platform deliveries into glossary
// operations, session actions, and wizard steps, and shapes the results
// into render-ready views. Rendering itself stays with the platform
// adapter on the other side of the wire.
package gateway

import "strings"

type EventType string

const (
	EventCommand   EventType = "command"
	EventComponent EventType = "component"
	EventMessage   EventType = "message"
)

// Actor is the platform user behind an event.
type Actor struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

// Event is the envelope every delivery decodes into. Exactly one of
// Command, Component, Message is set, matching Type. IDs are assigned by
// the platform and repeat on redelivery.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	ChannelID string    `json:"channelId"`
	Actor     Actor     `json:"actor"`

	Command   *CommandPayload   `json:"command,omitempty"`
	Component *ComponentPayload `json:"component,omitempty"`
	Message   *MessagePayload   `json:"message,omitempty"`
}

// CommandPayload carries a named command with its options. ReplyText is
// the text of the message the command replied to, if any; Attachment is
// the url of a file uploaded with the command.
type CommandPayload struct {
	Name       string            `json:"name"`
	Args       map[string]string `json:"args,omitempty"`
	ReplyText  string            `json:"replyText,omitempty"`
	Attachment string            `json:"attachment,omitempty"`
}

func (c *CommandPayload) arg(name string) string {
	return strings.TrimSpace(c.Args[name])
}

// ComponentPayload is a button press or menu selection on a message the
// bot rendered earlier.
type ComponentPayload struct {
	CustomID string `json:"customId"`
	Value    string `json:"value,omitempty"`
}

// MessagePayload is a raw channel message, only meaningful while a
// wizard step or an entry edit is waiting for text from its author.
type MessagePayload struct {
	Text string `json:"text"`
}

// Component id scheme. Category names may contain any character, so they
// always ride in the final segment:
//
//	sess:<id>:<action>   session buttons
//	wiz:<id>:choose      wizard selection menus
//	brw:cat              category browse menu
//	brw:top:<category>   topic browse menu for one category
const (
	componentSession = "sess"
	componentWizard  = "wiz"
	componentBrowse  = "brw"

	browseCategoryID  = "brw:cat"
	browseTopicPrefix = "brw:top:"
)

func sessionComponentID(sessionID, action string) string {
	return componentSession + ":" + sessionID + ":" + action
}

func wizardComponentID(flowID string) string {
	return componentWizard + ":" + flowID + ":choose"
}
