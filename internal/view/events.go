package view

import (
	"go-messenger/internal/chat"
	"go-messenger/internal/suggest"
)

// Event is what the server pushes to the presentation layer over the
// websocket. Type selects which payload fields are set.
type Event struct {
	Type string `json:"type"`

	// "conversation"
	Conversation *chat.Conversation `json:"conversation,omitempty"`

	// "messages"
	Messages       []chat.Message `json:"messages,omitempty"`
	ScrollToLatest bool           `json:"scroll_to_latest,omitempty"`

	// "presence"
	Presence *PresencePayload `json:"presence,omitempty"`

	// "suggestions"; nil set means cleared
	Suggestions *suggest.Set `json:"suggestions,omitempty"`

	// "composer_fill"; a selected suggestion text
	Text string `json:"text,omitempty"`

	// "sent"; acknowledgement carrying the stored message
	Message *chat.Message `json:"message,omitempty"`

	// "error" and "not_found"
	Error string `json:"error,omitempty"`
}

type PresencePayload struct {
	Online bool   `json:"online"`
	Label  string `json:"label"`
	Name   string `json:"name,omitempty"`
}

// Command is what the client sends: a user action on the open
// conversation view.
type Command struct {
	// "send", "composer", "select_suggestion"
	Type string `json:"type"`

	Text      string `json:"text,omitempty"`
	ReplyToID string `json:"reply_to_id,omitempty"`
	Index     int    `json:"index,omitempty"`
}

const (
	EventConversation = "conversation"
	EventMessages     = "messages"
	EventPresence     = "presence"
	EventSuggestions  = "suggestions"
	EventComposerFill = "composer_fill"
	EventSent         = "sent"
	EventError        = "error"
	EventNotFound     = "not_found"

	CommandSend       = "send"
	CommandComposer   = "composer"
	CommandSelectItem = "select_suggestion"
)
