package chat

import (
	"errors"
	"time"
	"unicode/utf8"
)

var ErrNotFound = errors.New("conversation not found")

// Status is a message's delivery state.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

// snippetMax is the longest reply snippet carried on an outgoing message.
const snippetMax = 70

// ReplyContext is the denormalized reference an outgoing message carries
// when it replies to another message. The zero value means "not a reply";
// a non-zero value always carries all three fields, so construction sites
// cannot produce a reply with a missing snippet or label.
type ReplyContext struct {
	TargetID    string `json:"target_id,omitempty"`
	Snippet     string `json:"snippet,omitempty"`
	SenderLabel string `json:"sender_label,omitempty"`
}

func (r ReplyContext) IsZero() bool {
	return r.TargetID == ""
}

// ReplyTo builds the reply context for a target message: its id, a copy of
// its text truncated to 70 characters with a trailing ellipsis, and the
// sender label captured on the target at send time.
func ReplyTo(target *Message) ReplyContext {
	return ReplyContext{
		TargetID:    target.ID,
		Snippet:     truncate(target.Body, snippetMax),
		SenderLabel: target.SenderName,
	}
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "…"
}

// Message is one entry in a conversation's append-only message collection.
// ID, SenderID and CreatedAt never change after creation; only Status and
// Edited may mutate. Sender display metadata is captured at send time and
// is not live-updated.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	SenderID       string       `json:"sender_id"`
	Body           string       `json:"body"`
	Status         Status       `json:"status"`
	Edited         bool         `json:"edited"`
	Reply          ReplyContext `json:"reply,omitzero"`
	SenderName     string       `json:"sender_name,omitempty"`
	SenderAvatar   string       `json:"sender_avatar,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// GroupInfo carries group display metadata. The zero value means the
// conversation is one-to-one.
type GroupInfo struct {
	IsGroup   bool     `json:"is_group"`
	Name      string   `json:"name,omitempty"`
	Avatar    string   `json:"avatar,omitempty"`
	AdminIDs  []string `json:"admin_ids,omitempty"`
	CreatedBy string   `json:"created_by,omitempty"`
}

// LastMessage is the denormalized snapshot kept on the conversation for
// list display. It may lag the message collection between the send path's
// two writes.
type LastMessage struct {
	Body     string    `json:"body"`
	SenderID string    `json:"sender_id"`
	SentAt   time.Time `json:"sent_at"`
}

type Conversation struct {
	ID           string       `json:"id"`
	Participants []string     `json:"participants"`
	LastMessage  *LastMessage `json:"last_message,omitempty"`
	Group        GroupInfo    `json:"group,omitzero"`
	UpdatedAt    time.Time    `json:"updated_at"`
	CreatedAt    time.Time    `json:"created_at"`
}

// PartnerOf returns the other participant of a one-to-one conversation.
// Group conversations have no single partner.
func (c *Conversation) PartnerOf(localUID string) (string, bool) {
	if c.Group.IsGroup {
		return "", false
	}
	for _, p := range c.Participants {
		if p != localUID {
			return p, true
		}
	}
	return "", false
}

// HasParticipant reports whether uid belongs to the conversation.
func (c *Conversation) HasParticipant(uid string) bool {
	for _, p := range c.Participants {
		if p == uid {
			return true
		}
	}
	return false
}
