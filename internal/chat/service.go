package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"go-messenger/internal/logger"
)

var ErrEmptyMessage = errors.New("message body is empty")

// Store is what the send path needs from the durable document store.
type Store interface {
	Messages(ctx context.Context, convID string) ([]Message, error)
	Insert(ctx context.Context, m *Message) error
	Conversation(ctx context.Context, id string) (*Conversation, error)
	RecordLastMessage(ctx context.Context, convID string, lm LastMessage, senderID string) error
}

// Notifier tells subscribers that a conversation's message collection
// changed.
type Notifier interface {
	ConversationChanged(ctx context.Context, convID string) error
}

// Sender identifies the local authenticated user and the display metadata
// captured onto outgoing messages.
type Sender struct {
	ID     string
	Name   string
	Avatar string
}

type Service struct {
	store    Store
	notifier Notifier
	log      *slog.Logger
}

func NewService(store Store, notifier Notifier) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		log:      logger.Log,
	}
}

// Send performs the two logically-linked writes of the send path: append
// the message, then merge the conversation's last-message snapshot and
// re-affirm the sender's membership.
//
// The writes are sequential, not atomic. If the snapshot update fails
// after the insert succeeded, the message is durably stored but the
// conversation preview stays stale until the next successful send. That
// gap is deliberate: the two records belong to collaborators that offer
// no cross-document transaction, and masking the failure here would hide
// a durable write from the caller. We log the partial failure and return
// the stored message alongside the error.
func (s *Service) Send(ctx context.Context, convID string, from Sender, body string, replyTarget *Message) (*Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyMessage
	}

	m := &Message{
		ID:             uuid.NewString(),
		ConversationID: convID,
		SenderID:       from.ID,
		Body:           body,
		Status:         StatusSent,
		SenderName:     from.Name,
		SenderAvatar:   from.Avatar,
	}
	if replyTarget != nil {
		m.Reply = ReplyTo(replyTarget)
	}

	if err := s.store.Insert(ctx, m); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	lm := LastMessage{Body: m.Body, SenderID: m.SenderID, SentAt: m.CreatedAt}
	if err := s.store.RecordLastMessage(ctx, convID, lm, from.ID); err != nil {
		s.log.Warn("conversation snapshot not updated after message append",
			"conversation", convID, "message", m.ID, "err", err)
		return m, fmt.Errorf("update conversation snapshot: %w", err)
	}

	if err := s.notifier.ConversationChanged(ctx, convID); err != nil {
		// Subscribers miss one wakeup; the message itself is durable and
		// the next notification re-reads the full sequence.
		s.log.Warn("change notification failed", "conversation", convID, "err", err)
	}

	return m, nil
}

// History is the REST read of the full ordered message sequence.
func (s *Service) History(ctx context.Context, convID, requesterUID string) ([]Message, error) {
	conv, err := s.store.Conversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(requesterUID) {
		return nil, ErrNotFound
	}
	return s.store.Messages(ctx, convID)
}

// Get loads a conversation the requester participates in.
func (s *Service) Get(ctx context.Context, convID, requesterUID string) (*Conversation, error) {
	conv, err := s.store.Conversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(requesterUID) {
		return nil, ErrNotFound
	}
	return conv, nil
}
