package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Messages returns the full ordered message sequence for a conversation,
// creation timestamp ascending. The id tiebreak only makes exact-tie
// ordering deterministic; it carries no meaning.
func (r *Repository) Messages(ctx context.Context, convID string) ([]Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, body, status, edited,
		       COALESCE(reply_to_id, ''), COALESCE(reply_snippet, ''),
		       COALESCE(reply_sender_label, ''),
		       sender_name, sender_avatar, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, convID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.Status, &m.Edited,
			&m.Reply.TargetID, &m.Reply.Snippet, &m.Reply.SenderLabel,
			&m.SenderName, &m.SenderAvatar, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Insert appends a message. The creation timestamp is server-assigned and
// read back so the caller sees what subscribers will see.
func (r *Repository) Insert(ctx context.Context, m *Message) error {
	query := `
		INSERT INTO messages
			(id, conversation_id, sender_id, body, status, edited,
			 reply_to_id, reply_snippet, reply_sender_label,
			 sender_name, sender_avatar)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`
	return r.db.QueryRowContext(ctx, query,
		m.ID, m.ConversationID, m.SenderID, m.Body, m.Status, m.Edited,
		nullable(m.Reply.TargetID), nullable(m.Reply.Snippet), nullable(m.Reply.SenderLabel),
		m.SenderName, m.SenderAvatar,
	).Scan(&m.CreatedAt)
}

func (r *Repository) Conversation(ctx context.Context, id string) (*Conversation, error) {
	c := &Conversation{ID: id}
	var lastBody, lastSender sql.NullString
	var lastAt sql.NullTime
	var createdBy sql.NullString

	query := `
		SELECT is_group, group_name, group_avatar, created_by,
		       last_message_text, last_message_sender, last_message_at,
		       updated_at, created_at
		FROM conversations WHERE id = $1
	`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.Group.IsGroup, &c.Group.Name, &c.Group.Avatar, &createdBy,
		&lastBody, &lastSender, &lastAt,
		&c.UpdatedAt, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.Group.CreatedBy = createdBy.String
	if lastBody.Valid {
		c.LastMessage = &LastMessage{
			Body:     lastBody.String,
			SenderID: lastSender.String,
			SentAt:   lastAt.Time,
		}
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, is_admin FROM participants WHERE conversation_id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var uid string
		var admin bool
		if err := rows.Scan(&uid, &admin); err != nil {
			return nil, err
		}
		c.Participants = append(c.Participants, uid)
		if admin {
			c.Group.AdminIDs = append(c.Group.AdminIDs, uid)
		}
	}
	if !c.Group.IsGroup {
		c.Group.AdminIDs = nil
	}
	return c, rows.Err()
}

// FindOrCreateDirect returns the one-to-one conversation between two users,
// creating it when absent.
func (r *Repository) FindOrCreateDirect(ctx context.Context, uidA, uidB string) (string, error) {
	var id string
	query := `
		SELECT c.id
		FROM conversations c
		JOIN participants pa ON pa.conversation_id = c.id AND pa.user_id = $1
		JOIN participants pb ON pb.conversation_id = c.id AND pb.user_id = $2
		WHERE c.is_group = FALSE
		LIMIT 1
	`
	err := r.db.QueryRowContext(ctx, query, uidA, uidB).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	id = uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, is_group, created_by) VALUES ($1, FALSE, $2)`,
		id, uidA); err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	for _, uid := range []string{uidA, uidB} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO participants (conversation_id, user_id) VALUES ($1, $2)`,
			id, uid); err != nil {
			return "", fmt.Errorf("add participant: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// RecordLastMessage is the send path's second write: the denormalized
// last-message snapshot, the updated-at bump, and the sender's membership
// re-affirmation (the document-store arrayUnion equivalent).
func (r *Repository) RecordLastMessage(ctx context.Context, convID string, lm LastMessage, senderID string) error {
	query := `
		UPDATE conversations
		SET last_message_text = $2,
		    last_message_sender = $3,
		    last_message_at = $4,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, convID, lm.Body, lm.SenderID, lm.SentAt); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO participants (conversation_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, convID, senderID)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
