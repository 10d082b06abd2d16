package msglog

import (
	"context"
	"database/sql"

	"community-chat/internal/apperr"
	"community-chat/internal/identity"

	"github.com/pkg/errors"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertMessage persists a message and bumps the conversation's
// last-activity timestamp to the message's creation time, in one
// transaction so the ordering the list view sorts on cannot drift from
// the log.
func (r *Repository) InsertMessage(ctx context.Context, m *Message) (*Message, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Persistence(err, "begin send")
	}
	defer tx.Rollback()

	u, a, mn := m.Sender.Slots()
	err = tx.QueryRowContext(ctx, `
		INSERT INTO messages (conversation_id, sender_kind, sender_user_id, sender_admin_id, sender_mentor_id, body, reply_to_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		m.ConversationID, m.Sender.Kind, u, a, mn, m.Body, m.ReplyToID,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, apperr.Persistence(err, "insert message")
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE conversations SET last_activity_at = $1 WHERE id = $2`,
		m.CreatedAt, m.ConversationID)
	if err != nil {
		return nil, apperr.Persistence(err, "bump last activity")
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Persistence(err, "commit send")
	}
	return m, nil
}

// GetMessage returns a message by id, soft-deleted ones included; callers
// decide what a deleted row means in their context.
func (r *Repository) GetMessage(ctx context.Context, id int) (*Message, error) {
	var (
		m       Message
		kind    string
		u, a, s sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_kind, sender_user_id, sender_admin_id, sender_mentor_id,
		       body, reply_to_id, created_at, edited_at, deleted_at
		FROM messages WHERE id = $1`, id,
	).Scan(&m.ID, &m.ConversationID, &kind, &u, &a, &s,
		&m.Body, &m.ReplyToID, &m.CreatedAt, &m.EditedAt, &m.DeletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Persistence(err, "get message")
	}
	sender, err := identity.FromSlots(kind, u, a, s)
	if err != nil {
		return nil, err
	}
	m.Sender = sender
	return &m, nil
}

// Page returns the limit most recent non-deleted messages at the given
// offset, newest first. The service reverses them for callers.
func (r *Repository) Page(ctx context.Context, conversationID, limit, offset int) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_kind, sender_user_id, sender_admin_id, sender_mentor_id,
		       body, reply_to_id, created_at, edited_at
		FROM messages
		WHERE conversation_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		conversationID, limit, offset)
	if err != nil {
		return nil, apperr.Persistence(err, "page messages")
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			m       Message
			kind    string
			u, a, s sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &kind, &u, &a, &s,
			&m.Body, &m.ReplyToID, &m.CreatedAt, &m.EditedAt); err != nil {
			return nil, apperr.Persistence(err, "scan message")
		}
		sender, err := identity.FromSlots(kind, u, a, s)
		if err != nil {
			return nil, err
		}
		m.Sender = sender
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *Repository) MarkEdited(ctx context.Context, id int, body string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE messages SET body = $1, edited_at = NOW() WHERE id = $2`, body, id)
	return apperr.Persistence(err, "edit message")
}

// MarkDeleted soft-deletes: the row stays so receipt bookkeeping keeps a
// valid target, it just drops out of reads.
func (r *Repository) MarkDeleted(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE messages SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	return apperr.Persistence(err, "delete message")
}

// Search matches body substrings across the requester's conversations,
// excluding soft-deleted messages, newest first.
func (r *Repository) Search(ctx context.Context, requester identity.Participant, query string, limit int) ([]SearchHit, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.id, m.conversation_id, m.sender_kind, m.sender_user_id, m.sender_admin_id, m.sender_mentor_id,
		       m.body, m.reply_to_id, m.created_at, m.edited_at,
		       c.type, c.title
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		JOIN participants p ON p.conversation_id = m.conversation_id
		WHERE p.kind = $1 AND COALESCE(p.user_id, p.admin_id, p.mentor_id) = $2
		  AND m.deleted_at IS NULL
		  AND m.body ILIKE $3
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $4`,
		requester.Kind, requester.ID, "%"+query+"%", limit)
	if err != nil {
		return nil, apperr.Persistence(err, "search messages")
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var (
			h       SearchHit
			kind    string
			u, a, s sql.NullInt64
			title   sql.NullString
		)
		if err := rows.Scan(&h.ID, &h.ConversationID, &kind, &u, &a, &s,
			&h.Body, &h.ReplyToID, &h.CreatedAt, &h.EditedAt,
			&h.ConversationType, &title); err != nil {
			return nil, apperr.Persistence(err, "scan search hit")
		}
		sender, err := identity.FromSlots(kind, u, a, s)
		if err != nil {
			return nil, err
		}
		h.Sender = sender
		h.ConversationTitle = title.String
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
