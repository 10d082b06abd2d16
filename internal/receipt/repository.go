package receipt

import (
	"context"
	"database/sql"

	"community-chat/internal/apperr"
	"community-chat/internal/identity"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertReceipts acknowledges every message in the conversation the reader
// has not yet receipted, excluding soft-deleted messages and the reader's
// own. ON CONFLICT DO NOTHING makes concurrent calls from two devices of
// the same reader collapse harmlessly.
func (r *Repository) InsertReceipts(ctx context.Context, conversationID int, reader identity.Participant) error {
	u, a, m := reader.Slots()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO read_receipts (message_id, reader_kind, reader_user_id, reader_admin_id, reader_mentor_id)
		SELECT msg.id, $2, $3, $4, $5
		FROM messages msg
		WHERE msg.conversation_id = $1
		  AND msg.deleted_at IS NULL
		  AND NOT (msg.sender_kind = $2
		           AND COALESCE(msg.sender_user_id, msg.sender_admin_id, msg.sender_mentor_id) = $6)
		ON CONFLICT DO NOTHING`,
		conversationID, reader.Kind, u, a, m, reader.ID)
	return apperr.Persistence(err, "insert receipts")
}

// InsertMessageReceipts acknowledges exactly the given messages for the
// reader, with the same exclusions and conflict tolerance as the
// conversation-wide variant.
func (r *Repository) InsertMessageReceipts(ctx context.Context, reader identity.Participant, messageIDs []int) error {
	if len(messageIDs) == 0 {
		return nil
	}
	ids := make([]int64, len(messageIDs))
	for i, id := range messageIDs {
		ids[i] = int64(id)
	}
	u, a, m := reader.Slots()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO read_receipts (message_id, reader_kind, reader_user_id, reader_admin_id, reader_mentor_id)
		SELECT msg.id, $1, $2, $3, $4
		FROM messages msg
		WHERE msg.id = ANY($5)
		  AND msg.deleted_at IS NULL
		  AND NOT (msg.sender_kind = $1
		           AND COALESCE(msg.sender_user_id, msg.sender_admin_id, msg.sender_mentor_id) = $6)
		ON CONFLICT DO NOTHING`,
		reader.Kind, u, a, m, ids, reader.ID)
	return apperr.Persistence(err, "insert message receipts")
}

// UnreadCount derives the count at query time: non-deleted messages not
// authored by the reader with no receipt from the reader. No stored
// counter, so there is nothing to drift under concurrent writers.
func (r *Repository) UnreadCount(ctx context.Context, conversationID int, reader identity.Participant) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages m
		WHERE m.conversation_id = $1
		  AND m.deleted_at IS NULL
		  AND NOT (m.sender_kind = $2
		           AND COALESCE(m.sender_user_id, m.sender_admin_id, m.sender_mentor_id) = $3)
		  AND NOT EXISTS (
			SELECT 1 FROM read_receipts r
			WHERE r.message_id = m.id AND r.reader_kind = $2
			  AND COALESCE(r.reader_user_id, r.reader_admin_id, r.reader_mentor_id) = $3
		  )`,
		conversationID, reader.Kind, reader.ID).Scan(&count)
	if err != nil {
		return 0, apperr.Persistence(err, "unread count")
	}
	return count, nil
}

// TotalUnread aggregates the same predicate over every conversation the
// reader belongs to.
func (r *Repository) TotalUnread(ctx context.Context, reader identity.Participant) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages m
		JOIN participants p ON p.conversation_id = m.conversation_id
		WHERE p.kind = $1 AND COALESCE(p.user_id, p.admin_id, p.mentor_id) = $2
		  AND m.deleted_at IS NULL
		  AND NOT (m.sender_kind = $1
		           AND COALESCE(m.sender_user_id, m.sender_admin_id, m.sender_mentor_id) = $2)
		  AND NOT EXISTS (
			SELECT 1 FROM read_receipts r
			WHERE r.message_id = m.id AND r.reader_kind = $1
			  AND COALESCE(r.reader_user_id, r.reader_admin_id, r.reader_mentor_id) = $2
		  )`,
		reader.Kind, reader.ID).Scan(&count)
	if err != nil {
		return 0, apperr.Persistence(err, "total unread")
	}
	return count, nil
}

// IsMember mirrors the directory's gate so the tracker can authorize
// explicit mark-read calls without a wiring cycle back into the directory.
func (r *Repository) IsMember(ctx context.Context, conversationID int, p identity.Participant) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM participants
			WHERE conversation_id = $1 AND kind = $2
			  AND COALESCE(user_id, admin_id, mentor_id) = $3
		)`, conversationID, p.Kind, p.ID).Scan(&exists)
	if err != nil {
		return false, apperr.Persistence(err, "membership check")
	}
	return exists, nil
}
