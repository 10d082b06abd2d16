package notify

import (
	"context"
	"database/sql"
	"time"

	"community-chat/internal/apperr"
	"community-chat/internal/identity"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) InsertNotification(ctx context.Context, n *Notification) (*Notification, error) {
	u, a, m := n.Recipient.Slots()
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO notifications (recipient_kind, recipient_user_id, recipient_admin_id, recipient_mentor_id,
			type, title, body, link, conversation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		n.Recipient.Kind, u, a, m, n.Type, n.Title, n.Body, n.Link, n.ConversationID,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return nil, apperr.Persistence(err, "insert notification")
	}
	return n, nil
}

func (r *Repository) ListForRecipient(ctx context.Context, p identity.Participant, limit, offset int) ([]Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, title, body, link, conversation_id, created_at
		FROM notifications
		WHERE recipient_kind = $1
		  AND COALESCE(recipient_user_id, recipient_admin_id, recipient_mentor_id) = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`,
		p.Kind, p.ID, limit, offset)
	if err != nil {
		return nil, apperr.Persistence(err, "list notifications")
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		n := Notification{Recipient: p}
		var (
			convID  sql.NullInt64
			created time.Time
		)
		if err := rows.Scan(&n.ID, &n.Type, &n.Title, &n.Body, &n.Link, &convID, &created); err != nil {
			return nil, apperr.Persistence(err, "scan notification")
		}
		if convID.Valid {
			id := int(convID.Int64)
			n.ConversationID = &id
		}
		n.CreatedAt = created
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
