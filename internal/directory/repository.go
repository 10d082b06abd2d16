package directory

import (
	"context"
	"database/sql"
	"time"

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

// CreateConversation persists a conversation and its memberships in one
// transaction. For direct conversations directKey carries the canonical
// pair key; a conflict on it means another caller won the race, in which
// case the winner's conversation is returned with inserted = false.
func (r *Repository) CreateConversation(ctx context.Context, conv *Conversation, directKey string, members []identity.Participant) (*Conversation, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, apperr.Persistence(err, "begin create conversation")
	}
	defer tx.Rollback()

	key := sql.NullString{String: directKey, Valid: directKey != ""}
	cu, ca, cm := conv.Creator.Slots()

	var title sql.NullString
	if conv.Title != "" {
		title = sql.NullString{String: conv.Title, Valid: true}
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO conversations (type, title, team_id, exercise_id, direct_key,
			creator_kind, creator_user_id, creator_admin_id, creator_mentor_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (direct_key) WHERE direct_key IS NOT NULL DO NOTHING
		RETURNING id, created_at, last_activity_at`,
		conv.Type, title, conv.TeamID, conv.ExerciseID, key,
		conv.Creator.Kind, cu, ca, cm,
	).Scan(&conv.ID, &conv.CreatedAt, &conv.LastActivityAt)

	if errors.Is(err, sql.ErrNoRows) {
		// Lost the race: hand back the winner's thread.
		existing, ferr := r.FindDirect(ctx, directKey)
		if ferr != nil {
			return nil, false, ferr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, apperr.Persistence(err, "insert conversation")
	}

	for _, m := range members {
		u, a, mn := m.Slots()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO participants (conversation_id, kind, user_id, admin_id, mentor_id)
			VALUES ($1, $2, $3, $4, $5)`,
			conv.ID, m.Kind, u, a, mn)
		if err != nil {
			return nil, false, apperr.Persistence(err, "insert membership")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, apperr.Persistence(err, "commit create conversation")
	}
	return conv, true, nil
}

// FindDirect looks up an existing direct conversation by its pair key.
func (r *Repository) FindDirect(ctx context.Context, directKey string) (*Conversation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, type, title, team_id, exercise_id,
		       creator_kind, creator_user_id, creator_admin_id, creator_mentor_id,
		       created_at, last_activity_at
		FROM conversations WHERE direct_key = $1`, directKey)
	return scanConversation(row)
}

func (r *Repository) GetConversation(ctx context.Context, id int) (*Conversation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, type, title, team_id, exercise_id,
		       creator_kind, creator_user_id, creator_admin_id, creator_mentor_id,
		       created_at, last_activity_at
		FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

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

func (r *Repository) Members(ctx context.Context, conversationID int) ([]Membership, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT kind, user_id, admin_id, mentor_id, joined_at
		FROM participants WHERE conversation_id = $1
		ORDER BY joined_at, kind`, conversationID)
	if err != nil {
		return nil, apperr.Persistence(err, "list members")
	}
	defer rows.Close()

	var members []Membership
	for rows.Next() {
		var (
			kind    string
			u, a, m sql.NullInt64
			joined  time.Time
		)
		if err := rows.Scan(&kind, &u, &a, &m, &joined); err != nil {
			return nil, apperr.Persistence(err, "scan member")
		}
		p, err := identity.FromSlots(kind, u, a, m)
		if err != nil {
			return nil, err
		}
		members = append(members, Membership{Participant: p, JoinedAt: joined})
	}
	return members, rows.Err()
}

// ListForParticipant returns the participant's conversations newest
// activity first, each with its latest non-deleted message as a preview.
func (r *Repository) ListForParticipant(ctx context.Context, p identity.Participant, limit, offset int) ([]Preview, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.type, c.title, c.team_id, c.exercise_id,
		       c.creator_kind, c.creator_user_id, c.creator_admin_id, c.creator_mentor_id,
		       c.created_at, c.last_activity_at,
		       lm.body, lm.created_at
		FROM conversations c
		JOIN participants p ON p.conversation_id = c.id
		LEFT JOIN LATERAL (
			SELECT m.body, m.created_at
			FROM messages m
			WHERE m.conversation_id = c.id AND m.deleted_at IS NULL
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT 1
		) lm ON TRUE
		WHERE p.kind = $1 AND COALESCE(p.user_id, p.admin_id, p.mentor_id) = $2
		ORDER BY c.last_activity_at DESC, c.id DESC
		LIMIT $3 OFFSET $4`,
		p.Kind, p.ID, limit, offset)
	if err != nil {
		return nil, apperr.Persistence(err, "list conversations")
	}
	defer rows.Close()

	var previews []Preview
	for rows.Next() {
		var (
			pv       Preview
			title    sql.NullString
			ck       string
			cu, ca   sql.NullInt64
			cm       sql.NullInt64
			lastBody sql.NullString
			lastAt   sql.NullTime
		)
		if err := rows.Scan(&pv.ID, &pv.Type, &title, &pv.TeamID, &pv.ExerciseID,
			&ck, &cu, &ca, &cm, &pv.CreatedAt, &pv.LastActivityAt,
			&lastBody, &lastAt); err != nil {
			return nil, apperr.Persistence(err, "scan conversation")
		}
		pv.Title = title.String
		creator, err := identity.FromSlots(ck, cu, ca, cm)
		if err != nil {
			return nil, err
		}
		pv.Creator = creator
		pv.LastMessage = lastBody.String
		if lastAt.Valid {
			t := lastAt.Time
			pv.LastMessageAt = &t
		}
		previews = append(previews, pv)
	}
	return previews, rows.Err()
}

func scanConversation(row *sql.Row) (*Conversation, error) {
	var (
		c      Conversation
		title  sql.NullString
		ck     string
		cu, ca sql.NullInt64
		cm     sql.NullInt64
	)
	err := row.Scan(&c.ID, &c.Type, &title, &c.TeamID, &c.ExerciseID,
		&ck, &cu, &ca, &cm, &c.CreatedAt, &c.LastActivityAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Persistence(err, "scan conversation")
	}
	c.Title = title.String
	creator, err := identity.FromSlots(ck, cu, ca, cm)
	if err != nil {
		return nil, err
	}
	c.Creator = creator
	return &c, nil
}
