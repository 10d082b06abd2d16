package people

import (
	"context"
	"database/sql"
	"fmt"

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

// tableFor maps an identity space to its table. Kinds are validated before
// we get here, so an unknown kind is a programming error.
func tableFor(kind identity.Kind) (string, error) {
	switch kind {
	case identity.KindUser:
		return "users", nil
	case identity.KindAdmin:
		return "admins", nil
	case identity.KindMentor:
		return "mentors", nil
	}
	return "", errors.Errorf("people: unknown kind %q", kind)
}

func (r *Repository) CreateAccount(ctx context.Context, a *Account) (*Account, error) {
	table, err := tableFor(a.Participant.Kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (username, password, display_name) VALUES ($1, $2, $3) RETURNING id", table)
	var id int
	if err := r.db.QueryRowContext(ctx, query, a.Username, a.Password, a.DisplayName).Scan(&id); err != nil {
		return nil, apperr.Persistence(err, "create account")
	}
	a.Participant.ID = id
	return a, nil
}

func (r *Repository) GetByUsername(ctx context.Context, kind identity.Kind, username string) (*Account, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	a := &Account{Participant: identity.Participant{Kind: kind}}
	query := fmt.Sprintf("SELECT id, username, password, display_name FROM %s WHERE username = $1", table)
	err = r.db.QueryRowContext(ctx, query, username).
		Scan(&a.Participant.ID, &a.Username, &a.Password, &a.DisplayName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Persistence(err, "get account")
	}
	return a, nil
}

// DisplayName resolves a participant to their display name. Unknown ids
// fall back to the canonical "kind:id" form rather than failing a whole
// summary over one dangling reference.
func (r *Repository) DisplayName(ctx context.Context, p identity.Participant) (string, error) {
	table, err := tableFor(p.Kind)
	if err != nil {
		return "", err
	}

	var name string
	query := fmt.Sprintf("SELECT display_name FROM %s WHERE id = $1", table)
	err = r.db.QueryRowContext(ctx, query, p.ID).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p.String(), nil
		}
		return "", apperr.Persistence(err, "resolve display name")
	}
	return name, nil
}
