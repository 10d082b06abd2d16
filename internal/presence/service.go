package presence

import (
	"context"
	"time"

	"community-chat/internal/apperr"
	"community-chat/internal/identity"
)

const (
	// TypingTTL is how long a typing indicator stays live without a
	// refresh before it is treated as absent.
	TypingTTL = 10 * time.Second

	// OfflineAfter is how long after the last activity a stored status
	// reads back as offline.
	OfflineAfter = 5 * time.Minute
)

// Store holds the ephemeral state. Implemented over Redis in production
// and over maps for dev/tests; decay is the service's job, not the
// store's, so both behave identically.
type Store interface {
	UpsertTyping(ctx context.Context, conversationID int, p identity.Participant, at time.Time) error
	DeleteTyping(ctx context.Context, conversationID int, p identity.Participant) error
	Typing(ctx context.Context, conversationID int) ([]TypingRow, error)
	PurgeTyping(ctx context.Context, conversationID int, olderThan time.Time) error

	UpsertPresence(ctx context.Context, rec Record) error
	GetPresence(ctx context.Context, p identity.Participant) (Record, error)
}

// Memberships gates typing signals the same way message operations are
// gated.
type Memberships interface {
	IsMember(ctx context.Context, conversationID int, p identity.Participant) (bool, error)
}

// Resolver turns typing participants into display names.
type Resolver interface {
	DisplayName(ctx context.Context, p identity.Participant) (string, error)
}

type Service struct {
	store    Store
	members  Memberships
	resolver Resolver
	now      func() time.Time
}

func NewService(store Store, members Memberships, resolver Resolver) *Service {
	return &Service{
		store:    store,
		members:  members,
		resolver: resolver,
		now:      time.Now,
	}
}

// SetTyping upserts the caller's typing indicator, refreshing the
// timestamp if one is already live. Last writer wins.
func (s *Service) SetTyping(ctx context.Context, conversationID int, p identity.Participant) error {
	member, err := s.members.IsMember(ctx, conversationID, p)
	if err != nil {
		return err
	}
	if !member {
		return apperr.ErrNotAuthorized
	}
	return s.store.UpsertTyping(ctx, conversationID, p, s.now())
}

// ClearTyping removes the caller's indicator; clearing an absent one is a
// no-op.
func (s *Service) ClearTyping(ctx context.Context, conversationID int, p identity.Participant) error {
	member, err := s.members.IsMember(ctx, conversationID, p)
	if err != nil {
		return err
	}
	if !member {
		return apperr.ErrNotAuthorized
	}
	return s.store.DeleteTyping(ctx, conversationID, p)
}

// WhoIsTyping purges stale rows, then returns who is still typing with
// display names. Purge-on-read plus the staleness filter means no
// background sweeper is needed for correctness.
func (s *Service) WhoIsTyping(ctx context.Context, conversationID int, requester identity.Participant) ([]Typist, error) {
	member, err := s.members.IsMember(ctx, conversationID, requester)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, apperr.ErrNotAuthorized
	}

	cutoff := s.now().Add(-TypingTTL)
	if err := s.store.PurgeTyping(ctx, conversationID, cutoff); err != nil {
		return nil, err
	}

	rows, err := s.store.Typing(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	typists := make([]Typist, 0, len(rows))
	for _, row := range rows {
		// The purge and this read are not atomic; filter again.
		if row.StartedAt.Before(cutoff) {
			continue
		}
		name, err := s.resolver.DisplayName(ctx, row.Participant)
		if err != nil {
			name = row.Participant.String()
		}
		typists = append(typists, Typist{Participant: row.Participant, DisplayName: name})
	}
	return typists, nil
}

// SetPresence upserts the participant's status with the current time.
func (s *Service) SetPresence(ctx context.Context, p identity.Participant, status Status) error {
	if !status.Valid() {
		return apperr.Validationf("unknown presence status %q", status)
	}
	return s.store.UpsertPresence(ctx, Record{Participant: p, Status: status, LastSeen: s.now()})
}

// GetPresence reads the stored status, overriding it to offline when the
// last activity is older than the threshold. The override is derived at
// read time; storage is never mutated by a read.
func (s *Service) GetPresence(ctx context.Context, p identity.Participant) (Record, error) {
	rec, err := s.store.GetPresence(ctx, p)
	if apperr.IsNotFound(err) {
		return Record{Participant: p, Status: StatusOffline}, nil
	}
	if err != nil {
		return Record{}, err
	}
	if s.now().Sub(rec.LastSeen) > OfflineAfter {
		rec.Status = StatusOffline
	}
	return rec, nil
}
