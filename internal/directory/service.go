package directory

import (
	"context"

	"community-chat/internal/apperr"
	"community-chat/internal/identity"
)

// Store is the persistence surface the directory needs. Implemented by
// Repository (Postgres) and the memory store.
type Store interface {
	CreateConversation(ctx context.Context, conv *Conversation, directKey string, members []identity.Participant) (*Conversation, bool, error)
	FindDirect(ctx context.Context, directKey string) (*Conversation, error)
	GetConversation(ctx context.Context, id int) (*Conversation, error)
	IsMember(ctx context.Context, conversationID int, p identity.Participant) (bool, error)
	Members(ctx context.Context, conversationID int) ([]Membership, error)
	ListForParticipant(ctx context.Context, p identity.Participant, limit, offset int) ([]Preview, error)
}

// Resolver turns a participant into a display name.
type Resolver interface {
	DisplayName(ctx context.Context, p identity.Participant) (string, error)
}

// UnreadCounter is the read-receipt tracker's derivation, consumed per
// summary row.
type UnreadCounter interface {
	UnreadCount(ctx context.Context, conversationID int, reader identity.Participant) (int, error)
}

type Service struct {
	store    Store
	resolver Resolver
	unread   UnreadCounter
}

func NewService(store Store, resolver Resolver, unread UnreadCounter) *Service {
	return &Service{store: store, resolver: resolver, unread: unread}
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Create validates and persists a conversation. Direct pairs are
// idempotent: an existing thread between the same two participants is
// returned instead of a duplicate, whatever order the pair was given in.
func (s *Service) Create(ctx context.Context, creator identity.Participant, req *CreateRequest) (*CreateResult, error) {
	if !req.Type.Valid() {
		return nil, apperr.Validationf("unknown conversation type %q", req.Type)
	}
	if req.TeamID != nil && req.Type != TypeTeam {
		return nil, apperr.Validationf("team_id is only valid for team conversations")
	}
	if req.ExerciseID != nil && req.Type != TypeExercise {
		return nil, apperr.Validationf("exercise_id is only valid for exercise conversations")
	}

	members := identity.Dedup(req.Participants)
	for _, m := range members {
		if !m.Valid() {
			return nil, apperr.Validationf("invalid participant %q", m)
		}
	}
	if len(members) < 2 {
		return nil, apperr.Validationf("a conversation needs at least 2 participants")
	}

	var directKey string
	if req.Type == TypeDirect {
		if len(members) != 2 {
			return nil, apperr.Validationf("a direct conversation has exactly 2 participants")
		}
		directKey = identity.PairKey(members[0], members[1])

		// Lookup before create keeps the common path cheap; the unique
		// key on the pair still catches concurrent creators.
		if existing, err := s.store.FindDirect(ctx, directKey); err == nil {
			return &CreateResult{Conversation: existing, Existing: true}, nil
		} else if !apperr.IsNotFound(err) {
			return nil, err
		}
	}

	conv := &Conversation{
		Type:       req.Type,
		Title:      req.Title,
		TeamID:     req.TeamID,
		ExerciseID: req.ExerciseID,
		Creator:    creator,
	}
	conv, inserted, err := s.store.CreateConversation(ctx, conv, directKey, members)
	if err != nil {
		return nil, err
	}
	return &CreateResult{Conversation: conv, Existing: !inserted}, nil
}

// List builds the participant's conversation summaries, most recent
// activity first.
func (s *Service) List(ctx context.Context, p identity.Participant, limit, offset int) ([]Summary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	previews, err := s.store.ListForParticipant(ctx, p, limit, offset)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(previews))
	for _, pv := range previews {
		sum := Summary{
			Conversation:  pv.Conversation,
			LastMessage:   pv.LastMessage,
			LastMessageAt: pv.LastMessageAt,
			DisplayName:   pv.Title,
		}

		memberships, err := s.store.Members(ctx, pv.ID)
		if err != nil {
			return nil, err
		}
		for _, m := range memberships {
			name, err := s.resolver.DisplayName(ctx, m.Participant)
			if err != nil {
				return nil, err
			}
			sum.Members = append(sum.Members, Member{
				Participant: m.Participant,
				DisplayName: name,
				JoinedAt:    m.JoinedAt,
			})
			// Direct threads are labeled with the other side's name so
			// the caller needs no extra lookup.
			if pv.Type == TypeDirect && !m.Participant.Equal(p) {
				sum.DisplayName = name
			}
		}

		count, err := s.unread.UnreadCount(ctx, pv.ID, p)
		if err != nil {
			return nil, err
		}
		sum.UnreadCount = count

		summaries = append(summaries, sum)
	}
	return summaries, nil
}

// IsMember is the authorization gate every message/receipt/typing
// operation runs through before touching a conversation.
func (s *Service) IsMember(ctx context.Context, conversationID int, p identity.Participant) (bool, error) {
	return s.store.IsMember(ctx, conversationID, p)
}

// Participants returns the bare member identities of a conversation.
func (s *Service) Participants(ctx context.Context, conversationID int) ([]identity.Participant, error) {
	memberships, err := s.store.Members(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	ps := make([]identity.Participant, 0, len(memberships))
	for _, m := range memberships {
		ps = append(ps, m.Participant)
	}
	return ps, nil
}

// Get returns a conversation by id without an authorization check; callers
// that serve it to a participant must gate on IsMember themselves.
func (s *Service) Get(ctx context.Context, id int) (*Conversation, error) {
	return s.store.GetConversation(ctx, id)
}
