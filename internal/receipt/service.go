package receipt

import (
	"context"

	"community-chat/internal/apperr"
	"community-chat/internal/identity"
)

// Store is the persistence surface of the tracker. IsMember rides along so
// explicit mark-read calls can be gated here without depending on the
// directory package.
type Store interface {
	InsertReceipts(ctx context.Context, conversationID int, reader identity.Participant) error
	InsertMessageReceipts(ctx context.Context, reader identity.Participant, messageIDs []int) error
	UnreadCount(ctx context.Context, conversationID int, reader identity.Participant) (int, error)
	TotalUnread(ctx context.Context, reader identity.Participant) (int, error)
	IsMember(ctx context.Context, conversationID int, p identity.Participant) (bool, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// MarkRead records receipts for everything the reader has not yet seen in
// the conversation. Idempotent: repeated calls are no-ops. Used implicitly
// by message fetches; callers of the implicit path have already passed the
// membership gate, so the gate here only rejects true outsiders.
func (s *Service) MarkRead(ctx context.Context, conversationID int, reader identity.Participant) error {
	member, err := s.store.IsMember(ctx, conversationID, reader)
	if err != nil {
		return err
	}
	if !member {
		return apperr.ErrNotAuthorized
	}
	return s.store.InsertReceipts(ctx, conversationID, reader)
}

// MarkMessagesRead records receipts for exactly the given messages, the
// acknowledgment shape a history fetch produces. Idempotent like MarkRead.
// No membership gate: the fetch path that calls this has already gated,
// and the store skips deleted messages and the reader's own.
func (s *Service) MarkMessagesRead(ctx context.Context, reader identity.Participant, messageIDs []int) error {
	if len(messageIDs) == 0 {
		return nil
	}
	return s.store.InsertMessageReceipts(ctx, reader, messageIDs)
}

// UnreadCount derives a single conversation's unread count for the reader.
func (s *Service) UnreadCount(ctx context.Context, conversationID int, reader identity.Participant) (int, error) {
	return s.store.UnreadCount(ctx, conversationID, reader)
}

// TotalUnread derives the reader's unread count across all their
// conversations.
func (s *Service) TotalUnread(ctx context.Context, reader identity.Participant) (int, error) {
	return s.store.TotalUnread(ctx, reader)
}
