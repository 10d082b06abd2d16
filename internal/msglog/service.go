package msglog

import (
	"context"
	"strings"

	"community-chat/internal/apperr"
	"community-chat/internal/identity"

	"github.com/charmbracelet/log"
)

// Store is the persistence surface of the message log.
type Store interface {
	InsertMessage(ctx context.Context, m *Message) (*Message, error)
	GetMessage(ctx context.Context, id int) (*Message, error)
	Page(ctx context.Context, conversationID, limit, offset int) ([]Message, error)
	MarkEdited(ctx context.Context, id int, body string) error
	MarkDeleted(ctx context.Context, id int) error
	Search(ctx context.Context, requester identity.Participant, query string, limit int) ([]SearchHit, error)
}

// Memberships is the directory's authorization gate.
type Memberships interface {
	IsMember(ctx context.Context, conversationID int, p identity.Participant) (bool, error)
}

// ReadMarker is the receipt tracker's implicit acknowledgment hook:
// fetching a page marks exactly the returned messages read for the
// requester, not the whole conversation.
type ReadMarker interface {
	MarkMessagesRead(ctx context.Context, reader identity.Participant, messageIDs []int) error
}

// Notifier receives successful sends. Implementations are best-effort and
// must swallow their own failures; the send has already committed.
type Notifier interface {
	MessageSent(ctx context.Context, conversationID int, sender identity.Participant, m *Message)
}

// Resolver turns a participant into a display name for page/search output.
type Resolver interface {
	DisplayName(ctx context.Context, p identity.Participant) (string, error)
}

type Service struct {
	store     Store
	members   Memberships
	reads     ReadMarker
	resolver  Resolver
	notifiers []Notifier
	logger    *log.Logger
}

func NewService(store Store, members Memberships, reads ReadMarker, resolver Resolver, logger *log.Logger, notifiers ...Notifier) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:     store,
		members:   members,
		reads:     reads,
		resolver:  resolver,
		notifiers: notifiers,
		logger:    logger,
	}
}

const (
	DefaultPageLimit   = 50
	MaxPageLimit       = 200
	DefaultSearchLimit = 25
)

// Send appends a message. The membership gate runs first so a non-member
// can never attribute a message to themselves in a thread they cannot see.
func (s *Service) Send(ctx context.Context, sender identity.Participant, req *SendRequest) (*Message, error) {
	member, err := s.members.IsMember(ctx, req.ConversationID, sender)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, apperr.ErrNotAuthorized
	}

	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, apperr.Validationf("message cannot be empty")
	}

	m := &Message{
		ConversationID: req.ConversationID,
		Sender:         sender,
		Body:           body,
		ReplyToID:      req.ReplyToID,
	}
	m, err = s.store.InsertMessage(ctx, m)
	if err != nil {
		return nil, err
	}

	// Fan-out happens after the commit and cannot fail the send.
	for _, n := range s.notifiers {
		n.MessageSent(ctx, req.ConversationID, sender, m)
	}
	return m, nil
}

// Page returns a window of the conversation's history oldest-first.
// Fetching implies acknowledgment for the returned window only: a deep
// page never receipts messages the caller did not receive.
func (s *Service) Page(ctx context.Context, requester identity.Participant, conversationID, limit, offset int) ([]Message, error) {
	member, err := s.members.IsMember(ctx, conversationID, requester)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, apperr.ErrNotAuthorized
	}

	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	messages, err := s.store.Page(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}

	// Storage order is newest-first; callers read oldest-first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	s.fillSenderNames(ctx, messages)

	if len(messages) > 0 {
		ids := make([]int, len(messages))
		for i := range messages {
			ids[i] = messages[i].ID
		}
		if err := s.reads.MarkMessagesRead(ctx, requester, ids); err != nil {
			s.logger.Warn("mark-read on fetch failed", "conversation", conversationID, "reader", requester, "err", err)
		}
	}
	return messages, nil
}

// Edit replaces a message body. Only the original sender may edit.
// Anyone else gets ErrNotFound, whether or not the id exists: a probing
// caller must not be able to tell a foreign message from a missing one.
func (s *Service) Edit(ctx context.Context, editor identity.Participant, messageID int, newBody string) (*Message, error) {
	m, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !m.Sender.Equal(editor) || m.DeletedAt != nil {
		return nil, apperr.ErrNotFound
	}

	newBody = strings.TrimSpace(newBody)
	if newBody == "" {
		return nil, apperr.Validationf("message cannot be empty")
	}

	if err := s.store.MarkEdited(ctx, messageID, newBody); err != nil {
		return nil, err
	}
	return s.store.GetMessage(ctx, messageID)
}

// Delete soft-deletes a message. Only the original sender may delete;
// deleting twice is a no-op. Non-owners get the same ErrNotFound a
// missing id gets, as in Edit.
func (s *Service) Delete(ctx context.Context, deleter identity.Participant, messageID int) error {
	m, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if !m.Sender.Equal(deleter) {
		return apperr.ErrNotFound
	}
	if m.DeletedAt != nil {
		return nil
	}
	return s.store.MarkDeleted(ctx, messageID)
}

// Search finds body substrings across the requester's conversations.
func (s *Service) Search(ctx context.Context, requester identity.Participant, query string, limit int) ([]SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validationf("search query cannot be empty")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	hits, err := s.store.Search(ctx, requester, query, limit)
	if err != nil {
		return nil, err
	}
	for i := range hits {
		name, err := s.resolver.DisplayName(ctx, hits[i].Sender)
		if err == nil {
			hits[i].SenderName = name
		}
	}
	return hits, nil
}

func (s *Service) fillSenderNames(ctx context.Context, messages []Message) {
	names := make(map[identity.Participant]string)
	for i := range messages {
		sender := messages[i].Sender
		name, ok := names[sender]
		if !ok {
			resolved, err := s.resolver.DisplayName(ctx, sender)
			if err != nil {
				continue
			}
			name = resolved
			names[sender] = name
		}
		messages[i].SenderName = name
	}
}
