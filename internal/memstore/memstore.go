// Package memstore is the Postgres-free implementation of every engine
// store interface, backed by maps under one mutex. It serves two callers:
// the dev mode (`DB_DSN` unset) and the package tests, which need the
// exact engine semantics without a database.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"community-chat/internal/apperr"
	"community-chat/internal/directory"
	"community-chat/internal/identity"
	"community-chat/internal/msglog"
	"community-chat/internal/notify"
	"community-chat/internal/people"

	"github.com/pkg/errors"
)

type receiptKey struct {
	messageID int
	reader    identity.Participant
}

type Store struct {
	mu sync.Mutex

	nextAccountID map[identity.Kind]int
	accounts      map[identity.Participant]people.Account

	nextConversationID int
	conversations      map[int]directory.Conversation
	directKeys         map[string]int
	memberships        map[int][]directory.Membership

	nextMessageID  int
	messages       map[int]msglog.Message
	byConversation map[int][]int

	receipts map[receiptKey]time.Time

	nextNotificationID int
	notifications      []notify.Notification
}

func New() *Store {
	return &Store{
		nextAccountID:  make(map[identity.Kind]int),
		accounts:       make(map[identity.Participant]people.Account),
		conversations:  make(map[int]directory.Conversation),
		directKeys:     make(map[string]int),
		memberships:    make(map[int][]directory.Membership),
		messages:       make(map[int]msglog.Message),
		byConversation: make(map[int][]int),
		receipts:       make(map[receiptKey]time.Time),
	}
}

// ---- people.Store ----

func (s *Store) CreateAccount(_ context.Context, a *people.Account) (*people.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if existing.Participant.Kind == a.Participant.Kind && existing.Username == a.Username {
			return nil, errors.Wrapf(apperr.ErrValidation, "username %q is taken", a.Username)
		}
	}

	s.nextAccountID[a.Participant.Kind]++
	a.Participant.ID = s.nextAccountID[a.Participant.Kind]
	s.accounts[a.Participant] = *a
	return a, nil
}

func (s *Store) GetByUsername(_ context.Context, kind identity.Kind, username string) (*people.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Participant.Kind == kind && a.Username == username {
			out := a
			return &out, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (s *Store) DisplayName(_ context.Context, p identity.Participant) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[p]; ok {
		return a.DisplayName, nil
	}
	return p.String(), nil
}

// ---- directory.Store ----

func (s *Store) CreateConversation(_ context.Context, conv *directory.Conversation, directKey string, members []identity.Participant) (*directory.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if directKey != "" {
		if id, ok := s.directKeys[directKey]; ok {
			existing := s.conversations[id]
			return &existing, false, nil
		}
	}

	s.nextConversationID++
	now := time.Now()
	conv.ID = s.nextConversationID
	conv.CreatedAt = now
	conv.LastActivityAt = now
	s.conversations[conv.ID] = *conv
	if directKey != "" {
		s.directKeys[directKey] = conv.ID
	}
	for _, m := range members {
		s.memberships[conv.ID] = append(s.memberships[conv.ID], directory.Membership{
			Participant: m,
			JoinedAt:    now,
		})
	}
	return conv, true, nil
}

func (s *Store) FindDirect(_ context.Context, directKey string) (*directory.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.directKeys[directKey]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	conv := s.conversations[id]
	return &conv, nil
}

func (s *Store) GetConversation(_ context.Context, id int) (*directory.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &conv, nil
}

func (s *Store) IsMember(_ context.Context, conversationID int, p identity.Participant) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isMemberLocked(conversationID, p), nil
}

func (s *Store) isMemberLocked(conversationID int, p identity.Participant) bool {
	for _, m := range s.memberships[conversationID] {
		if m.Participant.Equal(p) {
			return true
		}
	}
	return false
}

func (s *Store) Members(_ context.Context, conversationID int) ([]directory.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]directory.Membership(nil), s.memberships[conversationID]...), nil
}

func (s *Store) ListForParticipant(_ context.Context, p identity.Participant, limit, offset int) ([]directory.Preview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var previews []directory.Preview
	for id, conv := range s.conversations {
		if !s.isMemberLocked(id, p) {
			continue
		}
		pv := directory.Preview{Conversation: conv}
		if last, ok := s.lastMessageLocked(id); ok {
			pv.LastMessage = last.Body
			at := last.CreatedAt
			pv.LastMessageAt = &at
		}
		previews = append(previews, pv)
	}

	sort.Slice(previews, func(i, j int) bool {
		if !previews[i].LastActivityAt.Equal(previews[j].LastActivityAt) {
			return previews[i].LastActivityAt.After(previews[j].LastActivityAt)
		}
		return previews[i].ID > previews[j].ID
	})

	if offset >= len(previews) {
		return nil, nil
	}
	previews = previews[offset:]
	if limit > 0 && len(previews) > limit {
		previews = previews[:limit]
	}
	return previews, nil
}

func (s *Store) lastMessageLocked(conversationID int) (msglog.Message, bool) {
	ids := s.byConversation[conversationID]
	for i := len(ids) - 1; i >= 0; i-- {
		m := s.messages[ids[i]]
		if m.DeletedAt == nil {
			return m, true
		}
	}
	return msglog.Message{}, false
}

// ---- msglog.Store ----

func (s *Store) InsertMessage(_ context.Context, m *msglog.Message) (*msglog.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[m.ConversationID]; !ok {
		return nil, apperr.ErrNotFound
	}

	s.nextMessageID++
	m.ID = s.nextMessageID
	m.CreatedAt = time.Now()
	s.messages[m.ID] = *m
	s.byConversation[m.ConversationID] = append(s.byConversation[m.ConversationID], m.ID)

	conv := s.conversations[m.ConversationID]
	conv.LastActivityAt = m.CreatedAt
	s.conversations[m.ConversationID] = conv
	return m, nil
}

func (s *Store) GetMessage(_ context.Context, id int) (*msglog.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &m, nil
}

func (s *Store) Page(_ context.Context, conversationID, limit, offset int) ([]msglog.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var page []msglog.Message
	for _, id := range s.byConversation[conversationID] {
		m := s.messages[id]
		if m.DeletedAt == nil {
			page = append(page, m)
		}
	}
	sort.Slice(page, func(i, j int) bool {
		if !page[i].CreatedAt.Equal(page[j].CreatedAt) {
			return page[i].CreatedAt.After(page[j].CreatedAt)
		}
		return page[i].ID > page[j].ID
	})

	if offset >= len(page) {
		return nil, nil
	}
	page = page[offset:]
	if limit > 0 && len(page) > limit {
		page = page[:limit]
	}
	return page, nil
}

func (s *Store) MarkEdited(_ context.Context, id int, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return apperr.ErrNotFound
	}
	now := time.Now()
	m.Body = body
	m.EditedAt = &now
	s.messages[id] = m
	return nil
}

func (s *Store) MarkDeleted(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return apperr.ErrNotFound
	}
	if m.DeletedAt == nil {
		now := time.Now()
		m.DeletedAt = &now
		s.messages[id] = m
	}
	return nil
}

func (s *Store) Search(_ context.Context, requester identity.Participant, query string, limit int) ([]msglog.SearchHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(query)
	var hits []msglog.SearchHit
	for id, conv := range s.conversations {
		if !s.isMemberLocked(id, requester) {
			continue
		}
		for _, msgID := range s.byConversation[id] {
			m := s.messages[msgID]
			if m.DeletedAt != nil || !strings.Contains(strings.ToLower(m.Body), needle) {
				continue
			}
			hits = append(hits, msglog.SearchHit{
				Message:           m,
				ConversationType:  string(conv.Type),
				ConversationTitle: conv.Title,
			})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if !hits[i].CreatedAt.Equal(hits[j].CreatedAt) {
			return hits[i].CreatedAt.After(hits[j].CreatedAt)
		}
		return hits[i].ID > hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// ---- receipt.Store ----

func (s *Store) InsertReceipts(_ context.Context, conversationID int, reader identity.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, id := range s.byConversation[conversationID] {
		m := s.messages[id]
		if m.DeletedAt != nil || m.Sender.Equal(reader) {
			continue
		}
		key := receiptKey{messageID: id, reader: reader}
		if _, ok := s.receipts[key]; !ok {
			s.receipts[key] = now
		}
	}
	return nil
}

func (s *Store) InsertMessageReceipts(_ context.Context, reader identity.Participant, messageIDs []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, id := range messageIDs {
		m, ok := s.messages[id]
		if !ok || m.DeletedAt != nil || m.Sender.Equal(reader) {
			continue
		}
		key := receiptKey{messageID: id, reader: reader}
		if _, ok := s.receipts[key]; !ok {
			s.receipts[key] = now
		}
	}
	return nil
}

func (s *Store) UnreadCount(_ context.Context, conversationID int, reader identity.Participant) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unreadLocked(conversationID, reader), nil
}

func (s *Store) TotalUnread(_ context.Context, reader identity.Participant) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for id := range s.conversations {
		if s.isMemberLocked(id, reader) {
			total += s.unreadLocked(id, reader)
		}
	}
	return total, nil
}

func (s *Store) unreadLocked(conversationID int, reader identity.Participant) int {
	count := 0
	for _, id := range s.byConversation[conversationID] {
		m := s.messages[id]
		if m.DeletedAt != nil || m.Sender.Equal(reader) {
			continue
		}
		if _, ok := s.receipts[receiptKey{messageID: id, reader: reader}]; !ok {
			count++
		}
	}
	return count
}

// ---- notify.Store ----

func (s *Store) InsertNotification(_ context.Context, n *notify.Notification) (*notify.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextNotificationID++
	n.ID = s.nextNotificationID
	n.CreatedAt = time.Now()
	s.notifications = append(s.notifications, *n)
	return n, nil
}

func (s *Store) ListForRecipient(_ context.Context, p identity.Participant, limit, offset int) ([]notify.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []notify.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if s.notifications[i].Recipient.Equal(p) {
			out = append(out, s.notifications[i])
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
