package msglog_test

import (
	"context"
	"testing"

	"community-chat/internal/apperr"
	"community-chat/internal/directory"
	"community-chat/internal/identity"
	"community-chat/internal/memstore"
	"community-chat/internal/msglog"
	"community-chat/internal/people"
	"community-chat/internal/receipt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	sent []*msglog.Message
}

func (r *recordingNotifier) MessageSent(_ context.Context, _ int, _ identity.Participant, m *msglog.Message) {
	r.sent = append(r.sent, m)
}

type fixture struct {
	store    *memstore.Store
	messages *msglog.Service
	receipts *receipt.Service
	notified *recordingNotifier

	alice identity.Participant // user
	bob   identity.Participant // mentor
	eve   identity.Participant // user, not a member
	conv  int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()

	f := &fixture{store: store, notified: &recordingNotifier{}}
	for _, acc := range []struct {
		kind identity.Kind
		name string
		dst  *identity.Participant
	}{
		{identity.KindUser, "alice", &f.alice},
		{identity.KindMentor, "bob", &f.bob},
		{identity.KindUser, "eve", &f.eve},
	} {
		a, err := store.CreateAccount(ctx, &people.Account{
			Participant: identity.Participant{Kind: acc.kind},
			Username:    acc.name,
			Password:    "x",
			DisplayName: acc.name,
		})
		require.NoError(t, err)
		*acc.dst = a.Participant
	}

	dir := directory.NewService(store, store, store)
	res, err := dir.Create(ctx, f.alice, &directory.CreateRequest{
		Type:         directory.TypeDirect,
		Participants: []identity.Participant{f.alice, f.bob},
	})
	require.NoError(t, err)
	f.conv = res.Conversation.ID

	f.receipts = receipt.NewService(store)
	f.messages = msglog.NewService(store, dir, f.receipts, store, nil, f.notified)
	return f
}

func (f *fixture) send(t *testing.T, sender identity.Participant, body string) *msglog.Message {
	t.Helper()
	m, err := f.messages.Send(context.Background(), sender, &msglog.SendRequest{
		ConversationID: f.conv,
		Body:           body,
	})
	require.NoError(t, err)
	return m
}

func TestSendRequiresMembership(t *testing.T) {
	f := newFixture(t)
	_, err := f.messages.Send(context.Background(), f.eve, &msglog.SendRequest{
		ConversationID: f.conv,
		Body:           "let me in",
	})
	assert.True(t, apperr.IsNotAuthorized(err))
	assert.Empty(t, f.notified.sent, "no fan-out for rejected sends")

	// Nothing attributed to the outsider exists in the log.
	page, err := f.messages.Page(context.Background(), f.alice, f.conv, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestSendRejectsBlankBody(t *testing.T) {
	f := newFixture(t)
	for _, body := range []string{"", "   ", "\n\t"} {
		_, err := f.messages.Send(context.Background(), f.alice, &msglog.SendRequest{
			ConversationID: f.conv,
			Body:           body,
		})
		assert.True(t, apperr.IsValidation(err), "body %q", body)
	}
}

func TestSendTrimsAndNotifies(t *testing.T) {
	f := newFixture(t)
	m := f.send(t, f.alice, "  Hello  ")
	assert.Equal(t, "Hello", m.Body)
	assert.NotZero(t, m.ID)
	require.Len(t, f.notified.sent, 1)
	assert.Equal(t, m.ID, f.notified.sent[0].ID)
}

func TestPageRequiresMembership(t *testing.T) {
	f := newFixture(t)
	f.send(t, f.alice, "Hello")
	_, err := f.messages.Page(context.Background(), f.eve, f.conv, 10, 0)
	assert.True(t, apperr.IsNotAuthorized(err))
}

func TestPageReturnsOldestFirstAndMarksRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.send(t, f.alice, "one")
	f.send(t, f.bob, "two")
	f.send(t, f.alice, "three")

	count, err := f.receipts.UnreadCount(ctx, f.conv, f.bob)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	page, err := f.messages.Page(ctx, f.bob, f.conv, 10, 0)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, []string{"one", "two", "three"}, bodies(page))
	assert.Equal(t, "alice", page[0].SenderName)

	// Fetching implicitly acknowledged everything.
	count, err = f.receipts.UnreadCount(ctx, f.conv, f.bob)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDeepPageAcknowledgesOnlyItsWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, body := range []string{"one", "two", "three", "four", "five"} {
		f.send(t, f.alice, body)
	}

	// Fetching the two oldest messages must not receipt the three newer
	// ones bob never received.
	page, err := f.messages.Page(ctx, f.bob, f.conv, 2, 3)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, []string{"one", "two"}, bodies(page))

	count, err := f.receipts.UnreadCount(ctx, f.conv, f.bob)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestPagePaginationReconstructsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	want := make([]string, 0, 7)
	for _, body := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		f.send(t, f.alice, body)
		want = append(want, body)
	}

	// Offsets count back from the newest message; stitching the windows
	// newest-to-oldest must rebuild the full history with no duplicates
	// or gaps.
	var got []string
	for offset := 0; ; offset += 3 {
		page, err := f.messages.Page(ctx, f.bob, f.conv, 3, offset)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		got = append(bodies(page), got...)
	}
	assert.Equal(t, want, got)

	pageAll, err := f.messages.Page(ctx, f.bob, f.conv, 50, 0)
	require.NoError(t, err)
	for i := 1; i < len(pageAll); i++ {
		prev, cur := pageAll[i-1], pageAll[i]
		less := prev.CreatedAt.Before(cur.CreatedAt) ||
			(prev.CreatedAt.Equal(cur.CreatedAt) && prev.ID < cur.ID)
		assert.True(t, less, "ordering violated at %d", i)
	}
}

func TestEditOnlyBySender(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.send(t, f.alice, "Hello")

	_, err := f.messages.Edit(ctx, f.bob, m.ID, "hijacked")
	assert.True(t, apperr.IsNotFound(err))

	edited, err := f.messages.Edit(ctx, f.alice, m.ID, "Hello again")
	require.NoError(t, err)
	assert.Equal(t, "Hello again", edited.Body)
	assert.NotNil(t, edited.EditedAt)
}

func TestForeignMessageLooksMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.send(t, f.alice, "Hello")
	missingID := m.ID + 1000

	// Someone else's message and a nonexistent id must be
	// indistinguishable to a probing caller, on both mutation paths.
	_, existingErr := f.messages.Edit(ctx, f.eve, m.ID, "probe")
	_, missingErr := f.messages.Edit(ctx, f.eve, missingID, "probe")
	assert.True(t, apperr.IsNotFound(existingErr))
	assert.True(t, apperr.IsNotFound(missingErr))
	assert.Equal(t, apperr.HTTPStatus(existingErr), apperr.HTTPStatus(missingErr))
	assert.Equal(t, apperr.Message(existingErr), apperr.Message(missingErr))

	existingErr = f.messages.Delete(ctx, f.eve, m.ID)
	missingErr = f.messages.Delete(ctx, f.eve, missingID)
	assert.True(t, apperr.IsNotFound(existingErr))
	assert.True(t, apperr.IsNotFound(missingErr))
	assert.Equal(t, apperr.HTTPStatus(existingErr), apperr.HTTPStatus(missingErr))
	assert.Equal(t, apperr.Message(existingErr), apperr.Message(missingErr))

	// And the message is untouched.
	page, err := f.messages.Page(ctx, f.alice, f.conv, 10, 0)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "Hello", page[0].Body)
}

func TestEditRejectsBlankBody(t *testing.T) {
	f := newFixture(t)
	m := f.send(t, f.alice, "Hello")
	_, err := f.messages.Edit(context.Background(), f.alice, m.ID, "   ")
	assert.True(t, apperr.IsValidation(err))
}

func TestDeleteOnlyBySender(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.send(t, f.alice, "Hello")

	err := f.messages.Delete(ctx, f.bob, m.ID)
	assert.True(t, apperr.IsNotFound(err))

	require.NoError(t, f.messages.Delete(ctx, f.alice, m.ID))
	require.NoError(t, f.messages.Delete(ctx, f.alice, m.ID), "second delete is a no-op")

	page, err := f.messages.Page(ctx, f.bob, f.conv, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, page, "soft-deleted messages drop out of reads")
}

func TestDeletedMessagesLeaveUnreadCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.send(t, f.alice, "oops")
	f.send(t, f.alice, "meant this")

	require.NoError(t, f.messages.Delete(ctx, f.alice, m.ID))

	count, err := f.receipts.UnreadCount(ctx, f.conv, f.bob)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSearchScopedToOwnConversations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.send(t, f.alice, "the quick brown fox")
	deleted := f.send(t, f.alice, "quick, delete this")
	require.NoError(t, f.messages.Delete(ctx, f.alice, deleted.ID))

	hits, err := f.messages.Search(ctx, f.bob, "QUICK", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1, "deleted messages are excluded")
	assert.Equal(t, "the quick brown fox", hits[0].Body)
	assert.Equal(t, "direct", hits[0].ConversationType)
	assert.Equal(t, "alice", hits[0].SenderName)

	// Non-members see nothing, not an error that leaks existence.
	hits, err = f.messages.Search(ctx, f.eve, "quick", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	f := newFixture(t)
	_, err := f.messages.Search(context.Background(), f.alice, "   ", 10)
	assert.True(t, apperr.IsValidation(err))
}

func bodies(messages []msglog.Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Body)
	}
	return out
}
