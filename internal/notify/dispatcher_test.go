package notify_test

import (
	"context"
	"testing"

	"community-chat/internal/directory"
	"community-chat/internal/identity"
	"community-chat/internal/memstore"
	"community-chat/internal/msglog"
	"community-chat/internal/notify"
	"community-chat/internal/people"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T) (*memstore.Store, identity.Participant, identity.Participant, identity.Participant, int) {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()

	participants := make([]identity.Participant, 0, 3)
	for _, acc := range []struct {
		kind identity.Kind
		name string
	}{
		{identity.KindUser, "alice"},
		{identity.KindMentor, "bob"},
		{identity.KindAdmin, "root"},
	} {
		a, err := store.CreateAccount(ctx, &people.Account{
			Participant: identity.Participant{Kind: acc.kind},
			Username:    acc.name,
			Password:    "x",
			DisplayName: acc.name,
		})
		require.NoError(t, err)
		participants = append(participants, a.Participant)
	}

	dir := directory.NewService(store, store, store)
	res, err := dir.Create(ctx, participants[0], &directory.CreateRequest{
		Type:         directory.TypeTeam,
		Title:        "standup",
		Participants: participants,
	})
	require.NoError(t, err)
	return store, participants[0], participants[1], participants[2], res.Conversation.ID
}

func TestFanOutSkipsSender(t *testing.T) {
	store, alice, bob, admin, conv := seed(t)
	ctx := context.Background()

	dir := directory.NewService(store, store, store)
	d := notify.NewDispatcher(store, dir, store, nil)
	d.MessageSent(ctx, conv, alice, &msglog.Message{ID: 1, ConversationID: conv, Sender: alice, Body: "Hello"})

	for _, recipient := range []identity.Participant{bob, admin} {
		got, err := store.ListForRecipient(ctx, recipient, 10, 0)
		require.NoError(t, err)
		require.Len(t, got, 1, "recipient %s", recipient)
		assert.Equal(t, notify.TypeNewMessage, got[0].Type)
		assert.Equal(t, "New message from alice", got[0].Title)
		assert.Equal(t, "Hello", got[0].Body)
		require.NotNil(t, got[0].ConversationID)
		assert.Equal(t, conv, *got[0].ConversationID)
	}

	got, err := store.ListForRecipient(ctx, alice, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, got, "the sender is never notified about their own message")
}

type flakyStore struct {
	notify.Store
	failFor identity.Participant
	inserts int
}

func (f *flakyStore) InsertNotification(ctx context.Context, n *notify.Notification) (*notify.Notification, error) {
	if n.Recipient.Equal(f.failFor) {
		return nil, errors.New("disk on fire")
	}
	f.inserts++
	return f.Store.InsertNotification(ctx, n)
}

func TestFanOutIsBestEffortPerRecipient(t *testing.T) {
	store, alice, bob, admin, conv := seed(t)
	ctx := context.Background()

	dir := directory.NewService(store, store, store)
	flaky := &flakyStore{Store: store, failFor: bob}
	d := notify.NewDispatcher(flaky, dir, store, nil)

	// One failing recipient must not stop the rest, and must not panic
	// or surface an error to the send path.
	d.MessageSent(ctx, conv, alice, &msglog.Message{ID: 1, ConversationID: conv, Sender: alice, Body: "Hello"})

	assert.Equal(t, 1, flaky.inserts)
	got, err := store.ListForRecipient(ctx, admin, 10, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestNotificationBodyTruncated(t *testing.T) {
	store, alice, bob, _, conv := seed(t)
	ctx := context.Background()

	long := make([]rune, 500)
	for i := range long {
		long[i] = 'x'
	}

	dir := directory.NewService(store, store, store)
	d := notify.NewDispatcher(store, dir, store, nil)
	d.MessageSent(ctx, conv, alice, &msglog.Message{ID: 1, ConversationID: conv, Sender: alice, Body: string(long)})

	got, err := store.ListForRecipient(ctx, bob, 10, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.LessOrEqual(t, len([]rune(got[0].Body)), 120)
}
