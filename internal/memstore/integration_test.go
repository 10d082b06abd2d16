package memstore_test

import (
	"context"
	"testing"

	"community-chat/internal/directory"
	"community-chat/internal/identity"
	"community-chat/internal/memstore"
	"community-chat/internal/msglog"
	"community-chat/internal/notify"
	"community-chat/internal/people"
	"community-chat/internal/receipt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Full wiring over the memory store, exactly as cmd/server assembles it
// when DB_DSN is unset. One user and one mentor talk through a direct
// thread end to end: register, log in, create the pair, send, list,
// fetch, acknowledge.
func TestDirectThreadEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	accounts := people.NewService(store, "test-secret")
	receipts := receipt.NewService(store)
	conversations := directory.NewService(store, store, receipts)
	dispatcher := notify.NewDispatcher(store, conversations, store, nil)
	messages := msglog.NewService(store, conversations, receipts, store, nil, dispatcher)

	aliceAcc, err := accounts.Register(ctx, &people.RegisterRequest{
		Kind: identity.KindUser, Username: "alice", Password: "pw", DisplayName: "Alice",
	})
	require.NoError(t, err)
	mentorAcc, err := accounts.Register(ctx, &people.RegisterRequest{
		Kind: identity.KindMentor, Username: "marco", Password: "pw", DisplayName: "Marco",
	})
	require.NoError(t, err)

	login, err := accounts.Login(ctx, &people.LoginRequest{
		Kind: identity.KindUser, Username: "alice", Password: "pw",
	})
	require.NoError(t, err)
	alice, name, err := accounts.ValidateToken(login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, aliceAcc.Participant, alice)
	assert.Equal(t, "Alice", name)
	mentor := mentorAcc.Participant

	created, err := conversations.Create(ctx, alice, &directory.CreateRequest{
		Type:         directory.TypeDirect,
		Participants: []identity.Participant{alice, mentor},
	})
	require.NoError(t, err)
	require.False(t, created.Existing)
	conv := created.Conversation.ID

	sent, err := messages.Send(ctx, alice, &msglog.SendRequest{
		ConversationID: conv,
		Body:           "Hello",
	})
	require.NoError(t, err)

	// The mentor's inbox: one thread, labeled with the sender's name,
	// previewing the message, one unread.
	summaries, err := conversations.List(ctx, mentor, 0, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, conv, summaries[0].ID)
	assert.Equal(t, "Alice", summaries[0].DisplayName)
	assert.Equal(t, "Hello", summaries[0].LastMessage)
	assert.Equal(t, 1, summaries[0].UnreadCount)

	// Fan-out reached the mentor and nobody else.
	inbox, err := store.ListForRecipient(ctx, mentor, 10, 0)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "New message from Alice", inbox[0].Title)
	senderInbox, err := store.ListForRecipient(ctx, alice, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, senderInbox)

	// Reading the history acknowledges it.
	page, err := messages.Page(ctx, mentor, conv, 50, 0)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "Hello", page[0].Body)
	assert.Equal(t, "Alice", page[0].SenderName)
	assert.Equal(t, sent.ID, page[0].ID)

	summaries, err = conversations.List(ctx, mentor, 0, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Zero(t, summaries[0].UnreadCount)

	// The mentor opening the thread again from the other side dedups to
	// the same conversation.
	again, err := conversations.Create(ctx, mentor, &directory.CreateRequest{
		Type:         directory.TypeDirect,
		Participants: []identity.Participant{mentor, alice},
	})
	require.NoError(t, err)
	assert.True(t, again.Existing)
	assert.Equal(t, conv, again.Conversation.ID)
}

func TestRegisterRejectsDuplicateUsernamePerKind(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	accounts := people.NewService(store, "test-secret")

	_, err := accounts.Register(ctx, &people.RegisterRequest{
		Kind: identity.KindUser, Username: "alice", Password: "pw",
	})
	require.NoError(t, err)

	_, err = accounts.Register(ctx, &people.RegisterRequest{
		Kind: identity.KindUser, Username: "alice", Password: "other",
	})
	assert.Error(t, err)

	// The same username under another kind is a different namespace.
	_, err = accounts.Register(ctx, &people.RegisterRequest{
		Kind: identity.KindMentor, Username: "alice", Password: "pw",
	})
	assert.NoError(t, err)
}
