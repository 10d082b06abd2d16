package receipt_test

import (
	"context"
	"testing"

	"community-chat/internal/apperr"
	"community-chat/internal/directory"
	"community-chat/internal/identity"
	"community-chat/internal/memstore"
	"community-chat/internal/msglog"
	"community-chat/internal/receipt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	store   *memstore.Store
	service *receipt.Service
	alice   identity.Participant
	bob     identity.Participant
	conv    int
}

func setup(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()

	e := &env{
		store:   store,
		service: receipt.NewService(store),
		alice:   identity.Participant{Kind: identity.KindUser, ID: 5},
		bob:     identity.Participant{Kind: identity.KindMentor, ID: 3},
	}
	conv, _, err := store.CreateConversation(ctx, &directory.Conversation{
		Type:    directory.TypeDirect,
		Creator: e.alice,
	}, identity.PairKey(e.alice, e.bob), []identity.Participant{e.alice, e.bob})
	require.NoError(t, err)
	e.conv = conv.ID
	return e
}

func (e *env) send(t *testing.T, sender identity.Participant, body string) *msglog.Message {
	t.Helper()
	m, err := e.store.InsertMessage(context.Background(), &msglog.Message{
		ConversationID: e.conv,
		Sender:         sender,
		Body:           body,
	})
	require.NoError(t, err)
	return m
}

func TestUnreadCountDerivation(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	// Bob's own sends never count against him; Alice's do.
	e.send(t, e.bob, "from bob 1")
	e.send(t, e.bob, "from bob 2")
	e.send(t, e.alice, "from alice 1")
	e.send(t, e.alice, "from alice 2")
	e.send(t, e.alice, "from alice 3")

	count, err := e.service.UnreadCount(ctx, e.conv, e.bob)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, e.service.MarkRead(ctx, e.conv, e.bob))
	count, err = e.service.UnreadCount(ctx, e.conv, e.bob)
	require.NoError(t, err)
	assert.Zero(t, count)

	// One more unacknowledged message brings it back to exactly 1.
	e.send(t, e.alice, "from alice 4")
	count, err = e.service.UnreadCount(ctx, e.conv, e.bob)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.send(t, e.alice, "hello")

	require.NoError(t, e.service.MarkRead(ctx, e.conv, e.bob))
	require.NoError(t, e.service.MarkRead(ctx, e.conv, e.bob))

	count, err := e.service.UnreadCount(ctx, e.conv, e.bob)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMarkMessagesReadIsWindowScoped(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	first := e.send(t, e.alice, "one")
	e.send(t, e.alice, "two")
	own := e.send(t, e.bob, "mine")

	// Acknowledging one message (plus bob's own, which never counts)
	// leaves the other unread.
	require.NoError(t, e.service.MarkMessagesRead(ctx, e.bob, []int{first.ID, own.ID}))
	count, err := e.service.UnreadCount(ctx, e.conv, e.bob)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Repeats and unknown ids are no-ops.
	require.NoError(t, e.service.MarkMessagesRead(ctx, e.bob, []int{first.ID, first.ID + 1000}))
	require.NoError(t, e.service.MarkMessagesRead(ctx, e.bob, nil))
	count, err = e.service.UnreadCount(ctx, e.conv, e.bob)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMarkReadRequiresMembership(t *testing.T) {
	e := setup(t)
	outsider := identity.Participant{Kind: identity.KindUser, ID: 99}
	err := e.service.MarkRead(context.Background(), e.conv, outsider)
	assert.True(t, apperr.IsNotAuthorized(err))
}

func TestTotalUnreadAggregates(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	// A second conversation bob belongs to.
	carol := identity.Participant{Kind: identity.KindUser, ID: 7}
	other, _, err := e.store.CreateConversation(ctx, &directory.Conversation{
		Type:    directory.TypeDirect,
		Creator: carol,
	}, identity.PairKey(carol, e.bob), []identity.Participant{carol, e.bob})
	require.NoError(t, err)

	e.send(t, e.alice, "one")
	e.send(t, e.alice, "two")
	_, err = e.store.InsertMessage(ctx, &msglog.Message{
		ConversationID: other.ID,
		Sender:         carol,
		Body:           "three",
	})
	require.NoError(t, err)

	total, err := e.service.TotalUnread(ctx, e.bob)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	require.NoError(t, e.service.MarkRead(ctx, e.conv, e.bob))
	total, err = e.service.TotalUnread(ctx, e.bob)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestReceiptsSurviveSoftDelete(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	m := e.send(t, e.alice, "soon gone")
	require.NoError(t, e.service.MarkRead(ctx, e.conv, e.bob))
	require.NoError(t, e.store.MarkDeleted(ctx, m.ID))

	// Deleting an already-read message must not resurrect it as unread.
	count, err := e.service.UnreadCount(ctx, e.conv, e.bob)
	require.NoError(t, err)
	assert.Zero(t, count)
}
