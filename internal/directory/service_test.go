package directory_test

import (
	"context"
	"sync"
	"testing"

	"community-chat/internal/apperr"
	"community-chat/internal/directory"
	"community-chat/internal/identity"
	"community-chat/internal/memstore"
	"community-chat/internal/msglog"
	"community-chat/internal/people"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccount(t *testing.T, store *memstore.Store, kind identity.Kind, name string) identity.Participant {
	t.Helper()
	a, err := store.CreateAccount(context.Background(), &people.Account{
		Participant: identity.Participant{Kind: kind},
		Username:    name,
		Password:    "x",
		DisplayName: name,
	})
	require.NoError(t, err)
	return a.Participant
}

func newDirectory(store *memstore.Store) *directory.Service {
	return directory.NewService(store, store, store)
}

func intp(v int) *int { return &v }

func TestCreateDirectDeduplicates(t *testing.T) {
	store := memstore.New()
	svc := newDirectory(store)
	ctx := context.Background()

	alice := newAccount(t, store, identity.KindUser, "alice")
	bob := newAccount(t, store, identity.KindMentor, "bob")

	first, err := svc.Create(ctx, alice, &directory.CreateRequest{
		Type:         directory.TypeDirect,
		Participants: []identity.Participant{alice, bob},
	})
	require.NoError(t, err)
	assert.False(t, first.Existing)

	// Same pair, other order, other creator: same thread.
	second, err := svc.Create(ctx, bob, &directory.CreateRequest{
		Type:         directory.TypeDirect,
		Participants: []identity.Participant{bob, alice},
	})
	require.NoError(t, err)
	assert.True(t, second.Existing)
	assert.Equal(t, first.Conversation.ID, second.Conversation.ID)
}

func TestCreateDirectConcurrentCreatorsCollapse(t *testing.T) {
	store := memstore.New()
	svc := newDirectory(store)
	ctx := context.Background()

	alice := newAccount(t, store, identity.KindUser, "alice")
	bob := newAccount(t, store, identity.KindMentor, "bob")

	// Both sides race to open the same pair; the lookup can miss on both,
	// so the store's insert-if-absent has to collapse them to one thread.
	const racers = 8
	results := make([]*directory.CreateResult, racers)
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			creator, pair := alice, []identity.Participant{alice, bob}
			if i%2 == 1 {
				creator, pair = bob, []identity.Participant{bob, alice}
			}
			results[i], errs[i] = svc.Create(ctx, creator, &directory.CreateRequest{
				Type:         directory.TypeDirect,
				Participants: pair,
			})
		}(i)
	}
	wg.Wait()

	inserted := 0
	for i, res := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Conversation.ID, res.Conversation.ID)
		if !res.Existing {
			inserted++
		}
	}
	assert.Equal(t, 1, inserted, "exactly one racer creates the thread")

	members, err := svc.Participants(ctx, results[0].Conversation.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []identity.Participant{alice, bob}, members)
}

func TestCreateValidation(t *testing.T) {
	store := memstore.New()
	svc := newDirectory(store)
	ctx := context.Background()

	alice := newAccount(t, store, identity.KindUser, "alice")
	bob := newAccount(t, store, identity.KindMentor, "bob")
	carol := newAccount(t, store, identity.KindUser, "carol")

	cases := []struct {
		name string
		req  directory.CreateRequest
	}{
		{"unknown type", directory.CreateRequest{Type: "group", Participants: []identity.Participant{alice, bob}}},
		{"too few participants", directory.CreateRequest{Type: directory.TypeTeam, Participants: []identity.Participant{alice}}},
		{"duplicates collapse below minimum", directory.CreateRequest{Type: directory.TypeTeam, Participants: []identity.Participant{alice, alice}}},
		{"direct needs exactly two", directory.CreateRequest{Type: directory.TypeDirect, Participants: []identity.Participant{alice, bob, carol}}},
		{"invalid participant", directory.CreateRequest{Type: directory.TypeTeam, Participants: []identity.Participant{alice, {Kind: "ghost", ID: 1}}}},
		{"team_id on a non-team", directory.CreateRequest{Type: directory.TypeDirect, TeamID: intp(7), Participants: []identity.Participant{alice, bob}}},
		{"exercise_id on a non-exercise", directory.CreateRequest{Type: directory.TypeTeam, ExerciseID: intp(9), Participants: []identity.Participant{alice, bob, carol}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, alice, &tc.req)
			assert.True(t, apperr.IsValidation(err), "got %v", err)
		})
	}
}

func TestCreateTeamConversation(t *testing.T) {
	store := memstore.New()
	svc := newDirectory(store)
	ctx := context.Background()

	alice := newAccount(t, store, identity.KindUser, "alice")
	bob := newAccount(t, store, identity.KindMentor, "bob")
	admin := newAccount(t, store, identity.KindAdmin, "root")

	teamID := 7
	res, err := svc.Create(ctx, admin, &directory.CreateRequest{
		Type:         directory.TypeTeam,
		Title:        "Team Rocket",
		TeamID:       &teamID,
		Participants: []identity.Participant{alice, bob, admin},
	})
	require.NoError(t, err)
	assert.False(t, res.Existing)
	assert.Equal(t, admin, res.Conversation.Creator)

	members, err := svc.Participants(ctx, res.Conversation.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []identity.Participant{alice, bob, admin}, members)
}

func TestIsMember(t *testing.T) {
	store := memstore.New()
	svc := newDirectory(store)
	ctx := context.Background()

	alice := newAccount(t, store, identity.KindUser, "alice")
	bob := newAccount(t, store, identity.KindMentor, "bob")
	outsider := newAccount(t, store, identity.KindUser, "mallory")

	res, err := svc.Create(ctx, alice, &directory.CreateRequest{
		Type:         directory.TypeDirect,
		Participants: []identity.Participant{alice, bob},
	})
	require.NoError(t, err)

	member, err := svc.IsMember(ctx, res.Conversation.ID, bob)
	require.NoError(t, err)
	assert.True(t, member)

	member, err = svc.IsMember(ctx, res.Conversation.ID, outsider)
	require.NoError(t, err)
	assert.False(t, member)
}

func TestListSummaries(t *testing.T) {
	store := memstore.New()
	svc := newDirectory(store)
	ctx := context.Background()

	alice := newAccount(t, store, identity.KindUser, "alice")
	bob := newAccount(t, store, identity.KindMentor, "bob")
	carol := newAccount(t, store, identity.KindUser, "carol")

	withBob, err := svc.Create(ctx, alice, &directory.CreateRequest{
		Type:         directory.TypeDirect,
		Participants: []identity.Participant{alice, bob},
	})
	require.NoError(t, err)
	withCarol, err := svc.Create(ctx, alice, &directory.CreateRequest{
		Type:         directory.TypeDirect,
		Participants: []identity.Participant{alice, carol},
	})
	require.NoError(t, err)

	// A message in the older thread moves it to the top and sets the
	// preview and bob's unread count.
	_, err = store.InsertMessage(ctx, &msglog.Message{
		ConversationID: withBob.Conversation.ID,
		Sender:         alice,
		Body:           "Hello",
	})
	require.NoError(t, err)

	summaries, err := svc.List(ctx, bob, 10, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, withBob.Conversation.ID, summaries[0].ID)
	assert.Equal(t, "alice", summaries[0].DisplayName)
	assert.Equal(t, "Hello", summaries[0].LastMessage)
	assert.Equal(t, 1, summaries[0].UnreadCount)
	assert.Len(t, summaries[0].Members, 2)

	summaries, err = svc.List(ctx, alice, 10, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, withBob.Conversation.ID, summaries[0].ID, "thread with latest activity first")
	assert.Equal(t, withCarol.Conversation.ID, summaries[1].ID)
	assert.Zero(t, summaries[0].UnreadCount, "own messages are already read")
}
