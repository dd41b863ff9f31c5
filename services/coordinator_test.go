package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulseup/models"
)

func TestAcceptAndConnectFullSequence(t *testing.T) {
	store, fs, cs, co := newTestServices(t)
	ctx := context.Background()
	seedUser(t, store, "alice", "Alice")
	seedUser(t, store, "bob", "Bob")

	req, err := fs.SendFriendRequest(ctx, "alice", "bob")
	require.NoError(t, err)

	require.NoError(t, co.AcceptAndConnect(ctx, req.ID, "alice", "bob"))

	// Заявка принята
	var stored models.FriendRequest
	require.NoError(t, store.Get(ctx, RequestsCollection, req.ID, &stored))
	assert.Equal(t, models.RequestAccepted, stored.Status)

	// Дружба создана и видна обоим
	friends, err := fs.Friends(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, "alice", friends[0].Counterpart("bob"))

	status, err := fs.RelationshipStatus(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, models.RelationFriend, status)

	// Диалог с приветствием от имени инициатора
	conversations, err := cs.Conversations(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	assert.Equal(t, WelcomeMessage("Alice"), conversations[0].LastMessage)

	msgs, err := cs.FetchMessages(ctx, conversations[0].ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, WelcomeMessage("Alice"), msgs[0].Content)
	assert.False(t, msgs[0].Read)
}

func TestAcceptAndConnectMissingRequest(t *testing.T) {
	_, _, _, co := newTestServices(t)
	ctx := context.Background()

	err := co.AcceptAndConnect(ctx, "no-such-request", "alice", "bob")
	require.Error(t, err)

	var partial *PartialSequenceError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, "accept_request", partial.Step)
	assert.Empty(t, partial.Completed)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAcceptAndConnectReusesConversation(t *testing.T) {
	store, fs, cs, co := newTestServices(t)
	ctx := context.Background()
	seedUser(t, store, "alice", "Alice")
	seedUser(t, store, "bob", "Bob")

	// Пара уже переписывалась до дружбы
	existing, err := cs.CreateConversation(ctx, []string{"alice", "bob"}, "")
	require.NoError(t, err)

	req, err := fs.SendFriendRequest(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NoError(t, co.AcceptAndConnect(ctx, req.ID, "alice", "bob"))

	conversations, err := cs.Conversations(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	assert.Equal(t, existing.ID, conversations[0].ID)
}

func TestAcceptAndConnectUnknownSenderName(t *testing.T) {
	store, fs, cs, co := newTestServices(t)
	ctx := context.Background()
	// Профиль инициатора не заведён - приветствие с именем по умолчанию
	seedUser(t, store, "bob", "Bob")

	req, err := fs.SendFriendRequest(ctx, "ghost", "bob")
	require.NoError(t, err)
	require.NoError(t, co.AcceptAndConnect(ctx, req.ID, "ghost", "bob"))

	conversations, err := cs.Conversations(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	assert.Equal(t, WelcomeMessage(""), conversations[0].LastMessage)
}

func TestAcceptAndConnectRejectedRequest(t *testing.T) {
	store, fs, _, co := newTestServices(t)
	ctx := context.Background()
	seedUser(t, store, "alice", "Alice")
	seedUser(t, store, "bob", "Bob")

	req, err := fs.SendFriendRequest(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NoError(t, fs.RejectFriendRequest(ctx, req.ID))

	err = co.AcceptAndConnect(ctx, req.ID, "alice", "bob")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRelationship))

	// Дружбы после провала первого шага нет
	friends, err := fs.Friends(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, friends)
}

func TestDoubleAcceptKeepsSingleFriendship(t *testing.T) {
	store, fs, _, co := newTestServices(t)
	ctx := context.Background()
	seedUser(t, store, "alice", "Alice")
	seedUser(t, store, "bob", "Bob")

	req, err := fs.SendFriendRequest(ctx, "alice", "bob")
	require.NoError(t, err)

	// Повторный POST того же принятия - идемпотентный no-op
	require.NoError(t, co.AcceptAndConnect(ctx, req.ID, "alice", "bob"))
	require.NoError(t, co.AcceptAndConnect(ctx, req.ID, "alice", "bob"))

	friends, err := fs.Friends(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, friends, 1)

	// Удаление единственной записи возвращает пару в none
	require.NoError(t, fs.RemoveFriend(ctx, "alice", "bob", friends[0].ID))

	statusAB, err := fs.RelationshipStatus(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, models.RelationNone, statusAB)
	statusBA, err := fs.RelationshipStatus(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.RelationNone, statusBA)
}

func TestReconcileCollapsesDuplicateFriendships(t *testing.T) {
	store, fs, _, co := newTestServices(t)
	ctx := context.Background()

	// Гонка записи оставила две записи дружбы одной пары
	for i := 0; i < 2; i++ {
		_, err := store.Create(ctx, FriendsCollection, &models.Friendship{
			Participants: []string{"alice", "bob"},
			Status:       models.RequestAccepted,
		})
		require.NoError(t, err)
	}

	co.Reconcile(ctx)

	friends, err := fs.Friends(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, friends, 1)
}

func TestReconcileRejectsStalePending(t *testing.T) {
	store, fs, _, co := newTestServices(t)
	ctx := context.Background()
	seedUser(t, store, "alice", "Alice")
	seedUser(t, store, "bob", "Bob")

	// Дружба уже есть, а pending-заявка пары почему-то осталась
	_, err := fs.createFriendship(ctx, "alice", "bob")
	require.NoError(t, err)
	stale, err := store.Create(ctx, RequestsCollection, &models.FriendRequest{
		FromUserID: "bob",
		ToUserID:   "alice",
		Status:     models.RequestPending,
	})
	require.NoError(t, err)

	co.Reconcile(ctx)

	var fixed models.FriendRequest
	require.NoError(t, store.Get(ctx, RequestsCollection, stale, &fixed))
	assert.Equal(t, models.RequestRejected, fixed.Status)

	status, err := fs.RelationshipStatus(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, models.RelationFriend, status)
}

func TestReconcileLeavesHealthyStateAlone(t *testing.T) {
	store, fs, _, co := newTestServices(t)
	ctx := context.Background()
	seedUser(t, store, "alice", "Alice")
	seedUser(t, store, "bob", "Bob")
	seedUser(t, store, "carol", "Carol")

	req, err := fs.SendFriendRequest(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NoError(t, co.AcceptAndConnect(ctx, req.ID, "alice", "bob"))
	pending, err := fs.SendFriendRequest(ctx, "carol", "alice")
	require.NoError(t, err)

	co.Reconcile(ctx)

	// Несвязанная pending-заявка не тронута
	var still models.FriendRequest
	require.NoError(t, store.Get(ctx, RequestsCollection, pending.ID, &still))
	assert.Equal(t, models.RequestPending, still.Status)
}
