package handlers_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulseup/models"
)

func TestAuthRequired(t *testing.T) {
	env := setupEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/friends/list", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBearerTokenAuth(t *testing.T) {
	env := setupEnv(t)
	env.seedSession(t, "alice", "token-123")

	req := env.do(t, http.MethodGet, "/api/v1/friends/list", "", nil)
	assert.Equal(t, http.StatusUnauthorized, req.Code)

	w := env.doBearer(t, http.MethodGet, "/api/v1/friends/list", "token-123")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.doBearer(t, http.MethodGet, "/api/v1/friends/list", "wrong-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSendFriendRequestEndpoint(t *testing.T) {
	env := setupEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/friends/request", "alice", map[string]string{"toUserId": "bob"})
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	var request models.FriendRequest
	require.NoError(t, json.Unmarshal(body["request"], &request))
	assert.Equal(t, "alice", request.FromUserID)
	assert.Equal(t, "bob", request.ToUserID)
	assert.Equal(t, models.RequestPending, request.Status)
}

func TestSendFriendRequestValidation(t *testing.T) {
	env := setupEnv(t)

	// Пустое тело
	w := env.do(t, http.MethodPost, "/api/v1/friends/request", "alice", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Заявка самому себе
	w = env.do(t, http.MethodPost, "/api/v1/friends/request", "alice", map[string]string{"toUserId": "alice"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDuplicateFriendRequestConflicts(t *testing.T) {
	env := setupEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/friends/request", "alice", map[string]string{"toUserId": "bob"})
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodPost, "/api/v1/friends/request", "alice", map[string]string{"toUserId": "bob"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAcceptFriendRequestEndpoint(t *testing.T) {
	env := setupEnv(t)
	env.seedUser(t, "alice", "Alice")
	env.seedUser(t, "bob", "Bob")

	w := env.do(t, http.MethodPost, "/api/v1/friends/request", "alice", map[string]string{"toUserId": "bob"})
	require.Equal(t, http.StatusOK, w.Code)
	var request models.FriendRequest
	require.NoError(t, json.Unmarshal(decodeBody(t, w)["request"], &request))

	w = env.do(t, http.MethodPost, "/api/v1/friends/accept", "bob", map[string]string{
		"requestId":  request.ID,
		"fromUserId": "alice",
	})
	require.Equal(t, http.StatusOK, w.Code)

	// Дружба видна в списке
	w = env.do(t, http.MethodGet, "/api/v1/friends/list", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var friends []models.Friendship
	require.NoError(t, json.Unmarshal(decodeBody(t, w)["friends"], &friends))
	require.Len(t, friends, 1)
	assert.Equal(t, "alice", friends[0].Counterpart("bob"))

	// Статус пары - friend
	w = env.do(t, http.MethodGet, "/api/v1/friends/status/bob", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status models.RelationshipStatus
	require.NoError(t, json.Unmarshal(decodeBody(t, w)["status"], &status))
	assert.Equal(t, models.RelationFriend, status)

	// Приветственный диалог создан
	w = env.do(t, http.MethodGet, "/api/v1/chat/conversations", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var conversations []models.Conversation
	require.NoError(t, json.Unmarshal(decodeBody(t, w)["conversations"], &conversations))
	require.Len(t, conversations, 1)
	assert.Contains(t, conversations[0].LastMessage, "Alice")
}

func TestRepeatedAcceptKeepsSingleFriendship(t *testing.T) {
	env := setupEnv(t)
	env.seedUser(t, "alice", "Alice")
	env.seedUser(t, "bob", "Bob")

	w := env.do(t, http.MethodPost, "/api/v1/friends/request", "alice", map[string]string{"toUserId": "bob"})
	require.Equal(t, http.StatusOK, w.Code)
	var request models.FriendRequest
	require.NoError(t, json.Unmarshal(decodeBody(t, w)["request"], &request))

	accept := map[string]string{"requestId": request.ID, "fromUserId": "alice"}
	w = env.do(t, http.MethodPost, "/api/v1/friends/accept", "bob", accept)
	require.Equal(t, http.StatusOK, w.Code)
	// Повторный POST того же принятия дружбу не дублирует
	w = env.do(t, http.MethodPost, "/api/v1/friends/accept", "bob", accept)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/friends/list", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var friends []models.Friendship
	require.NoError(t, json.Unmarshal(decodeBody(t, w)["friends"], &friends))
	require.Len(t, friends, 1)

	w = env.do(t, http.MethodPost, "/api/v1/friends/remove", "bob", map[string]string{
		"friendId":     "alice",
		"friendshipId": friends[0].ID,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/friends/status/alice", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status models.RelationshipStatus
	require.NoError(t, json.Unmarshal(decodeBody(t, w)["status"], &status))
	assert.Equal(t, models.RelationNone, status)
}

func TestAcceptUnknownRequestNotFound(t *testing.T) {
	env := setupEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/friends/accept", "bob", map[string]string{
		"requestId":  "missing",
		"fromUserId": "alice",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRejectFriendRequestEndpoint(t *testing.T) {
	env := setupEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/friends/request", "alice", map[string]string{"toUserId": "bob"})
	require.Equal(t, http.StatusOK, w.Code)
	var request models.FriendRequest
	require.NoError(t, json.Unmarshal(decodeBody(t, w)["request"], &request))

	w = env.do(t, http.MethodPost, "/api/v1/friends/reject", "bob", map[string]string{"requestId": request.ID})
	assert.Equal(t, http.StatusOK, w.Code)

	// После отклонения пара снова может подружиться
	w = env.do(t, http.MethodPost, "/api/v1/friends/request", "bob", map[string]string{"toUserId": "alice"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRemoveFriendEndpoint(t *testing.T) {
	env := setupEnv(t)
	env.seedUser(t, "alice", "Alice")
	env.seedUser(t, "bob", "Bob")

	w := env.do(t, http.MethodPost, "/api/v1/friends/request", "alice", map[string]string{"toUserId": "bob"})
	require.Equal(t, http.StatusOK, w.Code)
	var request models.FriendRequest
	require.NoError(t, json.Unmarshal(decodeBody(t, w)["request"], &request))
	w = env.do(t, http.MethodPost, "/api/v1/friends/accept", "bob", map[string]string{
		"requestId":  request.ID,
		"fromUserId": "alice",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/friends/list", "alice", nil)
	var friends []models.Friendship
	require.NoError(t, json.Unmarshal(decodeBody(t, w)["friends"], &friends))
	require.Len(t, friends, 1)

	w = env.do(t, http.MethodPost, "/api/v1/friends/remove", "alice", map[string]string{
		"friendId":     "bob",
		"friendshipId": friends[0].ID,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/friends/list", "alice", nil)
	require.NoError(t, json.Unmarshal(decodeBody(t, w)["friends"], &friends))
	assert.Empty(t, friends)
}

func TestPendingAndOutgoingRequests(t *testing.T) {
	env := setupEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/friends/request", "alice", map[string]string{"toUserId": "bob"})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/friends/requests", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var incoming []models.FriendRequest
	require.NoError(t, json.Unmarshal(decodeBody(t, w)["requests"], &incoming))
	require.Len(t, incoming, 1)
	assert.Equal(t, "alice", incoming[0].FromUserID)

	w = env.do(t, http.MethodGet, "/api/v1/friends/requests/outgoing", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var outgoing []models.FriendRequest
	require.NoError(t, json.Unmarshal(decodeBody(t, w)["requests"], &outgoing))
	require.Len(t, outgoing, 1)
	assert.Equal(t, "bob", outgoing[0].ToUserID)

	// У отправителя входящих нет
	w = env.do(t, http.MethodGet, "/api/v1/friends/requests", "alice", nil)
	require.NoError(t, json.Unmarshal(decodeBody(t, w)["requests"], &incoming))
	assert.Empty(t, incoming)
}

func TestGetAllUsersExcludesSelf(t *testing.T) {
	env := setupEnv(t)
	env.seedUser(t, "alice", "Alice")
	env.seedUser(t, "bob", "Bob")
	env.seedUser(t, "carol", "Carol")

	w := env.do(t, http.MethodGet, "/api/v1/users", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var users []models.User
	require.NoError(t, json.Unmarshal(decodeBody(t, w)["users"], &users))
	require.Len(t, users, 2)
	for _, u := range users {
		assert.NotEqual(t, "alice", u.ID)
	}
}
