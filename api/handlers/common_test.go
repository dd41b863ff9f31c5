package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"pulseup/api/handlers"
	"pulseup/api/middleware"
	"pulseup/api/routes"
	"pulseup/docstore"
	"pulseup/models"
	"pulseup/services"
)

// testEnv - поднятый на SQLite в памяти стек API, как в server.go.
type testEnv struct {
	store  *docstore.Store
	router *gin.Engine
	chat   *services.ChatService
}

func setupEnv(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)

	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store := docstore.NewStore(database)
	require.NoError(t, store.AutoMigrate())

	fs := services.NewFriendService(store)
	cs := services.NewChatService(store)
	co := services.NewCoordinator(store, fs, cs)
	fs.SetCoordinator(co)

	handlers.Init(fs, cs)
	middleware.InitAuth(store)

	router := gin.New()
	routes.PublicApi(router)
	return &testEnv{store: store, router: router, chat: cs}
}

// do выполняет запрос от имени пользователя через X-User-ID.
func (e *testEnv) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// doBearer выполняет запрос с opaque токеном identity provider.
func (e *testEnv) doBearer(t *testing.T, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (e *testEnv) seedUser(t *testing.T, uid, name string) {
	user := models.User{ID: uid, DisplayName: name}
	require.NoError(t, e.store.Set(context.Background(), services.UsersCollection, uid, &user))
}

func (e *testEnv) seedSession(t *testing.T, uid, token string) {
	session := models.Session{UserID: uid, Token: token}
	_, err := e.store.Create(context.Background(), services.SessionsCollection, &session)
	require.NoError(t, err)
}
