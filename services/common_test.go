package services

import (
	"context"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"pulseup/docstore"
	"pulseup/models"
)

// newTestStore поднимает документное хранилище на SQLite в памяти.
func newTestStore(t *testing.T) *docstore.Store {
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store := docstore.NewStore(database)
	require.NoError(t, store.AutoMigrate())
	return store
}

// newTestServices собирает связку сервисов как в server.go.
func newTestServices(t *testing.T) (*docstore.Store, *FriendService, *ChatService, *Coordinator) {
	store := newTestStore(t)
	fs := NewFriendService(store)
	cs := NewChatService(store)
	co := NewCoordinator(store, fs, cs)
	fs.SetCoordinator(co)
	return store, fs, cs, co
}

// seedUser кладёт профиль пользователя под его uid.
func seedUser(t *testing.T, store *docstore.Store, uid, name string) models.User {
	if name == "" {
		name = gofakeit.Name()
	}
	user := models.User{
		ID:          uid,
		DisplayName: name,
		Email:       gofakeit.Email(),
		PhotoURL:    gofakeit.URL(),
	}
	require.NoError(t, store.Set(context.Background(), UsersCollection, uid, &user))
	return user
}
