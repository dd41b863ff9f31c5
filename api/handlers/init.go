package handlers

import (
	"errors"
	"net/http"

	"pulseup/services"
)

var (
	friendService *services.FriendService
	chatService   *services.ChatService
)

// Init привязывает сервисы к обработчикам. Вызывается при старте и в
// тестах до регистрации роутов.
func Init(fs *services.FriendService, cs *services.ChatService) {
	friendService = fs
	chatService = cs
}

// statusFromError транслирует таксономию ошибок ядра в HTTP-статусы.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidRelationship):
		return http.StatusConflict
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
