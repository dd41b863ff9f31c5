package models

import (
	"time"
)

// User - профиль пользователя из внешнего identity provider.
// Ядро использует его только как справочные данные по uid.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	PhotoURL    string    `json:"photoUrl"`
	Interests   []string  `json:"interests,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Session - привязка opaque токена к uid пользователя.
// Сам токен выдаёт identity provider, мы его только резолвим.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"createdAt"`
}
