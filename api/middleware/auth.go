package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pulseup/docstore"
	"pulseup/models"
)

var sessionStore *docstore.Store

// InitAuth привязывает хранилище сессий. Вызывается при старте.
func InitAuth(store *docstore.Store) {
	sessionStore = store
}

// AuthMiddleware - аутентификация запроса.
// Поддерживает два варианта:
// 1. X-User-ID заголовок (для простых тестов)
// 2. Authorization: Bearer <token> - opaque токен identity provider,
//    резолвится в uid через коллекцию sessions
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userIDHeader := c.GetHeader("X-User-ID")
		if userIDHeader != "" {
			c.Set("user_id", userIDHeader)
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader != "" && strings.HasPrefix(authHeader, "Bearer ") {
			token := strings.TrimPrefix(authHeader, "Bearer ")
			if userID, ok := resolveToken(c, token); ok {
				c.Set("user_id", userID)
				c.Next()
				return
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required: provide X-User-ID header or Authorization Bearer token"})
		c.Abort()
	}
}

// resolveToken ищет сессию с данным токеном.
func resolveToken(c *gin.Context, token string) (string, bool) {
	if sessionStore == nil {
		return "", false
	}
	docs, err := sessionStore.Find(c.Request.Context(), "sessions")
	if err != nil {
		return "", false
	}
	for _, doc := range docs {
		var session models.Session
		if err := json.Unmarshal(doc.Data, &session); err != nil {
			continue
		}
		if session.Token == token {
			return session.UserID, true
		}
	}
	return "", false
}
