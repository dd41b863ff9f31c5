package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"pulseup/api/middleware"
)

// GetConversations - обработчик списка диалогов пользователя
func GetConversations(c *gin.Context) {
	userID := c.GetString("user_id")

	conversations, err := chatService.Conversations(c.Request.Context(), userID)
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// CreateConversation - обработчик создания диалога
func CreateConversation(c *gin.Context) {
	type req struct {
		ParticipantID  string `json:"participantId" binding:"required"`
		InitialMessage string `json:"initialMessage"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	userID := c.GetString("user_id")

	conv, err := chatService.CreateConversation(c.Request.Context(), []string{userID, r.ParticipantID}, r.InitialMessage)
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}

// requireParticipant проверяет, что пользователь состоит в диалоге.
// Чужой диалог неотличим от несуществующего: 404 в обоих случаях.
func requireParticipant(c *gin.Context, conversationID, userID string) bool {
	conv, err := chatService.Conversation(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return false
	}
	if !conv.HasParticipant(userID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return false
	}
	return true
}

// GetMessages - обработчик чтения сообщений диалога. Открывает живую
// подписку пользователя на диалог (его предыдущая, если была на другой
// диалог, гасится).
func GetMessages(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	userID := c.GetString("user_id")

	if !requireParticipant(c, conversationID, userID) {
		return
	}
	chatService.Subscribe(userID, conversationID)
	messages, err := chatService.FetchMessages(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// SendMessage - обработчик отправки сообщения
func SendMessage(c *gin.Context) {
	type req struct {
		Content string `json:"content" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	conversationID := c.Param("conversation_id")
	userID := c.GetString("user_id")

	if !requireParticipant(c, conversationID, userID) {
		return
	}
	start := time.Now()
	msg, err := chatService.SendMessage(c.Request.Context(), conversationID, userID, strings.TrimSpace(r.Content))
	if err != nil {
		middleware.RecordChatOperation("send_message", "error", "social-core", time.Since(start))
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	middleware.RecordChatOperation("send_message", "ok", "social-core", time.Since(start))
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// MarkAsRead - обработчик отметки сообщений прочитанными
func MarkAsRead(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	userID := c.GetString("user_id")

	start := time.Now()
	updated, err := chatService.MarkAsRead(c.Request.Context(), conversationID, userID)
	if err != nil {
		middleware.RecordChatOperation("mark_as_read", "error", "social-core", time.Since(start))
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	middleware.RecordChatOperation("mark_as_read", "ok", "social-core", time.Since(start))
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// Typing - обработчик маркера "печатает"
func Typing(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	userID := c.GetString("user_id")

	chatService.Typing(conversationID, userID)
	c.JSON(http.StatusOK, gin.H{"typing": chatService.TypingUsers(conversationID)})
}

// GetTyping - кто сейчас печатает в диалоге
func GetTyping(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	c.JSON(http.StatusOK, gin.H{"typing": chatService.TypingUsers(conversationID)})
}

// GetUnreadCount - счётчик непрочитанных сообщений диалога
func GetUnreadCount(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	userID := c.GetString("user_id")

	count, err := chatService.UnreadCount(c.Request.Context(), conversationID, userID)
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

// CloseConversation - явное снятие подписки при уходе с экрана чата
func CloseConversation(c *gin.Context) {
	chatService.Unsubscribe(c.GetString("user_id"))
	c.JSON(http.StatusOK, gin.H{"message": "unsubscribed"})
}
