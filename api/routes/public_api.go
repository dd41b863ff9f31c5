package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pulseup/api/handlers"
	"pulseup/api/middleware"
)

func PublicApi(router *gin.Engine) *gin.RouterGroup {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	publicEndpoints := router.Group("/api/v1/")
	publicEndpoints.Use(middleware.AuthMiddleware())
	{
		publicEndpoints.GET("users", handlers.GetAllUsers)

		// Друзья
		publicEndpoints.POST("friends/request", handlers.SendFriendRequest)
		publicEndpoints.POST("friends/accept", handlers.AcceptFriendRequest)
		publicEndpoints.POST("friends/reject", handlers.RejectFriendRequest)
		publicEndpoints.POST("friends/remove", handlers.RemoveFriend)
		publicEndpoints.GET("friends/list", handlers.GetFriends)
		publicEndpoints.GET("friends/requests", handlers.GetPendingRequests)
		publicEndpoints.GET("friends/requests/outgoing", handlers.GetOutgoingRequests)
		publicEndpoints.GET("friends/status/:user_id", handlers.GetRelationshipStatus)

		// Чат
		publicEndpoints.GET("chat/conversations", handlers.GetConversations)
		publicEndpoints.POST("chat/conversations", handlers.CreateConversation)
		publicEndpoints.GET("chat/conversations/:conversation_id/messages", handlers.GetMessages)
		publicEndpoints.POST("chat/conversations/:conversation_id/send", handlers.SendMessage)
		publicEndpoints.POST("chat/conversations/:conversation_id/read", handlers.MarkAsRead)
		publicEndpoints.POST("chat/conversations/:conversation_id/typing", handlers.Typing)
		publicEndpoints.GET("chat/conversations/:conversation_id/typing", handlers.GetTyping)
		publicEndpoints.GET("chat/conversations/:conversation_id/unread", handlers.GetUnreadCount)
		publicEndpoints.POST("chat/close", handlers.CloseConversation)

		// WebSocket push
		publicEndpoints.GET("ws", handlers.WSHandler)
	}
	return publicEndpoints
}
