package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pulseup/api/middleware"
)

// SendFriendRequest - обработчик отправки заявки в друзья
func SendFriendRequest(c *gin.Context) {
	type req struct {
		ToUserID string `json:"toUserId" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	userID := c.GetString("user_id")

	request, err := friendService.SendFriendRequest(c.Request.Context(), userID, r.ToUserID)
	if err != nil {
		middleware.RecordFriendTransition("send_request", "error", "social-core")
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	middleware.RecordFriendTransition("send_request", "ok", "social-core")
	c.JSON(http.StatusOK, gin.H{"message": "friend request sent", "request": request})
}

// AcceptFriendRequest - обработчик принятия заявки
func AcceptFriendRequest(c *gin.Context) {
	type req struct {
		RequestID  string `json:"requestId" binding:"required"`
		FromUserID string `json:"fromUserId" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	userID := c.GetString("user_id")

	if err := friendService.AcceptFriendRequest(c.Request.Context(), r.RequestID, r.FromUserID, userID); err != nil {
		middleware.RecordFriendTransition("accept_request", "error", "social-core")
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	middleware.RecordFriendTransition("accept_request", "ok", "social-core")
	c.JSON(http.StatusOK, gin.H{"message": "friend request accepted"})
}

// RejectFriendRequest - обработчик отклонения заявки
func RejectFriendRequest(c *gin.Context) {
	type req struct {
		RequestID string `json:"requestId" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := friendService.RejectFriendRequest(c.Request.Context(), r.RequestID); err != nil {
		middleware.RecordFriendTransition("reject_request", "error", "social-core")
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	middleware.RecordFriendTransition("reject_request", "ok", "social-core")
	c.JSON(http.StatusOK, gin.H{"message": "friend request rejected"})
}

// RemoveFriend - обработчик удаления друга
func RemoveFriend(c *gin.Context) {
	type req struct {
		FriendID     string `json:"friendId" binding:"required"`
		FriendshipID string `json:"friendshipId" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	userID := c.GetString("user_id")

	if err := friendService.RemoveFriend(c.Request.Context(), userID, r.FriendID, r.FriendshipID); err != nil {
		middleware.RecordFriendTransition("remove_friend", "error", "social-core")
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	middleware.RecordFriendTransition("remove_friend", "ok", "social-core")
	c.JSON(http.StatusOK, gin.H{"message": "friend removed"})
}

// GetFriends - обработчик списка друзей
func GetFriends(c *gin.Context) {
	userID := c.GetString("user_id")

	friends, err := friendService.Friends(c.Request.Context(), userID)
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

// GetPendingRequests - обработчик входящих заявок
func GetPendingRequests(c *gin.Context) {
	userID := c.GetString("user_id")

	requests, err := friendService.PendingRequests(c.Request.Context(), userID)
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// GetOutgoingRequests - обработчик исходящих заявок
func GetOutgoingRequests(c *gin.Context) {
	userID := c.GetString("user_id")

	requests, err := friendService.OutgoingRequests(c.Request.Context(), userID)
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// GetRelationshipStatus - отношение текущего пользователя к собеседнику
func GetRelationshipStatus(c *gin.Context) {
	userID := c.GetString("user_id")
	counterpartID := c.Param("user_id")

	status, err := friendService.RelationshipStatus(c.Request.Context(), userID, counterpartID)
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": counterpartID, "status": status})
}

// GetAllUsers - список пользователей для поиска напарников
func GetAllUsers(c *gin.Context) {
	userID := c.GetString("user_id")

	users, err := friendService.AllUsers(c.Request.Context(), userID)
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
