package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/gigescrow/internal/api/middleware"
	"github.com/timmy/gigescrow/internal/domain"
	"github.com/timmy/gigescrow/internal/service"
)

// UserHandler serves profile and notification routes.
type UserHandler struct {
	users    *service.UserService
	notifier *service.NotificationService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(users *service.UserService, notifier *service.NotificationService) *UserHandler {
	return &UserHandler{users: users, notifier: notifier}
}

// CreateUser handles POST /users. With auth enabled the wallet in the body
// must be the caller's.
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req domain.UserInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if middleware.AuthEnabled(c) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}
		if !domain.SameAddress(actor, req.WalletAddress) {
			c.JSON(http.StatusForbidden, gin.H{"error": "cannot register another wallet"})
			return
		}
	}
	u, err := h.users.CreateUser(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

// GetUser handles GET /users/:addr.
func (h *UserHandler) GetUser(c *gin.Context) {
	u, err := h.users.GetUser(c.Request.Context(), c.Param("addr"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// UpdateUser handles PUT /users/:addr.
func (h *UserHandler) UpdateUser(c *gin.Context) {
	actor, ok := requireActor(c, "user_address")
	if !ok {
		return
	}
	var req domain.UserPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := h.users.UpdateUser(c.Request.Context(), c.Param("addr"), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// GetStats handles GET /users/:addr/stats.
func (h *UserHandler) GetStats(c *gin.Context) {
	stats, err := h.users.Stats(c.Request.Context(), c.Param("addr"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListNotifications handles GET /notifications?unread_only=&limit=.
func (h *UserHandler) ListNotifications(c *gin.Context) {
	actor, ok := requireActor(c, "user_address")
	if !ok {
		return
	}
	list, err := h.notifier.List(c.Request.Context(), actor, c.Query("unread_only") == "true", intQuery(c, "limit", 50, maxPageSize))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list, "total": len(list)})
}

// CountNotifications handles GET /notifications/count.
func (h *UserHandler) CountNotifications(c *gin.Context) {
	actor, ok := requireActor(c, "user_address")
	if !ok {
		return
	}
	count, err := h.notifier.Count(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, count)
}

// MarkNotificationRead handles PUT /notifications/:id/read.
func (h *UserHandler) MarkNotificationRead(c *gin.Context) {
	actor, ok := requireActor(c, "user_address")
	if !ok {
		return
	}
	if err := h.notifier.MarkRead(c.Request.Context(), c.Param("id"), actor); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"read": true})
}

// MarkAllNotificationsRead handles PUT /notifications/read-all.
func (h *UserHandler) MarkAllNotificationsRead(c *gin.Context) {
	actor, ok := requireActor(c, "user_address")
	if !ok {
		return
	}
	n, err := h.notifier.MarkAllRead(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}
