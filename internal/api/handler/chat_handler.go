package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/gigescrow/internal/service"
)

// ChatHandler serves conversation and message routes.
type ChatHandler struct {
	chat *service.ChatService
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// ConversationRequest opens a conversation with another wallet.
type ConversationRequest struct {
	OtherAddress string `json:"other_address" binding:"required"`
	JobID        string `json:"job_id"`
}

// MessageRequest is a text message.
type MessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// ListConversations handles GET /chat/conversations.
func (h *ChatHandler) ListConversations(c *gin.Context) {
	actor, ok := requireActor(c, "user_address")
	if !ok {
		return
	}
	list, err := h.chat.ListConversations(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list, "total": len(list)})
}

// OpenConversation handles POST /chat/conversations.
func (h *ChatHandler) OpenConversation(c *gin.Context) {
	actor, ok := requireActor(c, "user_address")
	if !ok {
		return
	}
	var req ConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	conv, err := h.chat.GetOrCreateConversation(c.Request.Context(), actor, req.OtherAddress, req.JobID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// ListMessages handles GET /chat/conversations/:id/messages?limit=&before=.
// before is an RFC 3339 timestamp for paging backwards.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	actor, ok := requireActor(c, "user_address")
	if !ok {
		return
	}
	var before time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		before = t
	}
	msgs, err := h.chat.ListMessages(c.Request.Context(), c.Param("id"), actor, intQuery(c, "limit", 50, maxPageSize), before)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "total": len(msgs)})
}

// SendMessage handles POST /chat/conversations/:id/messages.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	actor, ok := requireActor(c, "user_address")
	if !ok {
		return
	}
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	msg, err := h.chat.SendMessage(c.Request.Context(), c.Param("id"), actor, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// SendAttachment handles POST /chat/conversations/:id/attachments as a
// multipart upload with the file under "file" and an optional "caption".
func (h *ChatHandler) SendAttachment(c *gin.Context) {
	actor, ok := requireActor(c, "user_address")
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	msg, err := h.chat.SendFile(c.Request.Context(), c.Param("id"), actor, fh.Filename,
		fh.Header.Get("Content-Type"), f, fh.Size, c.PostForm("caption"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
