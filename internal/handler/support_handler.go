package handler

import (
	"Wayfarer/internal/common"
	"Wayfarer/internal/middleware"
	"Wayfarer/internal/service"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SupportHandler serves the admin support inbox.
type SupportHandler interface {
	ListConversations(c *gin.Context)
	GetOrCreateConversation(c *gin.Context)
	GetConversation(c *gin.Context)
	SendMessage(c *gin.Context)
	MarkRead(c *gin.Context)
}

type supportHandler struct {
	conversations service.ConversationService
	messages      service.MessageService
	logger        *zap.Logger
}

func NewSupportHandler(conversations service.ConversationService, messages service.MessageService, logger *zap.Logger) SupportHandler {
	return &supportHandler{
		conversations: conversations,
		messages:      messages,
		logger:        logger,
	}
}

type getOrCreateRequest struct {
	UserID string `json:"userId" binding:"required"`
	Reason string `json:"reason" binding:"required"`
	RefID  string `json:"refId"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

func (h *supportHandler) ListConversations(c *gin.Context) {
	page, limit := parsePagination(c)

	list, err := h.conversations.ListSupport(c.Request.Context(), service.SupportListQuery{
		Page:   page,
		Limit:  limit,
		Status: c.Query("status"),
		Reason: c.Query("reason"),
	})
	if err != nil {
		common.ErrorResponse(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

func (h *supportHandler) GetOrCreateConversation(c *gin.Context) {
	var req getOrCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, h.logger, common.Validation(common.CodeInvalidField, "userId and reason are required"))
		return
	}

	conversation, err := h.conversations.GetOrCreate(c.Request.Context(), req.UserID, req.Reason, req.RefID)
	if err != nil {
		common.ErrorResponse(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation": conversation})
}

func (h *supportHandler) GetConversation(c *gin.Context) {
	view, err := h.conversations.GetSupport(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation": view})
}

func (h *supportHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, h.logger, common.Validation(common.CodeEmptyMessage, "message text is required"))
		return
	}

	msg, err := h.messages.SendAdminMessage(c.Request.Context(), c.Param("id"), middleware.GetRole(c), req.Text)
	if err != nil {
		common.ErrorResponse(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *supportHandler) MarkRead(c *gin.Context) {
	if _, err := h.messages.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		common.ErrorResponse(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unreadCount": 0})
}
