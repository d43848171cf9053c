package handler

import (
	"Wayfarer/internal/common"
	"Wayfarer/internal/middleware"
	"Wayfarer/internal/service"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UserHandler serves the endpoints an authenticated traveller calls.
type UserHandler interface {
	SubmitVisit(c *gin.Context)
	GetSupportConversations(c *gin.Context)
	SendSupportMessage(c *gin.Context)
}

type userHandler struct {
	conversations service.ConversationService
	messages      service.MessageService
	reviews       service.ReviewService
	logger        *zap.Logger
}

func NewUserHandler(
	conversations service.ConversationService,
	messages service.MessageService,
	reviews service.ReviewService,
	logger *zap.Logger,
) UserHandler {
	return &userHandler{
		conversations: conversations,
		messages:      messages,
		reviews:       reviews,
		logger:        logger,
	}
}

func (h *userHandler) SubmitVisit(c *gin.Context) {
	var req service.SubmitVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, h.logger, common.Validation(common.CodeInvalidField, "invalid request body"))
		return
	}

	visit, err := h.reviews.Submit(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		common.ErrorResponse(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"visit": visit})
}

func (h *userHandler) GetSupportConversations(c *gin.Context) {
	views, err := h.conversations.ListForUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		common.ErrorResponse(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": views})
}

func (h *userHandler) SendSupportMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, h.logger, common.Validation(common.CodeEmptyMessage, "message text is required"))
		return
	}

	msg, err := h.messages.SendUserMessage(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), req.Text)
	if err != nil {
		common.ErrorResponse(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}
