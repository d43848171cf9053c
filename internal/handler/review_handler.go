package handler

import (
	"Wayfarer/internal/common"
	"Wayfarer/internal/middleware"
	"Wayfarer/internal/service"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ReviewHandler serves the admin verification review queue.
type ReviewHandler interface {
	ListPending(c *gin.Context)
	Approve(c *gin.Context)
	Reject(c *gin.Context)
	Update(c *gin.Context)
}

type reviewHandler struct {
	reviews service.ReviewService
	logger  *zap.Logger
}

func NewReviewHandler(reviews service.ReviewService, logger *zap.Logger) ReviewHandler {
	return &reviewHandler{
		reviews: reviews,
		logger:  logger,
	}
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *reviewHandler) ListPending(c *gin.Context) {
	page, limit := parsePagination(c)

	list, err := h.reviews.ListPending(c.Request.Context(), page, limit)
	if err != nil {
		common.ErrorResponse(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

func (h *reviewHandler) Approve(c *gin.Context) {
	result, err := h.reviews.Approve(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		common.ErrorResponse(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *reviewHandler) Reject(c *gin.Context) {
	var req rejectRequest
	// The reason is optional; an empty or missing body rejects without one.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			common.ErrorResponse(c, h.logger, common.Validation(common.CodeInvalidField, "invalid request body"))
			return
		}
	}

	result, err := h.reviews.Reject(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), req.Reason)
	if err != nil {
		common.ErrorResponse(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *reviewHandler) Update(c *gin.Context) {
	var req service.UpdateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, h.logger, common.Validation(common.CodeInvalidField, "invalid request body"))
		return
	}

	visit, err := h.reviews.Update(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), req)
	if err != nil {
		common.ErrorResponse(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"review": visit})
}
