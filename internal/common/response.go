package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorInfo is the error body returned to clients.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Pagination metadata for list responses.
type Pagination struct {
	Page       int64 `json:"page"`
	Limit      int64 `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

// ErrorResponse writes err as {"error": {...}}. Server errors are logged with
// request context and replaced by a generic message.
func ErrorResponse(c *gin.Context, logger *zap.Logger, err error) {
	appErr := AsAppError(err)
	status := HTTPStatus(appErr)

	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}

	c.JSON(status, gin.H{
		"error": ErrorInfo{Code: appErr.Code, Message: appErr.Message},
	})
}

// AbortWithError writes an error body with an explicit status and aborts the chain.
func AbortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": ErrorInfo{Code: code, Message: message},
	})
}
