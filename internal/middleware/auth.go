package middleware

import (
	"Wayfarer/internal/auth"
	"Wayfarer/internal/common"
	"Wayfarer/internal/model"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserID   = "userID"
	ctxUsername = "username"
	ctxRole     = "role"
)

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// JWTAuth authenticates the request from the Authorization header and stores
// the caller identity in the context.
func JWTAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			common.AbortWithError(c, http.StatusUnauthorized, common.CodeUnauthorized, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			common.AbortWithError(c, http.StatusUnauthorized, common.CodeUnauthorized, "invalid authorization header format")
			return
		}

		claims, err := validator.ValidateToken(parts[1])
		if err != nil {
			message := "invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				message = "token expired"
			}
			common.AbortWithError(c, http.StatusUnauthorized, common.CodeUnauthorized, message)
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxUsername, claims.Username)
		c.Set(ctxRole, claims.Role)

		c.Next()
	}
}

// RequireAdmin rejects callers without the admin role.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetRole(c) != model.RoleAdmin {
			common.AbortWithError(c, http.StatusForbidden, common.CodeAdminRequired, "admin access required")
			return
		}
		c.Next()
	}
}

// GetUserID extracts user ID from context
func GetUserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

// GetRole extracts the caller role from context
func GetRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}

// GetUsername extracts username from context
func GetUsername(c *gin.Context) string {
	return c.GetString(ctxUsername)
}
