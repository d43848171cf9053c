package approuters

import (
	"Wayfarer/internal/configuration"
	"Wayfarer/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SupportRouters mounts the admin support inbox.
func SupportRouters(router *gin.Engine, container *configuration.Container) {
	supportRoute := router.Group("/api/admin/support",
		middleware.JWTAuth(container.Authenticator),
		middleware.RequireAdmin(),
	)
	{
		supportRoute.GET("/conversations", container.SupportHandler.ListConversations)
		supportRoute.POST("/conversations", container.SupportHandler.GetOrCreateConversation)
		supportRoute.GET("/conversations/:id", container.SupportHandler.GetConversation)
		supportRoute.POST("/conversations/:id/messages", container.SupportHandler.SendMessage)
		supportRoute.POST("/conversations/:id/read", container.SupportHandler.MarkRead)
	}
}
