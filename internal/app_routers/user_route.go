package approuters

import (
	"Wayfarer/internal/configuration"
	"Wayfarer/internal/middleware"

	"github.com/gin-gonic/gin"
)

func UserRouters(router *gin.Engine, container *configuration.Container) {
	userRoute := router.Group("/api", middleware.JWTAuth(container.Authenticator))
	{
		userRoute.POST("/visits", container.UserHandler.SubmitVisit)
		userRoute.GET("/support/conversations", container.UserHandler.GetSupportConversations)
		userRoute.POST("/support/conversations/:id/messages", container.UserHandler.SendSupportMessage)
	}
}
