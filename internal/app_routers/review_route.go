package approuters

import (
	"Wayfarer/internal/configuration"
	"Wayfarer/internal/middleware"

	"github.com/gin-gonic/gin"
)

// ReviewRouters mounts the admin verification review queue.
func ReviewRouters(router *gin.Engine, container *configuration.Container) {
	reviewRoute := router.Group("/api/admin/reviews",
		middleware.JWTAuth(container.Authenticator),
		middleware.RequireAdmin(),
	)
	{
		reviewRoute.GET("/pending", container.ReviewHandler.ListPending)
		reviewRoute.POST("/:id/approve", container.ReviewHandler.Approve)
		reviewRoute.POST("/:id/reject", container.ReviewHandler.Reject)
		reviewRoute.PATCH("/:id", container.ReviewHandler.Update)
	}
}
