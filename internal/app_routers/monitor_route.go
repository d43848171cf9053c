package approuters

import (
	"Wayfarer/internal/configuration"
	"Wayfarer/internal/middleware"

	"github.com/gin-gonic/gin"
)

// MonitorRouters sets up monitoring API routes
func MonitorRouters(router *gin.Engine, container *configuration.Container) {
	monitorGroup := router.Group("/cf/api/monitor",
		middleware.JWTAuth(container.Authenticator),
		middleware.RequireAdmin(),
	)
	{
		// GET /cf/api/monitor/stats - Get hub statistics
		monitorGroup.GET("/stats", container.MonitorHandler.GetHubStats)
	}
}
