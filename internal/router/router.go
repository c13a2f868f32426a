package router

import (
	"github.com/gin-gonic/gin"
	"github.com/lgu-bplo/bizpermit-backend/config"
	"github.com/lgu-bplo/bizpermit-backend/internal/app/controller"
	"github.com/lgu-bplo/bizpermit-backend/internal/app/model"
	"github.com/lgu-bplo/bizpermit-backend/internal/middleware"
)

type Router struct {
	permitController       *controller.PermitController
	businessTypeController *controller.BusinessTypeController
	notificationController *controller.NotificationController
	websocketController    *controller.WebSocketController
	authMiddleware         *middleware.AuthMiddleware
	config                 *config.Config
}

func NewRouter(
	permitController *controller.PermitController,
	businessTypeController *controller.BusinessTypeController,
	notificationController *controller.NotificationController,
	websocketController *controller.WebSocketController,
	authMiddleware *middleware.AuthMiddleware,
	cfg *config.Config,
) *Router {
	return &Router{
		permitController:       permitController,
		businessTypeController: businessTypeController,
		notificationController: notificationController,
		websocketController:    websocketController,
		authMiddleware:         authMiddleware,
		config:                 cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	gin.SetMode(r.config.Server.GinMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware())
	router.Use(corsMiddleware(r.config.CORS.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"message": "Business permit API is running",
		})
	})

	staff := r.authMiddleware.RequireRole(model.RoleAdmin, model.RoleOfficer, model.RoleStaff)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/business-types", r.businessTypeController.ListBusinessTypes)

		permits := v1.Group("/permits")
		permits.Use(r.authMiddleware.Authenticate())
		{
			permits.POST("", r.permitController.SubmitApplication)
			permits.GET("", r.permitController.ListPermits)

			permits.GET("/stats", staff, r.permitController.GetStats)
			permits.GET("/renewals", staff, r.permitController.ListRenewals)
			permits.GET("/export", staff, r.permitController.ExportPermits)

			permits.GET("/:id", r.permitController.GetPermit)
			permits.GET("/:id/history", r.permitController.GetHistory)

			// role checks per event happen in the lifecycle service
			permits.POST("/:id/transitions", r.permitController.Transition)
			permits.POST("/:id/renew", staff, r.permitController.Renew)
		}

		notifications := v1.Group("/notifications")
		notifications.Use(r.authMiddleware.Authenticate())
		{
			notifications.GET("", r.notificationController.GetNotifications)
			notifications.PATCH("/read-all", r.notificationController.MarkAllAsRead)
			notifications.PATCH("/:id/read", r.notificationController.MarkAsRead)
		}

		v1.GET("/ws", r.authMiddleware.Authenticate(), r.websocketController.Connect)
	}

	return router
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin || allowedOrigin == "*" {
				allowed = true
				break
			}
		}

		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PATCH")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Archive-Key, X-Archive-URL, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
