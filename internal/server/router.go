package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/lumenlabs/lumen-backend/internal/handlers"
	"github.com/lumenlabs/lumen-backend/internal/middleware"
)

type RouterConfig struct {
	AuthMiddleware    *middleware.AuthMiddleware
	DiscussionHandler *handlers.DiscussionHandler
	AllowOrigins      []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// Public
	router.GET("/healthcheck", handlers.HealthCheck)

	// Protected
	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAuth())
	{
		api.POST("/discussions/start", cfg.DiscussionHandler.Start)
		api.POST("/discussions/respond", cfg.DiscussionHandler.Respond)
		api.GET("/discussions/history", cfg.DiscussionHandler.History)
		api.GET("/discussions/module-status", cfg.DiscussionHandler.ModuleStatus)
	}

	return router
}
