package app

import (
	"github.com/gin-gonic/gin"

	"github.com/lumenlabs/lumen-backend/internal/server"
)

func wireRouter(cfg Config, h Handlers, m Middleware) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		AuthMiddleware:    m.Auth,
		DiscussionHandler: h.Discussion,
		AllowOrigins:      cfg.AllowOrigins,
	})
}
