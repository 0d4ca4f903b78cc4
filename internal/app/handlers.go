package app

import (
	"github.com/lumenlabs/lumen-backend/internal/handlers"
	"github.com/lumenlabs/lumen-backend/internal/logger"
)

type Handlers struct {
	Discussion *handlers.DiscussionHandler
}

func wireHandlers(log *logger.Logger, s Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Discussion: handlers.NewDiscussionHandler(log, s.Discussion, s.Readiness),
	}
}
