package app

import (
	"fmt"

	"github.com/lumenlabs/lumen-backend/internal/clients/redis"
	"github.com/lumenlabs/lumen-backend/internal/logger"
	"github.com/lumenlabs/lumen-backend/internal/services"
)

type Services struct {
	OpenAI     services.OpenAIClient
	Auth       services.AuthService
	Content    services.ContentService
	Template   services.TemplateService
	Evaluator  services.EvaluatorService
	Discussion services.DiscussionService
	Readiness  services.ReadinessService
}

func wireServices(log *logger.Logger, cfg Config, r Repos, cache redis.ContentCache) (Services, error) {
	log.Info("Wiring services...")

	openaiClient, err := services.NewOpenAIClient(log)
	if err != nil {
		return Services{}, fmt.Errorf("init openai client: %w", err)
	}

	authService := services.NewAuthService(log, r.User, cfg.JWTSecretKey)
	contentService := services.NewContentService(log, r.LearningUnit, r.UnitContent, cache)
	templateService := services.NewTemplateService(log, r.DiscussionTemplate, contentService, openaiClient, cfg.LLMTimeout)
	evaluatorService := services.NewEvaluatorService(log, openaiClient, cfg.LLMTimeout)
	discussionService := services.NewDiscussionService(
		log,
		r.DiscussionSession,
		r.DiscussionMessage,
		r.LearningUnit,
		r.UnitProgress,
		templateService,
		contentService,
		evaluatorService,
	)
	readinessService := services.NewReadinessService(
		log,
		r.LearningUnit,
		r.UnitContent,
		r.QuizQuestion,
		r.QuizAttempt,
		cfg.ReadinessMinQuestions,
	)

	return Services{
		OpenAI:     openaiClient,
		Auth:       authService,
		Content:    contentService,
		Template:   templateService,
		Evaluator:  evaluatorService,
		Discussion: discussionService,
		Readiness:  readinessService,
	}, nil
}
