package app

import (
	"time"

	"github.com/lumenlabs/lumen-backend/internal/logger"
	"github.com/lumenlabs/lumen-backend/internal/utils"
)

type Config struct {
	JWTSecretKey          string
	LLMTimeout            time.Duration
	ReadinessMinQuestions int
	AllowOrigins          []string
}

func LoadConfig(log *logger.Logger) Config {
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	llmTimeoutSeconds := utils.GetEnvAsInt("LLM_TIMEOUT_SECONDS", 120, log)
	readinessMinQuestions := utils.GetEnvAsInt("READINESS_MIN_QUESTIONS", 5, log)
	allowOrigins := utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173", log)
	return Config{
		JWTSecretKey:          jwtSecretKey,
		LLMTimeout:            time.Duration(llmTimeoutSeconds) * time.Second,
		ReadinessMinQuestions: readinessMinQuestions,
		AllowOrigins:          []string{allowOrigins},
	}
}
