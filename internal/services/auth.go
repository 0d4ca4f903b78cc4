package services

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lumenlabs/lumen-backend/internal/logger"
	pkgerrors "github.com/lumenlabs/lumen-backend/internal/pkg/errors"
	"github.com/lumenlabs/lumen-backend/internal/repos"
	"github.com/lumenlabs/lumen-backend/internal/requestdata"
)

// AuthService verifies bearer tokens issued by the external identity
// collaborator and stamps the caller's identity into the request context.
type AuthService interface {
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
}

type authService struct {
	log       *logger.Logger
	userRepo  repos.UserRepo
	jwtSecret []byte
}

func NewAuthService(log *logger.Logger, userRepo repos.UserRepo, jwtSecret string) AuthService {
	return &authService{
		log:       log.With("service", "AuthService"),
		userRepo:  userRepo,
		jwtSecret: []byte(jwtSecret),
	}
}

func (s *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return ctx, pkgerrors.ErrUnauthorized
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ctx, pkgerrors.ErrUnauthorized
	}
	sub, _ := claims["user_id"].(string)
	if sub == "" {
		sub, _ = claims["sub"].(string)
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return ctx, pkgerrors.ErrUnauthorized
	}

	if _, err := s.userRepo.GetByID(ctx, nil, userID); err != nil {
		return ctx, pkgerrors.ErrUnauthorized
	}

	return requestdata.WithRequestData(ctx, &requestdata.RequestData{
		TokenString: tokenString,
		UserID:      userID,
	}), nil
}
