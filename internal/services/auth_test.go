package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/lumenlabs/lumen-backend/internal/pkg/errors"
	"github.com/lumenlabs/lumen-backend/internal/requestdata"
	"github.com/lumenlabs/lumen-backend/internal/types"
)

type fakeUserRepo struct {
	users map[uuid.UUID]*types.User
}

func (f *fakeUserRepo) GetByID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.User, error) {
	if u, ok := f.users[userID]; ok {
		return u, nil
	}
	return nil, pkgerrors.ErrNotFound
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestSetContextFromToken(t *testing.T) {
	const secret = "test-secret"
	userID := uuid.New()
	user := &types.User{ID: userID}
	svc := NewAuthService(newTestLogger(t), &fakeUserRepo{users: map[uuid.UUID]*types.User{userID: user}}, secret)

	t.Run("user_id_claim", func(t *testing.T) {
		tok := signToken(t, secret, jwt.MapClaims{"user_id": userID.String(), "exp": time.Now().Add(time.Hour).Unix()})
		ctx, err := svc.SetContextFromToken(context.Background(), tok)
		if err != nil {
			t.Fatalf("SetContextFromToken: %v", err)
		}
		rd := requestdata.GetRequestData(ctx)
		if rd == nil || rd.UserID != userID {
			t.Fatalf("request data=%+v, want user %s", rd, userID)
		}
	})

	t.Run("sub_claim_fallback", func(t *testing.T) {
		tok := signToken(t, secret, jwt.MapClaims{"sub": userID.String(), "exp": time.Now().Add(time.Hour).Unix()})
		ctx, err := svc.SetContextFromToken(context.Background(), tok)
		if err != nil {
			t.Fatalf("SetContextFromToken: %v", err)
		}
		if rd := requestdata.GetRequestData(ctx); rd == nil || rd.UserID != userID {
			t.Fatalf("request data=%+v, want user %s", rd, userID)
		}
	})

	rejections := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "wrong_secret", token: signToken(t, "other-secret", jwt.MapClaims{"user_id": userID.String()})},
		{name: "expired", token: signToken(t, secret, jwt.MapClaims{"user_id": userID.String(), "exp": time.Now().Add(-time.Hour).Unix()})},
		{name: "no_subject", token: signToken(t, secret, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})},
		{name: "unknown_user", token: signToken(t, secret, jwt.MapClaims{"user_id": uuid.NewString(), "exp": time.Now().Add(time.Hour).Unix()})},
	}
	for _, tc := range rejections {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.SetContextFromToken(context.Background(), tc.token); !errors.Is(err, pkgerrors.ErrUnauthorized) {
				t.Fatalf("err=%v, want ErrUnauthorized", err)
			}
		})
	}
}
