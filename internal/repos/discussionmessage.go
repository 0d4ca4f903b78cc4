package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumenlabs/lumen-backend/internal/logger"
	"github.com/lumenlabs/lumen-backend/internal/types"
)

// DiscussionMessageRepo is append-only: the transcript is never mutated or
// deleted, and created_at order is canonical.
type DiscussionMessageRepo interface {
	Append(ctx context.Context, tx *gorm.DB, message *types.DiscussionMessage) (*types.DiscussionMessage, error)
	ListBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.DiscussionMessage, error)
}

type discussionMessageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDiscussionMessageRepo(db *gorm.DB, baseLog *logger.Logger) DiscussionMessageRepo {
	repoLog := baseLog.With("repo", "DiscussionMessageRepo")
	return &discussionMessageRepo{db: db, log: repoLog}
}

func (r *discussionMessageRepo) Append(ctx context.Context, tx *gorm.DB, message *types.DiscussionMessage) (*types.DiscussionMessage, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).Create(message).Error; err != nil {
		return nil, err
	}
	return message, nil
}

func (r *discussionMessageRepo) ListBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.DiscussionMessage, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.DiscussionMessage
	if err := transaction.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
