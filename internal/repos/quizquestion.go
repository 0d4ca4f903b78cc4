package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumenlabs/lumen-backend/internal/logger"
	"github.com/lumenlabs/lumen-backend/internal/types"
)

type QuizQuestionRepo interface {
	// GetByUnitIDs returns the persisted questions for a batch of units in
	// one query, ordered by unit then position.
	GetByUnitIDs(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, unitIDs []uuid.UUID) ([]*types.QuizQuestion, error)
}

type quizQuestionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuizQuestionRepo(db *gorm.DB, baseLog *logger.Logger) QuizQuestionRepo {
	repoLog := baseLog.With("repo", "QuizQuestionRepo")
	return &quizQuestionRepo{db: db, log: repoLog}
}

func (r *quizQuestionRepo) GetByUnitIDs(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, unitIDs []uuid.UUID) ([]*types.QuizQuestion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.QuizQuestion
	if len(unitIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("course_id = ? AND unit_id IN ?", courseID, unitIDs).
		Order("unit_id, position ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
