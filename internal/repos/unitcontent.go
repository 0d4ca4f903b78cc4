package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumenlabs/lumen-backend/internal/logger"
	pkgerrors "github.com/lumenlabs/lumen-backend/internal/pkg/errors"
	"github.com/lumenlabs/lumen-backend/internal/types"
)

type UnitContentRepo interface {
	GetByUnit(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, unitID uuid.UUID) (*types.UnitContent, error)
	GetByUnitIDs(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, unitIDs []uuid.UUID) ([]*types.UnitContent, error)
}

type unitContentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUnitContentRepo(db *gorm.DB, baseLog *logger.Logger) UnitContentRepo {
	repoLog := baseLog.With("repo", "UnitContentRepo")
	return &unitContentRepo{db: db, log: repoLog}
}

func (r *unitContentRepo) GetByUnit(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, unitID uuid.UUID) (*types.UnitContent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var content types.UnitContent
	if err := transaction.WithContext(ctx).
		Where("course_id = ? AND unit_id = ?", courseID, unitID).
		First(&content).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, err
	}
	return &content, nil
}

func (r *unitContentRepo) GetByUnitIDs(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, unitIDs []uuid.UUID) ([]*types.UnitContent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.UnitContent
	if len(unitIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("course_id = ? AND unit_id IN ?", courseID, unitIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
