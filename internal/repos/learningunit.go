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

type LearningUnitRepo interface {
	GetByID(ctx context.Context, tx *gorm.DB, unitID uuid.UUID) (*types.LearningUnit, error)
	GetByTitle(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, moduleTitle string, title string) (*types.LearningUnit, error)
	ListByModule(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, moduleTitle string) ([]*types.LearningUnit, error)
}

type learningUnitRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLearningUnitRepo(db *gorm.DB, baseLog *logger.Logger) LearningUnitRepo {
	repoLog := baseLog.With("repo", "LearningUnitRepo")
	return &learningUnitRepo{db: db, log: repoLog}
}

func (r *learningUnitRepo) GetByID(ctx context.Context, tx *gorm.DB, unitID uuid.UUID) (*types.LearningUnit, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var unit types.LearningUnit
	if err := transaction.WithContext(ctx).
		Where("id = ?", unitID).
		First(&unit).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, err
	}
	return &unit, nil
}

func (r *learningUnitRepo) GetByTitle(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, moduleTitle string, title string) (*types.LearningUnit, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var unit types.LearningUnit
	if err := transaction.WithContext(ctx).
		Where("course_id = ? AND module_title = ? AND title = ?", courseID, moduleTitle, title).
		First(&unit).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, err
	}
	return &unit, nil
}

func (r *learningUnitRepo) ListByModule(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, moduleTitle string) ([]*types.LearningUnit, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var units []*types.LearningUnit
	if err := transaction.WithContext(ctx).
		Where("course_id = ? AND module_title = ?", courseID, moduleTitle).
		Order("position ASC").
		Find(&units).Error; err != nil {
		return nil, err
	}
	return units, nil
}
