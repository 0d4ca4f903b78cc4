package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumenlabs/lumen-backend/internal/discussion"
	"github.com/lumenlabs/lumen-backend/internal/logger"
	pkgerrors "github.com/lumenlabs/lumen-backend/internal/pkg/errors"
	"github.com/lumenlabs/lumen-backend/internal/types"
)

type DiscussionTemplateRepo interface {
	Create(ctx context.Context, tx *gorm.DB, template *types.DiscussionTemplate) (*types.DiscussionTemplate, error)
	GetByID(ctx context.Context, tx *gorm.DB, templateID uuid.UUID) (*types.DiscussionTemplate, error)
	// GetLatestByUnit returns the highest-version template for the unit,
	// preferring unit-scope rows over module-scope rows tagged with the same
	// unit id.
	GetLatestByUnit(ctx context.Context, tx *gorm.DB, unitID uuid.UUID) (*types.DiscussionTemplate, error)
}

type discussionTemplateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDiscussionTemplateRepo(db *gorm.DB, baseLog *logger.Logger) DiscussionTemplateRepo {
	repoLog := baseLog.With("repo", "DiscussionTemplateRepo")
	return &discussionTemplateRepo{db: db, log: repoLog}
}

func (r *discussionTemplateRepo) Create(ctx context.Context, tx *gorm.DB, template *types.DiscussionTemplate) (*types.DiscussionTemplate, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).Create(template).Error; err != nil {
		return nil, err
	}
	return template, nil
}

func (r *discussionTemplateRepo) GetByID(ctx context.Context, tx *gorm.DB, templateID uuid.UUID) (*types.DiscussionTemplate, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var row types.DiscussionTemplate
	if err := transaction.WithContext(ctx).
		Where("id = ?", templateID).
		First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

func (r *discussionTemplateRepo) GetLatestByUnit(ctx context.Context, tx *gorm.DB, unitID uuid.UUID) (*types.DiscussionTemplate, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var row types.DiscussionTemplate
	err := transaction.WithContext(ctx).
		Where("unit_id = ? AND source = ?", unitID, discussion.SourceUnit).
		Order("version DESC").
		First(&row).Error
	if err == nil {
		return &row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// Secondary lookup: a module-scope template anchored to this unit.
	err = transaction.WithContext(ctx).
		Where("unit_id = ?", unitID).
		Order("version DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}
