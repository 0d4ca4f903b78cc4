package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lumenlabs/lumen-backend/internal/logger"
	"github.com/lumenlabs/lumen-backend/internal/types"
)

type UnitProgressRepo interface {
	MarkComplete(ctx context.Context, tx *gorm.DB, userID, courseID, unitID uuid.UUID) error
}

type unitProgressRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUnitProgressRepo(db *gorm.DB, baseLog *logger.Logger) UnitProgressRepo {
	repoLog := baseLog.With("repo", "UnitProgressRepo")
	return &unitProgressRepo{db: db, log: repoLog}
}

func (r *unitProgressRepo) MarkComplete(ctx context.Context, tx *gorm.DB, userID, courseID, unitID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	now := time.Now().UTC()
	row := &types.UnitProgress{
		UserID:      userID,
		CourseID:    courseID,
		UnitID:      unitID,
		Completed:   true,
		CompletedAt: &now,
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}, {Name: "unit_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"completed": true, "completed_at": now, "updated_at": now}),
		}).
		Create(row).Error
}
