package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lumenlabs/lumen-backend/internal/logger"
	pkgerrors "github.com/lumenlabs/lumen-backend/internal/pkg/errors"
	"github.com/lumenlabs/lumen-backend/internal/types"
)

type DiscussionSessionRepo interface {
	GetByID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*types.DiscussionSession, error)
	FindByIdentity(ctx context.Context, tx *gorm.DB, userID, courseID, unitID uuid.UUID) (*types.DiscussionSession, error)
	// Create inserts a session for the identity triple. Concurrent creates
	// for the same triple collapse onto the unique index: on conflict the
	// existing row is fetched and returned.
	Create(ctx context.Context, tx *gorm.DB, session *types.DiscussionSession) (*types.DiscussionSession, error)
	Update(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, patch map[string]interface{}) error
}

type discussionSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDiscussionSessionRepo(db *gorm.DB, baseLog *logger.Logger) DiscussionSessionRepo {
	repoLog := baseLog.With("repo", "DiscussionSessionRepo")
	return &discussionSessionRepo{db: db, log: repoLog}
}

func (r *discussionSessionRepo) GetByID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*types.DiscussionSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var session types.DiscussionSession
	if err := transaction.WithContext(ctx).
		Where("id = ?", sessionID).
		First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (r *discussionSessionRepo) FindByIdentity(ctx context.Context, tx *gorm.DB, userID, courseID, unitID uuid.UUID) (*types.DiscussionSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var session types.DiscussionSession
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND course_id = ? AND unit_id = ?", userID, courseID, unitID).
		First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (r *discussionSessionRepo) Create(ctx context.Context, tx *gorm.DB, session *types.DiscussionSession) (*types.DiscussionSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}, {Name: "unit_id"}},
			DoNothing: true,
		}).
		Create(session)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Lost the race; the existing session wins.
		return r.FindByIdentity(ctx, tx, session.UserID, session.CourseID, session.UnitID)
	}
	return session, nil
}

func (r *discussionSessionRepo) Update(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, patch map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(patch) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.DiscussionSession{}).
		Where("id = ?", sessionID).
		Updates(patch).Error
}
