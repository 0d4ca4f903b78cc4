package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DiscussionSession is one learner's run through a template. At most one row
// exists per (user, course, unit); a later start resumes it.
type DiscussionSession struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;index:idx_discussion_session_identity,unique,priority:1" json:"user_id"`
	CourseID uuid.UUID `gorm:"type:uuid;not null;index:idx_discussion_session_identity,unique,priority:2" json:"course_id"`
	UnitID   uuid.UUID `gorm:"type:uuid;not null;index:idx_discussion_session_identity,unique,priority:3" json:"unit_id"`

	Status string `gorm:"column:status;not null;default:'in_progress';index" json:"status"`
	Phase  string `gorm:"column:phase;not null" json:"phase"`

	// LearningGoals is the session-local []discussion.GoalState copy with
	// independent covered flags.
	LearningGoals datatypes.JSON `gorm:"column:learning_goals;type:jsonb;not null;default:'[]'" json:"learning_goals"`

	// TemplateID is the version bound at creation; sessions never silently
	// migrate to newer template versions.
	TemplateID uuid.UUID `gorm:"type:uuid;not null;index" json:"template_id"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (DiscussionSession) TableName() string { return "discussion_session" }
