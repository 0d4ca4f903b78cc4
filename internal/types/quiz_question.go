package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// QuizQuestion is one persisted quiz item for a unit. The readiness gate
// cross-references these rows against the cached quiz payload by normalized
// question text.
type QuizQuestion struct {
	ID       uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CourseID uuid.UUID      `gorm:"type:uuid;not null;index" json:"course_id"`
	UnitID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"unit_id"`
	Question string         `gorm:"column:question;type:text;not null" json:"question"`
	Options  datatypes.JSON `gorm:"column:options;type:jsonb;not null;default:'[]'" json:"options"`
	Answer   string         `gorm:"column:answer;not null;default:''" json:"answer"`
	Position int            `gorm:"column:position;not null;default:0" json:"position"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (QuizQuestion) TableName() string { return "quiz_question" }
