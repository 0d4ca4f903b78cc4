package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Unit kinds. A closing_discussion unit is the placeholder row that anchors a
// module-scoped discussion; it carries no content of its own.
const (
	UnitKindContent           = "content"
	UnitKindClosingDiscussion = "closing_discussion"
)

// LearningUnit is one subtopic in a course outline. The outline is authored
// by the content pipeline; this engine only reads it.
type LearningUnit struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CourseID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_learning_unit_course" json:"course_id"`
	ModuleTitle string         `gorm:"column:module_title;not null;index:idx_learning_unit_course" json:"module_title"`
	Title       string         `gorm:"column:title;not null" json:"title"`
	Position    int            `gorm:"column:position;not null;default:0" json:"position"`
	Kind        string         `gorm:"column:kind;not null;default:'content';index" json:"kind"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (LearningUnit) TableName() string { return "learning_unit" }
