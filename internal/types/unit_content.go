package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UnitContent is the generated-content cache row for one unit: summary,
// objectives, key takeaways, misconceptions and the quiz payload, as produced
// by the content pipeline.
type UnitContent struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CourseID  uuid.UUID      `gorm:"type:uuid;not null;index:idx_unit_content_course_unit,unique,priority:1" json:"course_id"`
	UnitID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_unit_content_course_unit,unique,priority:2" json:"unit_id"`
	Payload   datatypes.JSON `gorm:"column:payload;type:jsonb;not null;default:'{}'" json:"payload"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (UnitContent) TableName() string { return "unit_content" }
