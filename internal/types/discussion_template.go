package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DiscussionTemplate is one immutable version of a dialogue script for a
// unit. Regeneration inserts a new row with a higher version token; rows are
// never updated in place.
type DiscussionTemplate struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CourseID uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`
	UnitID   uuid.UUID `gorm:"type:uuid;not null;index:idx_discussion_template_unit_version,priority:1" json:"unit_id"`

	// Version is a sortable UTC timestamp token; highest wins.
	Version string `gorm:"column:version;not null;index:idx_discussion_template_unit_version,priority:2" json:"version"`
	Source  string `gorm:"column:source;not null;default:'unit';index" json:"source"`

	Template datatypes.JSON `gorm:"column:template;type:jsonb;not null" json:"template"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (DiscussionTemplate) TableName() string { return "discussion_template" }
