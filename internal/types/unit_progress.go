package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UnitProgress tracks per-learner completion of a unit. The discussion
// engine writes it best-effort when a session completes.
type UnitProgress struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;index:idx_unit_progress_identity,unique,priority:1" json:"user_id"`
	CourseID uuid.UUID `gorm:"type:uuid;not null;index:idx_unit_progress_identity,unique,priority:2" json:"course_id"`
	UnitID   uuid.UUID `gorm:"type:uuid;not null;index:idx_unit_progress_identity,unique,priority:3" json:"unit_id"`

	Completed   bool       `gorm:"column:completed;not null;default:false" json:"completed"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (UnitProgress) TableName() string { return "unit_progress" }
