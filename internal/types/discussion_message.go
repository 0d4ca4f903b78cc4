package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DiscussionMessage is one entry in a session's append-only transcript.
// Rows are never mutated or deleted; created_at order is canonical.
type DiscussionMessage struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`

	Role    string `gorm:"column:role;not null;index" json:"role"`
	Content string `gorm:"column:content;type:text;not null;default:''" json:"content"`

	// StepKey ties the message to the step it prompts or answers; empty for
	// meta messages (closing summary).
	StepKey string `gorm:"column:step_key;index" json:"step_key,omitempty"`

	// Metadata carries kind (prompt|feedback|closing), phase, expectedType,
	// options and evaluation detail.
	Metadata datatypes.JSON `gorm:"column:metadata;type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (DiscussionMessage) TableName() string { return "discussion_message" }
