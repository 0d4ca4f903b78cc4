package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QuizAttempt is a learner's answer submission for one quiz question.
type QuizAttempt struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index:idx_quiz_attempt_user_question,priority:1" json:"user_id"`
	QuestionID uuid.UUID `gorm:"type:uuid;not null;index:idx_quiz_attempt_user_question,priority:2" json:"question_id"`
	Answer     string    `gorm:"column:answer;type:text;not null;default:''" json:"answer"`
	Correct    bool      `gorm:"column:correct;not null;default:false" json:"correct"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (QuizAttempt) TableName() string { return "quiz_attempt" }
