package app

import (
	"gorm.io/gorm"

	"github.com/lumenlabs/lumen-backend/internal/logger"
	"github.com/lumenlabs/lumen-backend/internal/repos"
)

type Repos struct {
	User               repos.UserRepo
	LearningUnit       repos.LearningUnitRepo
	UnitContent        repos.UnitContentRepo
	QuizQuestion       repos.QuizQuestionRepo
	QuizAttempt        repos.QuizAttemptRepo
	UnitProgress       repos.UnitProgressRepo
	DiscussionTemplate repos.DiscussionTemplateRepo
	DiscussionSession  repos.DiscussionSessionRepo
	DiscussionMessage  repos.DiscussionMessageRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:               repos.NewUserRepo(db, log),
		LearningUnit:       repos.NewLearningUnitRepo(db, log),
		UnitContent:        repos.NewUnitContentRepo(db, log),
		QuizQuestion:       repos.NewQuizQuestionRepo(db, log),
		QuizAttempt:        repos.NewQuizAttemptRepo(db, log),
		UnitProgress:       repos.NewUnitProgressRepo(db, log),
		DiscussionTemplate: repos.NewDiscussionTemplateRepo(db, log),
		DiscussionSession:  repos.NewDiscussionSessionRepo(db, log),
		DiscussionMessage:  repos.NewDiscussionMessageRepo(db, log),
	}
}
