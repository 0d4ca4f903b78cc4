package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/lumenlabs/lumen-backend/internal/logger"
	"github.com/lumenlabs/lumen-backend/internal/pkg/dbctx"
	pkgerrors "github.com/lumenlabs/lumen-backend/internal/pkg/errors"
	"github.com/lumenlabs/lumen-backend/internal/repos"
	"github.com/lumenlabs/lumen-backend/internal/requestdata"
	"github.com/lumenlabs/lumen-backend/internal/types"
)

type UnitReadiness struct {
	UnitID                uuid.UUID `json:"unitId"`
	Title                 string    `json:"title"`
	Generated             bool      `json:"generated"`
	QuizQuestionCount     int       `json:"quizQuestionCount"`
	AnsweredQuizQuestions int       `json:"answeredQuizQuestions"`
	QuizComplete          bool      `json:"quizComplete"`
	Ready                 bool      `json:"ready"`
}

type ReadinessSummary struct {
	ExpectedSubtopics     int `json:"expectedSubtopics"`
	GeneratedSubtopics    int `json:"generatedSubtopics"`
	TotalQuizQuestions    int `json:"totalQuizQuestions"`
	AnsweredQuizQuestions int `json:"answeredQuizQuestions"`
}

type ModuleReadiness struct {
	Ready   bool             `json:"ready"`
	Summary ReadinessSummary `json:"summary"`
	PerUnit []UnitReadiness  `json:"perUnit"`
}

// ReadinessService answers whether a module-scoped discussion may start.
// It is advisory and read-only: safe to call repeatedly and in parallel.
type ReadinessService interface {
	EvaluateModuleReadiness(dbc dbctx.Context, courseID, moduleUnitID uuid.UUID) (*ModuleReadiness, error)
}

type readinessService struct {
	log          *logger.Logger
	unitRepo     repos.LearningUnitRepo
	contentRepo  repos.UnitContentRepo
	questionRepo repos.QuizQuestionRepo
	attemptRepo  repos.QuizAttemptRepo

	// minQuestions is the per-unit quiz floor: a unit with fewer resolvable
	// questions is not quiz-complete even with every one answered.
	minQuestions int
}

func NewReadinessService(
	log *logger.Logger,
	unitRepo repos.LearningUnitRepo,
	contentRepo repos.UnitContentRepo,
	questionRepo repos.QuizQuestionRepo,
	attemptRepo repos.QuizAttemptRepo,
	minQuestions int,
) ReadinessService {
	return &readinessService{
		log:          log.With("service", "ReadinessService"),
		unitRepo:     unitRepo,
		contentRepo:  contentRepo,
		questionRepo: questionRepo,
		attemptRepo:  attemptRepo,
		minQuestions: minQuestions,
	}
}

func (s *readinessService) EvaluateModuleReadiness(dbc dbctx.Context, courseID, moduleUnitID uuid.UUID) (*ModuleReadiness, error) {
	rd := requestdata.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, pkgerrors.ErrUnauthorized
	}

	moduleUnit, err := s.unitRepo.GetByID(dbc.Ctx, dbc.Tx, moduleUnitID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return nil, pkgerrors.ErrContextUnresolvable
		}
		return nil, err
	}
	if moduleUnit.CourseID != courseID {
		return nil, pkgerrors.ErrContextUnresolvable
	}

	all, err := s.unitRepo.ListByModule(dbc.Ctx, dbc.Tx, courseID, moduleUnit.ModuleTitle)
	if err != nil {
		return nil, err
	}
	var units []*types.LearningUnit
	for _, u := range all {
		if u.Kind == types.UnitKindClosingDiscussion {
			continue
		}
		units = append(units, u)
	}
	if len(units) == 0 {
		return nil, pkgerrors.ErrContextUnresolvable
	}

	unitIDs := make([]uuid.UUID, len(units))
	for i, u := range units {
		unitIDs[i] = u.ID
	}
	contents, err := s.contentRepo.GetByUnitIDs(dbc.Ctx, dbc.Tx, courseID, unitIDs)
	if err != nil {
		return nil, err
	}
	contentByUnit := make(map[uuid.UUID]*types.UnitContent, len(contents))
	for _, c := range contents {
		contentByUnit[c.UnitID] = c
	}
	questions, err := s.questionRepo.GetByUnitIDs(dbc.Ctx, dbc.Tx, courseID, unitIDs)
	if err != nil {
		return nil, err
	}
	questionsByUnit := make(map[uuid.UUID][]*types.QuizQuestion, len(units))
	for _, q := range questions {
		questionsByUnit[q.UnitID] = append(questionsByUnit[q.UnitID], q)
	}

	perUnit := make([]UnitReadiness, len(units))
	evaluate := func(ctx context.Context, i int, unit *types.LearningUnit) error {
		ur, err := s.evaluateUnit(ctx, dbc.Tx, rd.UserID, unit, contentByUnit[unit.ID], questionsByUnit[unit.ID])
		if err != nil {
			return err
		}
		perUnit[i] = ur
		return nil
	}

	// A shared gorm transaction is not safe for concurrent use; only the
	// pooled (nil-tx) path fans out.
	if dbc.Tx != nil {
		for i, unit := range units {
			if err := evaluate(dbc.Ctx, i, unit); err != nil {
				return nil, err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(dbc.Ctx)
		g.SetLimit(4)
		for i, unit := range units {
			g.Go(func() error {
				return evaluate(gctx, i, unit)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	return rollupReadiness(perUnit, s.minQuestions), nil
}

func (s *readinessService) evaluateUnit(ctx context.Context, tx *gorm.DB, userID uuid.UUID, unit *types.LearningUnit, content *types.UnitContent, questions []*types.QuizQuestion) (UnitReadiness, error) {
	ur := UnitReadiness{UnitID: unit.ID, Title: unit.Title}

	var payload UnitContentPayload
	if content != nil {
		if uErr := json.Unmarshal(content.Payload, &payload); uErr != nil {
			s.log.Warn("Unreadable unit content payload", "unit_id", unit.ID, "error", uErr)
		}
		ur.Generated = !payload.Empty()
	}

	// Resolvable questions are the persisted rows whose normalized text
	// also appears in the cached quiz payload; matching by text tolerates
	// drift between the cache and the rows.
	cachedTexts := make(map[string]bool, len(payload.Quiz))
	for _, q := range payload.Quiz {
		cachedTexts[normalizeQuestionText(q.Question)] = true
	}
	var resolvable []uuid.UUID
	for _, q := range questions {
		if cachedTexts[normalizeQuestionText(q.Question)] {
			resolvable = append(resolvable, q.ID)
		}
	}
	ur.QuizQuestionCount = len(resolvable)

	attempts, err := s.attemptRepo.GetByUserAndQuestionIDs(ctx, tx, userID, resolvable)
	if err != nil {
		return ur, err
	}
	answered := make(map[uuid.UUID]bool, len(attempts))
	for _, a := range attempts {
		answered[a.QuestionID] = true
	}
	for _, id := range resolvable {
		if answered[id] {
			ur.AnsweredQuizQuestions++
		}
	}
	return ur, nil
}

// rollupReadiness derives the per-unit and module verdicts from raw counts.
// Pure so the threshold rules stay directly testable.
func rollupReadiness(perUnit []UnitReadiness, minQuestions int) *ModuleReadiness {
	out := &ModuleReadiness{
		Summary: ReadinessSummary{ExpectedSubtopics: len(perUnit)},
	}
	ready := len(perUnit) > 0
	for i := range perUnit {
		u := &perUnit[i]
		u.QuizComplete = u.QuizQuestionCount >= minQuestions && u.AnsweredQuizQuestions == u.QuizQuestionCount
		u.Ready = u.Generated && u.QuizComplete
		if u.Generated {
			out.Summary.GeneratedSubtopics++
		}
		out.Summary.TotalQuizQuestions += u.QuizQuestionCount
		out.Summary.AnsweredQuizQuestions += u.AnsweredQuizQuestions
		if !u.Ready {
			ready = false
		}
	}
	out.Ready = ready
	out.PerUnit = perUnit
	return out
}

func normalizeQuestionText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}
