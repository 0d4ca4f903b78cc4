package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lumenlabs/lumen-backend/internal/pkg/dbctx"
	pkgerrors "github.com/lumenlabs/lumen-backend/internal/pkg/errors"
	"github.com/lumenlabs/lumen-backend/internal/requestdata"
	"github.com/lumenlabs/lumen-backend/internal/types"
)

type fakeContentRepo struct {
	rows       []*types.UnitContent
	batchCalls int
}

func (f *fakeContentRepo) GetByUnit(ctx context.Context, tx *gorm.DB, courseID, unitID uuid.UUID) (*types.UnitContent, error) {
	for _, c := range f.rows {
		if c.CourseID == courseID && c.UnitID == unitID {
			return c, nil
		}
	}
	return nil, pkgerrors.ErrNotFound
}

func (f *fakeContentRepo) GetByUnitIDs(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, unitIDs []uuid.UUID) ([]*types.UnitContent, error) {
	f.batchCalls++
	wanted := make(map[uuid.UUID]bool, len(unitIDs))
	for _, id := range unitIDs {
		wanted[id] = true
	}
	var out []*types.UnitContent
	for _, c := range f.rows {
		if c.CourseID == courseID && wanted[c.UnitID] {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeQuestionRepo struct {
	rows       []*types.QuizQuestion
	batchCalls int
}

func (f *fakeQuestionRepo) GetByUnitIDs(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, unitIDs []uuid.UUID) ([]*types.QuizQuestion, error) {
	f.batchCalls++
	wanted := make(map[uuid.UUID]bool, len(unitIDs))
	for _, id := range unitIDs {
		wanted[id] = true
	}
	var out []*types.QuizQuestion
	for _, q := range f.rows {
		if q.CourseID == courseID && wanted[q.UnitID] {
			out = append(out, q)
		}
	}
	return out, nil
}

type fakeAttemptRepo struct {
	rows []*types.QuizAttempt
}

func (f *fakeAttemptRepo) GetByUserAndQuestionIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID, questionIDs []uuid.UUID) ([]*types.QuizAttempt, error) {
	wanted := make(map[uuid.UUID]bool, len(questionIDs))
	for _, id := range questionIDs {
		wanted[id] = true
	}
	var out []*types.QuizAttempt
	for _, a := range f.rows {
		if a.UserID == userID && wanted[a.QuestionID] {
			out = append(out, a)
		}
	}
	return out, nil
}

func quizPayloadJSON(t *testing.T, summary string, questions ...string) datatypes.JSON {
	t.Helper()
	p := UnitContentPayload{Summary: summary}
	for _, q := range questions {
		p.Quiz = append(p.Quiz, QuizPayloadQuestion{Question: q})
	}
	raw, err := json.Marshal(&p)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	return datatypes.JSON(raw)
}

func readinessCtx(userID uuid.UUID, tx *gorm.DB) dbctx.Context {
	ctx := requestdata.WithRequestData(context.Background(), &requestdata.RequestData{UserID: userID})
	return dbctx.Context{Ctx: ctx, Tx: tx}
}

func TestEvaluateModuleReadiness(t *testing.T) {
	userID := uuid.New()
	courseID := uuid.New()
	unitA := &types.LearningUnit{ID: uuid.New(), CourseID: courseID, ModuleTitle: "Module One", Title: "Unit A", Position: 1, Kind: types.UnitKindContent}
	unitB := &types.LearningUnit{ID: uuid.New(), CourseID: courseID, ModuleTitle: "Module One", Title: "Unit B", Position: 2, Kind: types.UnitKindContent}
	closing := &types.LearningUnit{ID: uuid.New(), CourseID: courseID, ModuleTitle: "Module One", Title: "Discussion", Position: 3, Kind: types.UnitKindClosingDiscussion}

	aTexts := []string{"a q1?", "a q2?", "a q3?", "a q4?", "a q5?"}
	bTexts := []string{"b q1?", "b q2?", "b q3?", "b q4?", "b q5?"}
	contents := &fakeContentRepo{rows: []*types.UnitContent{
		{CourseID: courseID, UnitID: unitA.ID, Payload: quizPayloadJSON(t, "About A.", aTexts...)},
		{CourseID: courseID, UnitID: unitB.ID, Payload: quizPayloadJSON(t, "About B.", bTexts...)},
	}}

	questions := &fakeQuestionRepo{}
	attempts := &fakeAttemptRepo{}
	addQuestion := func(unitID uuid.UUID, text string, answered bool) {
		q := &types.QuizQuestion{ID: uuid.New(), CourseID: courseID, UnitID: unitID, Question: text}
		questions.rows = append(questions.rows, q)
		if answered {
			attempts.rows = append(attempts.rows, &types.QuizAttempt{UserID: userID, QuestionID: q.ID})
		}
	}
	for _, text := range aTexts {
		addQuestion(unitA.ID, text, true)
	}
	for i, text := range bTexts {
		addQuestion(unitB.ID, text, i < 3)
	}
	// A persisted row absent from the cached payload is not resolvable and
	// must not count, answered or not.
	addQuestion(unitB.ID, "retired question?", true)

	unitRepo := &fakeUnitRepo{units: []*types.LearningUnit{unitA, unitB, closing}}
	svc := NewReadinessService(newTestLogger(t), unitRepo, contents, questions, attempts, 5)

	cases := []struct {
		name string
		tx   *gorm.DB
	}{
		{name: "pooled_connection"},
		{name: "inside_transaction", tx: &gorm.DB{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.EvaluateModuleReadiness(readinessCtx(userID, tc.tx), courseID, closing.ID)
			if err != nil {
				t.Fatalf("EvaluateModuleReadiness: %v", err)
			}
			if got.Ready {
				t.Fatal("Ready=true with an incomplete unit")
			}
			if len(got.PerUnit) != 2 {
				t.Fatalf("PerUnit=%d, want 2", len(got.PerUnit))
			}
			if got.PerUnit[0].UnitID != unitA.ID || got.PerUnit[1].UnitID != unitB.ID {
				t.Fatal("PerUnit order does not follow the module outline")
			}
			a, b := got.PerUnit[0], got.PerUnit[1]
			if !a.Generated || a.QuizQuestionCount != 5 || a.AnsweredQuizQuestions != 5 || !a.Ready {
				t.Fatalf("unit A readiness=%+v, want fully ready", a)
			}
			if !b.Generated || b.QuizQuestionCount != 5 || b.AnsweredQuizQuestions != 3 || b.Ready {
				t.Fatalf("unit B readiness=%+v, want 3/5 and not ready", b)
			}
			sum := got.Summary
			if sum.ExpectedSubtopics != 2 || sum.GeneratedSubtopics != 2 || sum.TotalQuizQuestions != 10 || sum.AnsweredQuizQuestions != 8 {
				t.Fatalf("Summary=%+v, want 2/2 units and 8/10 questions", sum)
			}
		})
	}

	// Content and question rows load in one batched query per evaluation.
	if contents.batchCalls != len(cases) || questions.batchCalls != len(cases) {
		t.Fatalf("batch queries: content=%d question=%d, want %d each", contents.batchCalls, questions.batchCalls, len(cases))
	}
}

func TestEvaluateModuleReadinessRejections(t *testing.T) {
	userID := uuid.New()
	courseID := uuid.New()
	closing := &types.LearningUnit{ID: uuid.New(), CourseID: courseID, ModuleTitle: "Module One", Title: "Discussion", Kind: types.UnitKindClosingDiscussion}
	unitRepo := &fakeUnitRepo{units: []*types.LearningUnit{closing}}
	svc := NewReadinessService(newTestLogger(t), unitRepo, &fakeContentRepo{}, &fakeQuestionRepo{}, &fakeAttemptRepo{}, 5)

	t.Run("unauthenticated", func(t *testing.T) {
		_, err := svc.EvaluateModuleReadiness(dbctx.New(context.Background()), courseID, closing.ID)
		if !errors.Is(err, pkgerrors.ErrUnauthorized) {
			t.Fatalf("err=%v, want ErrUnauthorized", err)
		}
	})
	t.Run("unknown_module_unit", func(t *testing.T) {
		_, err := svc.EvaluateModuleReadiness(readinessCtx(userID, nil), courseID, uuid.New())
		if !errors.Is(err, pkgerrors.ErrContextUnresolvable) {
			t.Fatalf("err=%v, want ErrContextUnresolvable", err)
		}
	})
	t.Run("course_mismatch", func(t *testing.T) {
		_, err := svc.EvaluateModuleReadiness(readinessCtx(userID, nil), uuid.New(), closing.ID)
		if !errors.Is(err, pkgerrors.ErrContextUnresolvable) {
			t.Fatalf("err=%v, want ErrContextUnresolvable", err)
		}
	})
	t.Run("module_without_content_units", func(t *testing.T) {
		_, err := svc.EvaluateModuleReadiness(readinessCtx(userID, nil), courseID, closing.ID)
		if !errors.Is(err, pkgerrors.ErrContextUnresolvable) {
			t.Fatalf("err=%v, want ErrContextUnresolvable", err)
		}
	})
}

func TestRollupReadiness(t *testing.T) {
	cases := []struct {
		name          string
		perUnit       []UnitReadiness
		minQuestions  int
		wantReady     bool
		wantGenerated int
		wantTotal     int
		wantAnswered  int
		wantPerReady  []bool
	}{
		{
			name: "all_units_ready",
			perUnit: []UnitReadiness{
				{Title: "a", Generated: true, QuizQuestionCount: 5, AnsweredQuizQuestions: 5},
				{Title: "b", Generated: true, QuizQuestionCount: 6, AnsweredQuizQuestions: 6},
			},
			minQuestions:  5,
			wantReady:     true,
			wantGenerated: 2,
			wantTotal:     11,
			wantAnswered:  11,
			wantPerReady:  []bool{true, true},
		},
		{
			name: "mixed_module_not_ready",
			perUnit: []UnitReadiness{
				{Title: "a", Generated: true, QuizQuestionCount: 5, AnsweredQuizQuestions: 5},
				{Title: "b", Generated: true, QuizQuestionCount: 5, AnsweredQuizQuestions: 3},
				{Title: "c", Generated: true, QuizQuestionCount: 3, AnsweredQuizQuestions: 2},
			},
			minQuestions:  5,
			wantReady:     false,
			wantGenerated: 3,
			wantTotal:     13,
			wantAnswered:  10,
			wantPerReady:  []bool{true, false, false},
		},
		{
			name: "below_question_floor_even_if_fully_answered",
			perUnit: []UnitReadiness{
				{Title: "a", Generated: true, QuizQuestionCount: 4, AnsweredQuizQuestions: 4},
			},
			minQuestions: 5,
			wantReady:    false,
			wantGenerated: 1,
			wantTotal:    4,
			wantAnswered: 4,
			wantPerReady: []bool{false},
		},
		{
			name: "quiz_done_but_content_missing",
			perUnit: []UnitReadiness{
				{Title: "a", Generated: false, QuizQuestionCount: 5, AnsweredQuizQuestions: 5},
			},
			minQuestions: 5,
			wantReady:    false,
			wantTotal:    5,
			wantAnswered: 5,
			wantPerReady: []bool{false},
		},
		{
			name:         "empty_module_never_ready",
			perUnit:      nil,
			minQuestions: 5,
			wantReady:    false,
			wantPerReady: nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := rollupReadiness(tc.perUnit, tc.minQuestions)
			if got.Ready != tc.wantReady {
				t.Fatalf("Ready=%v, want %v", got.Ready, tc.wantReady)
			}
			if got.Summary.ExpectedSubtopics != len(tc.perUnit) {
				t.Fatalf("ExpectedSubtopics=%d, want %d", got.Summary.ExpectedSubtopics, len(tc.perUnit))
			}
			if got.Summary.GeneratedSubtopics != tc.wantGenerated {
				t.Fatalf("GeneratedSubtopics=%d, want %d", got.Summary.GeneratedSubtopics, tc.wantGenerated)
			}
			if got.Summary.TotalQuizQuestions != tc.wantTotal {
				t.Fatalf("TotalQuizQuestions=%d, want %d", got.Summary.TotalQuizQuestions, tc.wantTotal)
			}
			if got.Summary.AnsweredQuizQuestions != tc.wantAnswered {
				t.Fatalf("AnsweredQuizQuestions=%d, want %d", got.Summary.AnsweredQuizQuestions, tc.wantAnswered)
			}
			for i, want := range tc.wantPerReady {
				if got.PerUnit[i].Ready != want {
					t.Fatalf("PerUnit[%d].Ready=%v, want %v", i, got.PerUnit[i].Ready, want)
				}
			}
		})
	}
}

func TestNormalizeQuestionText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "  What is   X? ", want: "what is x?"},
		{in: "WHAT IS X?", want: "what is x?"},
		{in: "", want: ""},
	}
	for _, tc := range cases {
		if got := normalizeQuestionText(tc.in); got != tc.want {
			t.Fatalf("normalizeQuestionText(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}
