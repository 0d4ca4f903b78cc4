package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lumenlabs/lumen-backend/internal/discussion"
	"github.com/lumenlabs/lumen-backend/internal/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("production")
	if err != nil {
		t.Fatalf("init test logger: %v", err)
	}
	return log
}

type fakeOpenAIClient struct {
	result map[string]any
	err    error
	calls  int
}

func (f *fakeOpenAIClient) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func mcqStep() discussion.DialogueStep {
	idx := 1
	return discussion.DialogueStep{
		Key:          "p1",
		Prompt:       "Which statement is correct?",
		ExpectedType: discussion.ExpectedMCQ,
		Options:      []string{"Option A", "Option B", "Option C", "Option D"},
		Answer:       &discussion.StepAnswer{Index: &idx},
		Feedback:     &discussion.StepFeedback{Correct: "Exactly.", Incorrect: "Look again."},
		GoalRefs:     []string{"g2"},
	}
}

func TestEvaluateChoiceMatching(t *testing.T) {
	cases := []struct {
		name     string
		response string
		want     bool
	}{
		{name: "exact_text", response: "Option B", want: true},
		{name: "case_and_spacing", response: "  option   b ", want: true},
		{name: "letter_lower", response: "b", want: true},
		{name: "letter_upper", response: "B", want: true},
		{name: "letter_punctuated", response: "b)", want: true},
		{name: "one_based_ordinal", response: "2", want: true},
		{name: "zero_based_is_wrong", response: "1", want: false},
		{name: "wrong_letter", response: "a", want: false},
		{name: "wrong_text", response: "Option C", want: false},
		{name: "empty", response: "   ", want: false},
		{name: "unrelated", response: "maybe the third one", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eval := evaluateChoice(EvaluateInput{Response: tc.response, Step: mcqStep()})
			if eval.Evaluator != EvaluatorMCQ {
				t.Fatalf("Evaluator=%q, want %q", eval.Evaluator, EvaluatorMCQ)
			}
			gotCorrect := len(eval.CoveredGoals) == 1
			if gotCorrect != tc.want {
				t.Fatalf("response %q graded correct=%v, want %v", tc.response, gotCorrect, tc.want)
			}
			if len(eval.Assessments) != 1 || eval.Assessments[0].GoalID != "g2" {
				t.Fatalf("assessments=%+v, want one for g2", eval.Assessments)
			}
			if eval.Assessments[0].Satisfied != tc.want {
				t.Fatalf("satisfied=%v, want %v", eval.Assessments[0].Satisfied, tc.want)
			}
			wantFeedback := "Look again."
			if tc.want {
				wantFeedback = "Exactly."
			}
			if eval.CoachFeedback != wantFeedback {
				t.Fatalf("feedback=%q, want %q", eval.CoachFeedback, wantFeedback)
			}
		})
	}
}

func TestEvaluateChoiceIsDeterministic(t *testing.T) {
	in := EvaluateInput{Response: "b", Step: mcqStep()}
	first := evaluateChoice(in)
	for i := 0; i < 5; i++ {
		again := evaluateChoice(in)
		if again.CoachFeedback != first.CoachFeedback || len(again.CoveredGoals) != len(first.CoveredGoals) {
			t.Fatalf("evaluation %d diverged: %+v vs %+v", i, again, first)
		}
	}
}

func TestEvaluateChoiceTextAnswer(t *testing.T) {
	step := mcqStep()
	step.Answer = &discussion.StepAnswer{Text: "Option B"}
	eval := evaluateChoice(EvaluateInput{Response: "2", Step: step})
	if len(eval.CoveredGoals) != 1 {
		t.Fatalf("text canonical answer not resolved: %+v", eval)
	}

	step.Answer = &discussion.StepAnswer{Text: "b"}
	eval = evaluateChoice(EvaluateInput{Response: "Option B", Step: step})
	if len(eval.CoveredGoals) != 1 {
		t.Fatalf("letter canonical answer not resolved: %+v", eval)
	}
}

func TestEvaluateChoiceMalformedAnswerFallsBack(t *testing.T) {
	step := mcqStep()
	out := 9
	step.Answer = &discussion.StepAnswer{Index: &out}
	eval := evaluateChoice(EvaluateInput{Response: "b", Step: step})
	if eval.Evaluator != EvaluatorFallback {
		t.Fatalf("Evaluator=%q, want fallback for out-of-range canonical index", eval.Evaluator)
	}
	if len(eval.CoveredGoals) != 0 {
		t.Fatalf("fallback covered goals=%v, want none", eval.CoveredGoals)
	}
}

func TestEvaluateUngradedStep(t *testing.T) {
	svc := NewEvaluatorService(newTestLogger(t), &fakeOpenAIClient{err: errors.New("should not be called")}, time.Second)
	step := discussion.DialogueStep{Key: "s1", Prompt: "Reflect.", ExpectedType: discussion.ExpectedReflection}
	eval := svc.Evaluate(context.Background(), EvaluateInput{Response: "thoughts", Step: step})
	if eval.Evaluator != "" || len(eval.CoveredGoals) != 0 || len(eval.Assessments) != 0 || eval.CoachFeedback != "" {
		t.Fatalf("ungraded step evaluation=%+v, want empty", eval)
	}
}

func TestEvaluateOpenModelPath(t *testing.T) {
	client := &fakeOpenAIClient{result: map[string]any{
		"assessments": []any{
			map[string]any{"goalId": "g1", "satisfied": true, "notes": "names the definition"},
			map[string]any{"goalId": "volunteered", "satisfied": true, "notes": "not asked"},
		},
		"coachFeedback": "Good, now connect it to the second case.",
	}}
	svc := NewEvaluatorService(newTestLogger(t), client, time.Second)

	step := discussion.DialogueStep{
		Key:          "d1",
		Prompt:       "What do you already know?",
		ExpectedType: discussion.ExpectedOpen,
		GoalRefs:     []string{"g1"},
	}
	eval := svc.Evaluate(context.Background(), EvaluateInput{
		Response: "It is the rule that ...",
		Step:     step,
		Goals:    []discussion.LearningGoal{{ID: "g1", Description: "Recall the definition"}},
	})

	if eval.Evaluator != EvaluatorModel {
		t.Fatalf("Evaluator=%q, want %q", eval.Evaluator, EvaluatorModel)
	}
	if len(eval.CoveredGoals) != 1 || eval.CoveredGoals[0] != "g1" {
		t.Fatalf("CoveredGoals=%v, want volunteered goal discarded", eval.CoveredGoals)
	}
	if len(eval.Assessments) != 1 {
		t.Fatalf("Assessments=%+v, want only the referenced goal", eval.Assessments)
	}
	if eval.CoachFeedback != "Good, now connect it to the second case." {
		t.Fatalf("CoachFeedback=%q", eval.CoachFeedback)
	}
}

func TestEvaluateOpenModelFailureDegrades(t *testing.T) {
	client := &fakeOpenAIClient{err: errors.New("rate limited")}
	svc := NewEvaluatorService(newTestLogger(t), client, time.Second)

	step := discussion.DialogueStep{
		Key:          "e1",
		Prompt:       "Why?",
		ExpectedType: discussion.ExpectedOpen,
		GoalRefs:     []string{"g1", "g2"},
	}
	eval := svc.Evaluate(context.Background(), EvaluateInput{Response: "because", Step: step})

	if eval.Evaluator != EvaluatorFallback {
		t.Fatalf("Evaluator=%q, want %q", eval.Evaluator, EvaluatorFallback)
	}
	if len(eval.CoveredGoals) != 0 {
		t.Fatalf("CoveredGoals=%v, want none on fallback", eval.CoveredGoals)
	}
	if len(eval.Assessments) != 2 {
		t.Fatalf("Assessments=%+v, want one unsatisfied per referenced goal", eval.Assessments)
	}
	for _, a := range eval.Assessments {
		if a.Satisfied {
			t.Fatalf("fallback marked %s satisfied", a.GoalID)
		}
	}
	if eval.CoachFeedback == "" {
		t.Fatal("fallback must carry generic coach feedback")
	}
}
