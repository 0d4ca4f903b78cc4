package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lumenlabs/lumen-backend/internal/discussion"
	"github.com/lumenlabs/lumen-backend/internal/logger"
)

// Evaluator tags on an evaluation result.
const (
	EvaluatorMCQ      = "mcq"
	EvaluatorModel    = "model"
	EvaluatorFallback = "fallback"
)

const (
	genericCorrectFeedback   = "That's right, well done."
	genericIncorrectFeedback = "Not quite. Take another look at the options and give it one more thought."
	genericFallbackFeedback  = "Thanks for your answer. Please revisit the material for this section and try expanding on your reasoning."
)

type GoalAssessment struct {
	GoalID    string `json:"goalId"`
	Satisfied bool   `json:"satisfied"`
	Notes     string `json:"notes,omitempty"`
}

type Evaluation struct {
	CoveredGoals  []string         `json:"coveredGoals"`
	Assessments   []GoalAssessment `json:"assessments"`
	CoachFeedback string           `json:"coachFeedback"`
	Evaluator     string           `json:"evaluator"`
}

type EvaluateInput struct {
	Response     string
	Step         discussion.DialogueStep
	Goals        []discussion.LearningGoal
	ContextBrief string
}

// EvaluatorService scores a learner response against the active step.
// Choice steps are judged deterministically and locally; open steps go to
// the model with each referenced goal's rubric. It never returns an error:
// a failed model call degrades to the fallback evaluation.
type EvaluatorService interface {
	Evaluate(ctx context.Context, in EvaluateInput) Evaluation
}

type evaluatorService struct {
	log        *logger.Logger
	ai         OpenAIClient
	llmTimeout time.Duration
}

func NewEvaluatorService(log *logger.Logger, ai OpenAIClient, llmTimeout time.Duration) EvaluatorService {
	return &evaluatorService{
		log:        log.With("service", "EvaluatorService"),
		ai:         ai,
		llmTimeout: llmTimeout,
	}
}

func (s *evaluatorService) Evaluate(ctx context.Context, in EvaluateInput) Evaluation {
	if len(in.Step.GoalRefs) == 0 {
		// Ungraded step: nothing to judge, no feedback required.
		return Evaluation{CoveredGoals: []string{}, Assessments: []GoalAssessment{}}
	}

	if in.Step.ExpectedType == discussion.ExpectedMCQ && in.Step.Answer != nil && !in.Step.Answer.Empty() {
		return evaluateChoice(in)
	}
	return s.evaluateOpen(ctx, in)
}

// evaluateChoice is deterministic and local. The learner's response matches
// the canonical answer by exact option text, by letter label, or by 1-based
// position; any one match suffices.
func evaluateChoice(in EvaluateInput) Evaluation {
	canonical, ok := canonicalOptionIndex(in.Step)
	if !ok {
		// A malformed canonical answer cannot be graded honestly.
		return fallbackEvaluation(in.Step.GoalRefs)
	}

	matched := responseMatchesOption(in.Response, in.Step.Options, canonical)

	eval := Evaluation{
		Evaluator:    EvaluatorMCQ,
		CoveredGoals: []string{},
		Assessments:  make([]GoalAssessment, 0, len(in.Step.GoalRefs)),
	}
	for _, goalID := range in.Step.GoalRefs {
		note := "incorrect option selected"
		if matched {
			note = "correct option selected"
		}
		eval.Assessments = append(eval.Assessments, GoalAssessment{GoalID: goalID, Satisfied: matched, Notes: note})
	}
	if matched {
		eval.CoveredGoals = append(eval.CoveredGoals, in.Step.GoalRefs...)
		eval.CoachFeedback = genericCorrectFeedback
		if in.Step.Feedback != nil && in.Step.Feedback.Correct != "" {
			eval.CoachFeedback = in.Step.Feedback.Correct
		}
	} else {
		eval.CoachFeedback = genericIncorrectFeedback
		if in.Step.Feedback != nil && in.Step.Feedback.Incorrect != "" {
			eval.CoachFeedback = in.Step.Feedback.Incorrect
		}
	}
	return eval
}

// canonicalOptionIndex resolves the step's stored answer to a 0-based option
// index. Numeric answers are already indexes; text answers are matched
// against option text or a letter label.
func canonicalOptionIndex(step discussion.DialogueStep) (int, bool) {
	if step.Answer == nil || len(step.Options) == 0 {
		return 0, false
	}
	if step.Answer.Index != nil {
		i := *step.Answer.Index
		if i >= 0 && i < len(step.Options) {
			return i, true
		}
		return 0, false
	}
	normAnswer := normalizeAnswerText(step.Answer.Text)
	for i, opt := range step.Options {
		if normalizeAnswerText(opt) == normAnswer {
			return i, true
		}
	}
	if i, ok := letterIndex(normAnswer); ok && i < len(step.Options) {
		return i, true
	}
	return 0, false
}

func responseMatchesOption(response string, options []string, canonical int) bool {
	norm := normalizeAnswerText(response)
	if norm == "" {
		return false
	}
	if norm == normalizeAnswerText(options[canonical]) {
		return true
	}
	if i, ok := letterIndex(norm); ok && i == canonical {
		return true
	}
	if n, err := strconv.Atoi(norm); err == nil && n-1 == canonical {
		return true
	}
	return false
}

func normalizeAnswerText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

// letterIndex maps a single letter label (a, b, c, ...) to its option index.
func letterIndex(norm string) (int, bool) {
	trimmed := strings.TrimRight(norm, ".):")
	if len(trimmed) != 1 {
		return 0, false
	}
	c := trimmed[0]
	if c < 'a' || c > 'z' {
		return 0, false
	}
	return int(c - 'a'), true
}

const evaluationSystemPrompt = `You are a strict but encouraging coach reviewing one learner answer in a
Socratic discussion. Judge, for each listed learning goal, whether this answer
alone demonstrates the goal per its rubric. Be conservative: vague or
restated-question answers do not satisfy a goal. Then write one short
coach-feedback paragraph (2-3 sentences) for the learner, in the same language
as the course material: acknowledge what was right, point at what is missing,
and never reveal solutions outright.`

func (s *evaluatorService) evaluateOpen(ctx context.Context, in EvaluateInput) Evaluation {
	callCtx, cancel := context.WithTimeout(ctx, s.llmTimeout)
	defer cancel()

	obj, err := s.ai.GenerateJSON(callCtx, evaluationSystemPrompt, buildEvaluationPrompt(in), discussion.EvaluationSchemaName, discussion.EvaluationSchema())
	if err != nil {
		s.log.Warn("Open-step evaluation model call failed", "step_key", in.Step.Key, "error", err)
		return fallbackEvaluation(in.Step.GoalRefs)
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return fallbackEvaluation(in.Step.GoalRefs)
	}
	var decoded struct {
		Assessments   []GoalAssessment `json:"assessments"`
		CoachFeedback string           `json:"coachFeedback"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		s.log.Warn("Open-step evaluation output unparsable", "step_key", in.Step.Key, "error", err)
		return fallbackEvaluation(in.Step.GoalRefs)
	}

	// Only goals the step actually references are eligible; anything else
	// the model volunteered is discarded.
	eligible := make(map[string]bool, len(in.Step.GoalRefs))
	for _, id := range in.Step.GoalRefs {
		eligible[id] = true
	}

	eval := Evaluation{
		Evaluator:    EvaluatorModel,
		CoveredGoals: []string{},
		Assessments:  []GoalAssessment{},
	}
	for _, a := range decoded.Assessments {
		if !eligible[a.GoalID] {
			continue
		}
		eval.Assessments = append(eval.Assessments, a)
		if a.Satisfied {
			eval.CoveredGoals = append(eval.CoveredGoals, a.GoalID)
		}
	}
	eval.CoachFeedback = strings.TrimSpace(decoded.CoachFeedback)
	if eval.CoachFeedback == "" {
		eval.CoachFeedback = genericFallbackFeedback
	}
	return eval
}

func buildEvaluationPrompt(in EvaluateInput) string {
	var b strings.Builder
	if strings.TrimSpace(in.ContextBrief) != "" {
		fmt.Fprintf(&b, "Course material context:\n%s\n\n", in.ContextBrief)
	}
	b.WriteString("Learning goals under review:\n")
	for _, g := range in.Goals {
		fmt.Fprintf(&b, "- id: %s\n  description: %s\n", g.ID, g.Description)
		if g.Rubric != nil {
			if g.Rubric.SuccessSummary != "" {
				fmt.Fprintf(&b, "  success looks like: %s\n", g.Rubric.SuccessSummary)
			}
			for _, item := range g.Rubric.Checklist {
				fmt.Fprintf(&b, "  checklist: %s\n", item)
			}
			for _, sig := range g.Rubric.FailureSignals {
				fmt.Fprintf(&b, "  failure signal: %s\n", sig)
			}
		}
	}
	fmt.Fprintf(&b, "\nQuestion asked:\n%s\n", in.Step.Prompt)
	fmt.Fprintf(&b, "\nLearner's answer:\n%s\n", in.Response)
	return b.String()
}

// fallbackEvaluation is the degraded path: nothing satisfied, a generic
// invitation to revisit the material. Never an error to the caller.
func fallbackEvaluation(goalRefs []string) Evaluation {
	assessments := make([]GoalAssessment, 0, len(goalRefs))
	for _, id := range goalRefs {
		assessments = append(assessments, GoalAssessment{GoalID: id, Satisfied: false, Notes: "evaluation unavailable"})
	}
	return Evaluation{
		CoveredGoals:  []string{},
		Assessments:   assessments,
		CoachFeedback: genericFallbackFeedback,
		Evaluator:     EvaluatorFallback,
	}
}
