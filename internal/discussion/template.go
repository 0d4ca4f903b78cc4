package discussion

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Phase identifiers. A valid template carries all four, in this order.
const (
	PhaseDiagnosis   = "diagnosis"
	PhaseExploration = "exploration"
	PhasePractice    = "practice"
	PhaseSynthesis   = "synthesis"

	// PhaseCompleted is the terminal phase marker on a finished session.
	PhaseCompleted = "completed"
)

var PhaseOrder = []string{PhaseDiagnosis, PhaseExploration, PhasePractice, PhaseSynthesis}

// Step expected-response types.
const (
	ExpectedOpen       = "open"
	ExpectedMCQ        = "mcq"
	ExpectedScale      = "scale"
	ExpectedReflection = "reflection"
)

// Session status values.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Message roles and metadata kinds.
const (
	RoleAgent   = "agent"
	RoleStudent = "student"

	MessageKindPrompt   = "prompt"
	MessageKindFeedback = "feedback"
	MessageKindClosing  = "closing"
)

// Template sources.
const (
	SourceUnit   = "unit"
	SourceModule = "module"
)

type Rubric struct {
	SuccessSummary string   `json:"successSummary"`
	Checklist      []string `json:"checklist"`
	FailureSignals []string `json:"failureSignals,omitempty"`
}

type LearningGoal struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Rubric      *Rubric `json:"rubric,omitempty"`
}

// GoalState is the session-local coverage copy of a learning goal. Covered
// flips false→true only, never back.
type GoalState struct {
	LearningGoal
	Covered bool `json:"covered"`
}

type StepFeedback struct {
	Correct   string `json:"correct,omitempty"`
	Incorrect string `json:"incorrect,omitempty"`
}

// StepAnswer is the canonical mcq answer: either the 0-based option index or
// the option text. The model may emit either shape.
type StepAnswer struct {
	Text  string
	Index *int
}

func (a *StepAnswer) UnmarshalJSON(b []byte) error {
	trimmed := strings.TrimSpace(string(b))
	if trimmed == "null" {
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		// A quoted integer still means an option index.
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			a.Index = &n
			return nil
		}
		a.Text = s
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("mcq answer must be a string or an integer: %w", err)
	}
	a.Index = &n
	return nil
}

func (a StepAnswer) MarshalJSON() ([]byte, error) {
	if a.Index != nil {
		return json.Marshal(*a.Index)
	}
	return json.Marshal(a.Text)
}

func (a StepAnswer) Empty() bool {
	return a.Index == nil && strings.TrimSpace(a.Text) == ""
}

type DialogueStep struct {
	Key          string        `json:"key"`
	Prompt       string        `json:"prompt"`
	ExpectedType string        `json:"expectedType,omitempty"`
	Options      []string      `json:"options,omitempty"`
	Answer       *StepAnswer   `json:"answer,omitempty"`
	Feedback     *StepFeedback `json:"feedback,omitempty"`
	GoalRefs     []string      `json:"goalRefs,omitempty"`
}

type DialoguePhase struct {
	ID    string         `json:"id"`
	Steps []DialogueStep `json:"steps"`
}

// TemplateDoc is the versioned dialogue script stored in the templates table.
type TemplateDoc struct {
	Phases         []DialoguePhase `json:"phases"`
	LearningGoals  []LearningGoal  `json:"learningGoals"`
	ClosingMessage string          `json:"closingMessage,omitempty"`
}

// Normalize applies the load-time invariants: default expected types, trimmed
// keys, and silent removal of goalRefs that point at unknown goal ids. It is
// graceful degradation, not an error, so templates written before a goal was
// renamed still load.
func (t *TemplateDoc) Normalize() {
	known := make(map[string]bool, len(t.LearningGoals))
	for _, g := range t.LearningGoals {
		known[g.ID] = true
	}
	for pi := range t.Phases {
		for si := range t.Phases[pi].Steps {
			step := &t.Phases[pi].Steps[si]
			step.Key = strings.TrimSpace(step.Key)
			if step.ExpectedType == "" {
				step.ExpectedType = ExpectedOpen
			}
			if len(step.GoalRefs) > 0 {
				kept := step.GoalRefs[:0]
				for _, ref := range step.GoalRefs {
					if known[ref] {
						kept = append(kept, ref)
					}
				}
				step.GoalRefs = kept
			}
		}
	}
}

// Validate enforces the structural requirements a synthesized template must
// satisfy before it is accepted and persisted.
func (t *TemplateDoc) Validate() error {
	if len(t.Phases) == 0 {
		return fmt.Errorf("template has no phases")
	}
	if len(t.Phases) != len(PhaseOrder) {
		return fmt.Errorf("template has %d phases, want %d", len(t.Phases), len(PhaseOrder))
	}
	for i, phase := range t.Phases {
		if phase.ID != PhaseOrder[i] {
			return fmt.Errorf("phase %d is %q, want %q", i, phase.ID, PhaseOrder[i])
		}
		if len(phase.Steps) == 0 {
			return fmt.Errorf("phase %q has no steps", phase.ID)
		}
	}

	seen := make(map[string]bool)
	hasMCQ := false
	for _, phase := range t.Phases {
		for _, step := range phase.Steps {
			if step.Key == "" {
				return fmt.Errorf("phase %q contains a step with an empty key", phase.ID)
			}
			if seen[step.Key] {
				return fmt.Errorf("duplicate step key %q", step.Key)
			}
			seen[step.Key] = true
			if step.ExpectedType == ExpectedMCQ && mcqComplete(step) {
				hasMCQ = true
			}
		}
	}
	if !hasMCQ {
		return fmt.Errorf("template has no complete mcq step")
	}

	if len(t.LearningGoals) == 0 {
		return fmt.Errorf("template has no learning goals")
	}
	for i, g := range t.LearningGoals {
		if strings.TrimSpace(g.ID) == "" || strings.TrimSpace(g.Description) == "" {
			return fmt.Errorf("learning goal %d is missing id or description", i)
		}
	}
	return nil
}

func mcqComplete(step DialogueStep) bool {
	if len(step.Options) < 2 {
		return false
	}
	if step.Answer == nil || step.Answer.Empty() {
		return false
	}
	if step.Feedback == nil || step.Feedback.Correct == "" || step.Feedback.Incorrect == "" {
		return false
	}
	return true
}

// GoalByID returns the authoring copy of a goal, if present.
func (t *TemplateDoc) GoalByID(id string) (LearningGoal, bool) {
	for _, g := range t.LearningGoals {
		if g.ID == id {
			return g, true
		}
	}
	return LearningGoal{}, false
}

// SeedGoalStates builds the session-local coverage copy from the template's
// goal list, everything uncovered.
func (t *TemplateDoc) SeedGoalStates() []GoalState {
	states := make([]GoalState, 0, len(t.LearningGoals))
	for _, g := range t.LearningGoals {
		states = append(states, GoalState{LearningGoal: g})
	}
	return states
}

// MergeCovered flips the named goals to covered. Coverage is monotonic: ids
// already covered stay covered, unknown ids are ignored. Returns the number
// of goals newly covered.
func MergeCovered(states []GoalState, coveredIDs []string) int {
	if len(coveredIDs) == 0 {
		return 0
	}
	flipped := 0
	for _, id := range coveredIDs {
		for i := range states {
			if states[i].ID == id && !states[i].Covered {
				states[i].Covered = true
				flipped++
			}
		}
	}
	return flipped
}

// RefreshGoalDetails merges later template goal-detail changes into the
// session copy without touching covered flags.
func RefreshGoalDetails(states []GoalState, tpl *TemplateDoc) {
	for i := range states {
		if g, ok := tpl.GoalByID(states[i].ID); ok {
			states[i].Description = g.Description
			states[i].Rubric = g.Rubric
		}
	}
}

func AllCovered(states []GoalState) bool {
	if len(states) == 0 {
		return false
	}
	for _, s := range states {
		if !s.Covered {
			return false
		}
	}
	return true
}

func CoveredCount(states []GoalState) int {
	n := 0
	for _, s := range states {
		if s.Covered {
			n++
		}
	}
	return n
}
