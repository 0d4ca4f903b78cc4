package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/lumenlabs/lumen-backend/internal/discussion"
	"github.com/lumenlabs/lumen-backend/internal/logger"
	"github.com/lumenlabs/lumen-backend/internal/pkg/dbctx"
	pkgerrors "github.com/lumenlabs/lumen-backend/internal/pkg/errors"
	"github.com/lumenlabs/lumen-backend/internal/repos"
	"github.com/lumenlabs/lumen-backend/internal/requestdata"
	"github.com/lumenlabs/lumen-backend/internal/types"
)

type StartInput struct {
	CourseID    uuid.UUID
	UnitID      *uuid.UUID
	UnitTitle   string
	ModuleTitle string
}

type HistoryQuery struct {
	SessionID *uuid.UUID
	CourseID  uuid.UUID
	UnitID    *uuid.UUID
}

// StepView is the client-facing shape of the step awaiting an answer.
type StepView struct {
	Key          string   `json:"key"`
	Prompt       string   `json:"prompt"`
	Phase        string   `json:"phase"`
	ExpectedType string   `json:"expectedType"`
	Options      []string `json:"options,omitempty"`
}

type DiscussionState struct {
	Session         *types.DiscussionSession   `json:"session"`
	TemplateVersion string                     `json:"templateVersion"`
	Messages        []*types.DiscussionMessage `json:"messages"`
	CurrentStep     *StepView                  `json:"currentStep"`
}

// messageMeta is the metadata envelope on every agent message. Kind
// distinguishes gradable prompts from feedback and closing meta-messages,
// which step derivation must skip.
type messageMeta struct {
	Kind         string           `json:"kind,omitempty"`
	Phase        string           `json:"phase,omitempty"`
	ExpectedType string           `json:"expectedType,omitempty"`
	Options      []string         `json:"options,omitempty"`
	Evaluator    string           `json:"evaluator,omitempty"`
	Assessments  []GoalAssessment `json:"assessments,omitempty"`
	CoveredGoals []string         `json:"coveredGoals,omitempty"`
}

// DiscussionService is the progression controller: it owns session
// lifecycle, step transitions and goal-coverage state.
//
// Known gap, kept deliberately: concurrent Respond calls against the same
// session are not linearized, and a storage failure after a successful model
// evaluation loses that evaluation (at-most-once, no idempotency key).
type DiscussionService interface {
	Start(dbc dbctx.Context, in StartInput) (*DiscussionState, error)
	Respond(dbc dbctx.Context, sessionID uuid.UUID, message string) (*DiscussionState, error)
	History(dbc dbctx.Context, q HistoryQuery) (*DiscussionState, error)
}

type discussionService struct {
	log          *logger.Logger
	sessionRepo  repos.DiscussionSessionRepo
	messageRepo  repos.DiscussionMessageRepo
	unitRepo     repos.LearningUnitRepo
	progressRepo repos.UnitProgressRepo
	templateSvc  TemplateService
	contentSvc   ContentService
	evaluatorSvc EvaluatorService
}

func NewDiscussionService(
	log *logger.Logger,
	sessionRepo repos.DiscussionSessionRepo,
	messageRepo repos.DiscussionMessageRepo,
	unitRepo repos.LearningUnitRepo,
	progressRepo repos.UnitProgressRepo,
	templateSvc TemplateService,
	contentSvc ContentService,
	evaluatorSvc EvaluatorService,
) DiscussionService {
	return &discussionService{
		log:          log.With("service", "DiscussionService"),
		sessionRepo:  sessionRepo,
		messageRepo:  messageRepo,
		unitRepo:     unitRepo,
		progressRepo: progressRepo,
		templateSvc:  templateSvc,
		contentSvc:   contentSvc,
		evaluatorSvc: evaluatorSvc,
	}
}

func (s *discussionService) Start(dbc dbctx.Context, in StartInput) (*DiscussionState, error) {
	rd := requestdata.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, pkgerrors.ErrUnauthorized
	}

	key, unit, err := s.contentSvc.ResolveUnitKey(dbc, in.CourseID, in.UnitID, in.UnitTitle, in.ModuleTitle)
	if err != nil {
		return nil, err
	}

	tplRow, tplDoc, err := s.resolveTemplate(dbc, key, unit)
	if err != nil {
		return nil, err
	}

	session, err := s.sessionRepo.FindByIdentity(dbc.Ctx, dbc.Tx, rd.UserID, key.CourseID, key.UnitID)
	created := false
	if err != nil {
		if !errors.Is(err, pkgerrors.ErrNotFound) {
			return nil, err
		}
		session, err = s.createSession(dbc, rd.UserID, key, tplRow, tplDoc)
		if err != nil {
			return nil, err
		}
		created = true
	}

	// A resumed session stays bound to its original template version.
	if !created && session.TemplateID != tplRow.ID {
		tplRow, tplDoc, err = s.templateSvc.GetByID(dbc, session.TemplateID)
		if err != nil {
			return nil, err
		}
	}

	if created {
		// Create may have lost a concurrent race and returned the existing
		// session; only seed the opening prompt into an empty transcript.
		existing, err := s.messageRepo.ListBySession(dbc.Ctx, dbc.Tx, session.ID)
		if err != nil {
			return nil, err
		}
		if len(existing) == 0 {
			first, ok := discussion.NewCursor(tplDoc).First()
			if !ok {
				return nil, pkgerrors.ErrTemplateUnavailable
			}
			if err := s.appendPrompt(dbc, session.ID, first); err != nil {
				return nil, err
			}
		}
	}

	return s.buildState(dbc, session, tplRow, tplDoc)
}

func (s *discussionService) Respond(dbc dbctx.Context, sessionID uuid.UUID, message string) (*DiscussionState, error) {
	rd := requestdata.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, pkgerrors.ErrUnauthorized
	}
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: message required", pkgerrors.ErrInvalidArgument)
	}

	session, err := s.sessionRepo.GetByID(dbc.Ctx, dbc.Tx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != rd.UserID {
		return nil, pkgerrors.ErrUnauthorized
	}
	if session.Status == discussion.StatusCompleted {
		return nil, fmt.Errorf("%w: session already completed", pkgerrors.ErrInvalidSessionState)
	}

	tplRow, tplDoc, err := s.templateSvc.GetByID(dbc, session.TemplateID)
	if err != nil {
		return nil, err
	}
	cursor := discussion.NewCursor(tplDoc)

	messages, err := s.messageRepo.ListBySession(dbc.Ctx, dbc.Tx, session.ID)
	if err != nil {
		return nil, err
	}
	current, ok := cursor.Find(pendingStepKey(messages))
	if !ok {
		return nil, pkgerrors.ErrTemplateUnavailable
	}

	// Persist the learner's answer before evaluation so the transcript
	// keeps it even if everything after degrades.
	_, err = s.messageRepo.Append(dbc.Ctx, dbc.Tx, &types.DiscussionMessage{
		SessionID: session.ID,
		Role:      discussion.RoleStudent,
		Content:   message,
		StepKey:   current.Step.Key,
		Metadata:  mustJSON(messageMeta{Phase: current.PhaseID, ExpectedType: current.Step.ExpectedType}),
	})
	if err != nil {
		return nil, err
	}

	states := decodeGoalStates(session.LearningGoals)
	discussion.RefreshGoalDetails(states, tplDoc)

	eval := s.evaluatorSvc.Evaluate(dbc.Ctx, EvaluateInput{
		Response:     message,
		Step:         current.Step,
		Goals:        goalDetails(tplDoc, current.Step.GoalRefs),
		ContextBrief: s.contextBrief(dbc, session),
	})

	if eval.CoachFeedback != "" {
		_, err = s.messageRepo.Append(dbc.Ctx, dbc.Tx, &types.DiscussionMessage{
			SessionID: session.ID,
			Role:      discussion.RoleAgent,
			Content:   eval.CoachFeedback,
			StepKey:   current.Step.Key,
			Metadata: mustJSON(messageMeta{
				Kind:         discussion.MessageKindFeedback,
				Phase:        current.PhaseID,
				Evaluator:    eval.Evaluator,
				Assessments:  eval.Assessments,
				CoveredGoals: eval.CoveredGoals,
			}),
		})
		if err != nil {
			return nil, err
		}
	}

	discussion.MergeCovered(states, eval.CoveredGoals)

	next, hasNext := cursor.NextAfter(current.Step.Key)
	if discussion.AllCovered(states) || !hasNext {
		if err := s.completeSession(dbc, session, tplDoc, states); err != nil {
			return nil, err
		}
	} else {
		if err := s.advanceSession(dbc, session, states, next); err != nil {
			return nil, err
		}
	}

	return s.buildState(dbc, session, tplRow, tplDoc)
}

func (s *discussionService) History(dbc dbctx.Context, q HistoryQuery) (*DiscussionState, error) {
	rd := requestdata.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, pkgerrors.ErrUnauthorized
	}

	var session *types.DiscussionSession
	var err error
	switch {
	case q.SessionID != nil && *q.SessionID != uuid.Nil:
		session, err = s.sessionRepo.GetByID(dbc.Ctx, dbc.Tx, *q.SessionID)
	case q.UnitID != nil && *q.UnitID != uuid.Nil:
		session, err = s.sessionRepo.FindByIdentity(dbc.Ctx, dbc.Tx, rd.UserID, q.CourseID, *q.UnitID)
	default:
		return nil, fmt.Errorf("%w: sessionId or courseId+unitId required", pkgerrors.ErrInvalidArgument)
	}
	if err != nil {
		return nil, err
	}
	if session.UserID != rd.UserID {
		return nil, pkgerrors.ErrUnauthorized
	}

	tplRow, tplDoc, err := s.templateSvc.GetByID(dbc, session.TemplateID)
	if err != nil {
		return nil, err
	}
	return s.buildState(dbc, session, tplRow, tplDoc)
}

// resolveTemplate fetches the newest template for the unit, synthesizing one
// (exactly once) when none exists. A closing-discussion unit gets a
// module-scope script spanning its whole module.
func (s *discussionService) resolveTemplate(dbc dbctx.Context, key discussion.UnitKey, unit *types.LearningUnit) (*types.DiscussionTemplate, *discussion.TemplateDoc, error) {
	tplRow, tplDoc, err := s.templateSvc.GetLatest(dbc, key)
	if err == nil {
		return tplRow, tplDoc, nil
	}
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		return nil, nil, err
	}

	if unit.Kind == types.UnitKindClosingDiscussion {
		units, listErr := s.unitRepo.ListByModule(dbc.Ctx, dbc.Tx, key.CourseID, key.ModuleTitle)
		if listErr != nil {
			return nil, nil, listErr
		}
		tplRow, tplDoc, err = s.templateSvc.SynthesizeModule(dbc, key, units)
	} else {
		tplRow, tplDoc, err = s.templateSvc.SynthesizeUnit(dbc, key)
	}
	if err != nil {
		return nil, nil, err
	}
	if tplRow == nil {
		return nil, nil, pkgerrors.ErrTemplateUnavailable
	}
	return tplRow, tplDoc, nil
}

func (s *discussionService) createSession(dbc dbctx.Context, userID uuid.UUID, key discussion.UnitKey, tplRow *types.DiscussionTemplate, tplDoc *discussion.TemplateDoc) (*types.DiscussionSession, error) {
	firstPhase := tplDoc.Phases[0].ID
	session := &types.DiscussionSession{
		UserID:        userID,
		CourseID:      key.CourseID,
		UnitID:        key.UnitID,
		Status:        discussion.StatusInProgress,
		Phase:         firstPhase,
		LearningGoals: mustJSON(tplDoc.SeedGoalStates()),
		TemplateID:    tplRow.ID,
	}
	return s.sessionRepo.Create(dbc.Ctx, dbc.Tx, session)
}

func (s *discussionService) appendPrompt(dbc dbctx.Context, sessionID uuid.UUID, ref discussion.StepRef) error {
	_, err := s.messageRepo.Append(dbc.Ctx, dbc.Tx, &types.DiscussionMessage{
		SessionID: sessionID,
		Role:      discussion.RoleAgent,
		Content:   ref.Step.Prompt,
		StepKey:   ref.Step.Key,
		Metadata: mustJSON(messageMeta{
			Kind:         discussion.MessageKindPrompt,
			Phase:        ref.PhaseID,
			ExpectedType: ref.Step.ExpectedType,
			Options:      ref.Step.Options,
		}),
	})
	return err
}

func (s *discussionService) advanceSession(dbc dbctx.Context, session *types.DiscussionSession, states []discussion.GoalState, next discussion.StepRef) error {
	if err := s.sessionRepo.Update(dbc.Ctx, dbc.Tx, session.ID, map[string]interface{}{
		"phase":          next.PhaseID,
		"learning_goals": mustJSON(states),
	}); err != nil {
		return err
	}
	session.Phase = next.PhaseID
	session.LearningGoals = mustJSON(states)

	return s.appendPrompt(dbc, session.ID, next)
}

func (s *discussionService) completeSession(dbc dbctx.Context, session *types.DiscussionSession, tplDoc *discussion.TemplateDoc, states []discussion.GoalState) error {
	closing := strings.TrimSpace(tplDoc.ClosingMessage)
	if closing == "" {
		closing = buildClosingSummary(states)
	}
	_, err := s.messageRepo.Append(dbc.Ctx, dbc.Tx, &types.DiscussionMessage{
		SessionID: session.ID,
		Role:      discussion.RoleAgent,
		Content:   closing,
		Metadata:  mustJSON(messageMeta{Kind: discussion.MessageKindClosing, Phase: discussion.PhaseCompleted}),
	})
	if err != nil {
		return err
	}

	if err := s.sessionRepo.Update(dbc.Ctx, dbc.Tx, session.ID, map[string]interface{}{
		"status":         discussion.StatusCompleted,
		"phase":          discussion.PhaseCompleted,
		"learning_goals": mustJSON(states),
	}); err != nil {
		return err
	}
	session.Status = discussion.StatusCompleted
	session.Phase = discussion.PhaseCompleted
	session.LearningGoals = mustJSON(states)

	// Progress marking is best-effort: its failure is logged on its own
	// channel and never propagated as a request failure.
	if err := s.progressRepo.MarkComplete(dbc.Ctx, nil, session.UserID, session.CourseID, session.UnitID); err != nil {
		s.log.Warn("Best-effort unit progress mark failed",
			"session_id", session.ID,
			"unit_id", session.UnitID,
			"error", err,
		)
	}

	s.log.Info("Discussion session completed",
		"session_id", session.ID,
		"goals_covered", discussion.CoveredCount(states),
		"goals_total", len(states),
	)
	return nil
}

func (s *discussionService) buildState(dbc dbctx.Context, session *types.DiscussionSession, tplRow *types.DiscussionTemplate, tplDoc *discussion.TemplateDoc) (*DiscussionState, error) {
	messages, err := s.messageRepo.ListBySession(dbc.Ctx, dbc.Tx, session.ID)
	if err != nil {
		return nil, err
	}

	state := &DiscussionState{
		Session:         session,
		TemplateVersion: tplRow.Version,
		Messages:        messages,
	}
	if session.Status == discussion.StatusCompleted {
		return state, nil
	}

	ref, ok := discussion.NewCursor(tplDoc).Find(pendingStepKey(messages))
	if ok {
		state.CurrentStep = &StepView{
			Key:          ref.Step.Key,
			Prompt:       ref.Step.Prompt,
			Phase:        ref.PhaseID,
			ExpectedType: ref.Step.ExpectedType,
			Options:      ref.Step.Options,
		}
	}
	return state, nil
}

// contextBrief fetches the unit's cached summary for evaluation context.
// Missing content is fine; the evaluator just gets less context.
func (s *discussionService) contextBrief(dbc dbctx.Context, session *types.DiscussionSession) string {
	payload, err := s.contentSvc.GetCachedUnitContent(dbc, discussion.UnitKey{
		CourseID: session.CourseID,
		UnitID:   session.UnitID,
	})
	if err != nil || payload == nil {
		return ""
	}
	return payload.Summary
}

// pendingStepKey finds the step the learner is answering: the most recent
// agent message that is a gradable prompt, skipping feedback and closing
// meta-messages. Empty means "not started", which resolves to the first step.
func pendingStepKey(messages []*types.DiscussionMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != discussion.RoleAgent {
			continue
		}
		var meta messageMeta
		if len(m.Metadata) > 0 {
			_ = json.Unmarshal(m.Metadata, &meta)
		}
		if meta.Kind == discussion.MessageKindPrompt && m.StepKey != "" {
			return m.StepKey
		}
	}
	return ""
}

func goalDetails(tplDoc *discussion.TemplateDoc, refs []string) []discussion.LearningGoal {
	goals := make([]discussion.LearningGoal, 0, len(refs))
	for _, id := range refs {
		if g, ok := tplDoc.GoalByID(id); ok {
			goals = append(goals, g)
		}
	}
	return goals
}

func buildClosingSummary(states []discussion.GoalState) string {
	var achieved, pending []string
	for _, st := range states {
		if st.Covered {
			achieved = append(achieved, st.Description)
		} else {
			pending = append(pending, st.Description)
		}
	}

	var b strings.Builder
	b.WriteString("That wraps up our discussion. ")
	if len(pending) == 0 {
		b.WriteString("You demonstrated every learning goal, great work.")
		return b.String()
	}
	if len(achieved) > 0 {
		fmt.Fprintf(&b, "You showed solid understanding of: %s. ", strings.Join(achieved, "; "))
	}
	fmt.Fprintf(&b, "Worth revisiting before moving on: %s.", strings.Join(pending, "; "))
	return b.String()
}

func decodeGoalStates(raw datatypes.JSON) []discussion.GoalState {
	var states []discussion.GoalState
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &states)
	}
	return states
}

func mustJSON(v any) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(raw)
}
