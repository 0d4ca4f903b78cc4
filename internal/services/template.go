package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/lumenlabs/lumen-backend/internal/discussion"
	"github.com/lumenlabs/lumen-backend/internal/logger"
	"github.com/lumenlabs/lumen-backend/internal/pkg/dbctx"
	pkgerrors "github.com/lumenlabs/lumen-backend/internal/pkg/errors"
	"github.com/lumenlabs/lumen-backend/internal/repos"
	"github.com/lumenlabs/lumen-backend/internal/types"
)

// versionTokenFormat yields lexicographically sortable UTC tokens, so
// "highest version" is a plain ORDER BY.
const versionTokenFormat = "20060102T150405.000000000"

const synthesisSystemPrompt = `You are an expert Socratic tutor designing a guided discussion script.
Given study material, produce a four-phase dialogue that leads a learner from
diagnosis through exploration and practice to synthesis. Requirements:
- Phases, in order: diagnosis, exploration, practice, synthesis. Each phase needs at least one step.
- Steps ask one question each. Most are open questions; include at least one
  multiple-choice step with 3-5 options, the 0-based index of the correct
  option as "answer", and both correct and incorrect feedback texts.
- Define 3-6 learning goals with short stable ids (e.g. "g1"). Each goal
  carries a rubric: a one-sentence successSummary, a checklist of 2-4
  observable criteria, and failureSignals to watch for.
- Tag each step's goalRefs with the goal ids the learner's answer can
  evidence. Diagnostic small talk may leave goalRefs empty.
- Write every prompt, option and feedback in the same language as the
  provided material.
- End with a short closingMessage congratulating the learner.`

// TemplateService is the dialogue-script catalog: latest-version lookup plus
// synthesis of new versions from cached unit content.
type TemplateService interface {
	// GetLatest returns the newest template for the unit, preferring
	// unit-scope over module-scope rows. pkgerrors.ErrNotFound when none.
	GetLatest(dbc dbctx.Context, key discussion.UnitKey) (*types.DiscussionTemplate, *discussion.TemplateDoc, error)
	GetByID(dbc dbctx.Context, templateID uuid.UUID) (*types.DiscussionTemplate, *discussion.TemplateDoc, error)
	// SynthesizeUnit generates, validates and persists a unit-scope template.
	// Returns (nil, nil, nil) when the unit has no meaningful content yet.
	SynthesizeUnit(dbc dbctx.Context, key discussion.UnitKey) (*types.DiscussionTemplate, *discussion.TemplateDoc, error)
	// SynthesizeModule aggregates every constituent content unit's cached
	// payload into one brief and generates a module-spanning template
	// anchored to the module's closing-discussion unit. Fails closed
	// (nil, nil, nil) when no constituent unit has content.
	SynthesizeModule(dbc dbctx.Context, key discussion.UnitKey, units []*types.LearningUnit) (*types.DiscussionTemplate, *discussion.TemplateDoc, error)
}

type templateService struct {
	log          *logger.Logger
	templateRepo repos.DiscussionTemplateRepo
	contentSvc   ContentService
	ai           OpenAIClient
	llmTimeout   time.Duration
}

func NewTemplateService(log *logger.Logger, templateRepo repos.DiscussionTemplateRepo, contentSvc ContentService, ai OpenAIClient, llmTimeout time.Duration) TemplateService {
	return &templateService{
		log:          log.With("service", "TemplateService"),
		templateRepo: templateRepo,
		contentSvc:   contentSvc,
		ai:           ai,
		llmTimeout:   llmTimeout,
	}
}

func (s *templateService) GetLatest(dbc dbctx.Context, key discussion.UnitKey) (*types.DiscussionTemplate, *discussion.TemplateDoc, error) {
	row, err := s.templateRepo.GetLatestByUnit(dbc.Ctx, dbc.Tx, key.UnitID)
	if err != nil {
		return nil, nil, err
	}
	doc, err := discussion.LoadTemplate(row.Template)
	if err != nil {
		return nil, nil, err
	}
	return row, doc, nil
}

func (s *templateService) GetByID(dbc dbctx.Context, templateID uuid.UUID) (*types.DiscussionTemplate, *discussion.TemplateDoc, error) {
	row, err := s.templateRepo.GetByID(dbc.Ctx, dbc.Tx, templateID)
	if err != nil {
		return nil, nil, err
	}
	doc, err := discussion.LoadTemplate(row.Template)
	if err != nil {
		return nil, nil, err
	}
	return row, doc, nil
}

func (s *templateService) SynthesizeUnit(dbc dbctx.Context, key discussion.UnitKey) (*types.DiscussionTemplate, *discussion.TemplateDoc, error) {
	payload, err := s.contentSvc.GetCachedUnitContent(dbc, key)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	if payload.Empty() {
		// Nothing to discuss; do not invoke the model with empty context.
		return nil, nil, nil
	}

	brief := buildUnitBrief(key.UnitTitle, payload)
	return s.synthesize(dbc, key, discussion.SourceUnit, brief)
}

func (s *templateService) SynthesizeModule(dbc dbctx.Context, key discussion.UnitKey, units []*types.LearningUnit) (*types.DiscussionTemplate, *discussion.TemplateDoc, error) {
	var sections []string
	for _, unit := range units {
		if unit.Kind == types.UnitKindClosingDiscussion {
			continue
		}
		unitKey := discussion.UnitKey{
			CourseID:    unit.CourseID,
			UnitID:      unit.ID,
			ModuleTitle: unit.ModuleTitle,
			UnitTitle:   unit.Title,
		}
		payload, err := s.contentSvc.GetCachedUnitContent(dbc, unitKey)
		if err != nil {
			if errors.Is(err, pkgerrors.ErrNotFound) {
				continue
			}
			return nil, nil, err
		}
		if payload.Empty() {
			continue
		}
		sections = append(sections, buildUnitBrief(unit.Title, payload))
	}
	if len(sections) == 0 {
		// No constituent unit has generated content: fail closed rather
		// than producing a vacuous script.
		return nil, nil, nil
	}

	brief := fmt.Sprintf("This discussion closes the module %q. It spans the following units:\n\n%s",
		key.ModuleTitle, strings.Join(sections, "\n\n---\n\n"))
	return s.synthesize(dbc, key, discussion.SourceModule, brief)
}

func (s *templateService) synthesize(dbc dbctx.Context, key discussion.UnitKey, source string, brief string) (*types.DiscussionTemplate, *discussion.TemplateDoc, error) {
	ctx, cancel := context.WithTimeout(dbc.Ctx, s.llmTimeout)
	defer cancel()

	obj, err := s.ai.GenerateJSON(ctx, synthesisSystemPrompt, brief, discussion.TemplateSchemaName, discussion.TemplateSchema())
	if err != nil {
		s.log.Warn("Template synthesis model call failed", "unit_id", key.UnitID, "source", source, "error", err)
		return nil, nil, nil
	}

	doc, err := discussion.DecodeTemplateObject(obj)
	if err != nil {
		s.log.Warn("Template synthesis produced an invalid script", "unit_id", key.UnitID, "source", source, "error", err)
		return nil, nil, nil
	}
	logRubricGaps(s.log, doc, key)

	raw, err := encodeTemplateDoc(doc)
	if err != nil {
		return nil, nil, err
	}
	row := &types.DiscussionTemplate{
		CourseID: key.CourseID,
		UnitID:   key.UnitID,
		Version:  time.Now().UTC().Format(versionTokenFormat),
		Source:   source,
		Template: raw,
	}
	row, err = s.templateRepo.Create(dbc.Ctx, dbc.Tx, row)
	if err != nil {
		return nil, nil, err
	}

	s.log.Info("Discussion template synthesized",
		"unit_id", key.UnitID,
		"source", source,
		"version", row.Version,
		"goals", len(doc.LearningGoals),
	)
	return row, doc, nil
}

func buildUnitBrief(title string, payload *UnitContentPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n", title)
	if strings.TrimSpace(payload.Summary) != "" {
		fmt.Fprintf(&b, "\nSummary:\n%s\n", payload.Summary)
	}
	writeList(&b, "Learning objectives", payload.Objectives)
	writeList(&b, "Key takeaways", payload.KeyTakeaways)
	writeList(&b, "Known misconceptions", payload.AllMisconceptions())
	return b.String()
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", heading)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

// logRubricGaps records goals whose rubric falls short of the authoring
// guideline (success summary + 2-4 checklist items). Gaps are tolerated;
// the evaluator degrades to the goal description.
func logRubricGaps(log *logger.Logger, doc *discussion.TemplateDoc, key discussion.UnitKey) {
	for _, g := range doc.LearningGoals {
		if g.Rubric == nil || strings.TrimSpace(g.Rubric.SuccessSummary) == "" {
			log.Warn("Learning goal missing rubric success summary", "unit_id", key.UnitID, "goal_id", g.ID)
			continue
		}
		if n := len(g.Rubric.Checklist); n < 2 || n > 4 {
			log.Debug("Learning goal checklist outside 2-4 items", "unit_id", key.UnitID, "goal_id", g.ID, "items", n)
		}
	}
}

func encodeTemplateDoc(doc *discussion.TemplateDoc) (datatypes.JSON, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode template: %w", err)
	}
	return datatypes.JSON(raw), nil
}
