package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumenlabs/lumen-backend/internal/discussion"
	"github.com/lumenlabs/lumen-backend/internal/pkg/dbctx"
	pkgerrors "github.com/lumenlabs/lumen-backend/internal/pkg/errors"
	"github.com/lumenlabs/lumen-backend/internal/types"
)

const modelTemplateJSON = `{
  "phases": [
    {"id": "diagnosis", "steps": [
      {"key": "d1", "prompt": "What do you already know?", "expectedType": "open",
       "options": [], "answer": null, "feedback": null, "goalRefs": ["g1"]}
    ]},
    {"id": "exploration", "steps": [
      {"key": "e1", "prompt": "Why might that be?", "expectedType": "open",
       "options": [], "answer": null, "feedback": null, "goalRefs": ["g2"]}
    ]},
    {"id": "practice", "steps": [
      {"key": "p1", "prompt": "Which statement is correct?", "expectedType": "mcq",
       "options": ["Option A", "Option B", "Option C"], "answer": 1,
       "feedback": {"correct": "Exactly.", "incorrect": "Look again."}, "goalRefs": ["g2"]}
    ]},
    {"id": "synthesis", "steps": [
      {"key": "s1", "prompt": "Summarize the idea.", "expectedType": "reflection",
       "options": [], "answer": null, "feedback": null, "goalRefs": []}
    ]}
  ],
  "learningGoals": [
    {"id": "g1", "description": "Recall the definition",
     "rubric": {"successSummary": "Names the definition", "checklist": ["uses key term", "states scope"], "failureSignals": []}},
    {"id": "g2", "description": "Apply it",
     "rubric": {"successSummary": "Transfers the rule", "checklist": ["picks the right case", "justifies"], "failureSignals": []}}
  ],
  "closingMessage": "Well done."
}`

func modelTemplateObject(t *testing.T) map[string]any {
	t.Helper()
	var obj map[string]any
	if err := json.Unmarshal([]byte(modelTemplateJSON), &obj); err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return obj
}

type fakeTemplateRepo struct {
	created []*types.DiscussionTemplate
	rows    map[uuid.UUID]*types.DiscussionTemplate
}

func (f *fakeTemplateRepo) Create(ctx context.Context, tx *gorm.DB, template *types.DiscussionTemplate) (*types.DiscussionTemplate, error) {
	if template.ID == uuid.Nil {
		template.ID = uuid.New()
	}
	if f.rows == nil {
		f.rows = make(map[uuid.UUID]*types.DiscussionTemplate)
	}
	f.created = append(f.created, template)
	f.rows[template.ID] = template
	return template, nil
}

func (f *fakeTemplateRepo) GetByID(ctx context.Context, tx *gorm.DB, templateID uuid.UUID) (*types.DiscussionTemplate, error) {
	if row, ok := f.rows[templateID]; ok {
		return row, nil
	}
	return nil, pkgerrors.ErrNotFound
}

func (f *fakeTemplateRepo) GetLatestByUnit(ctx context.Context, tx *gorm.DB, unitID uuid.UUID) (*types.DiscussionTemplate, error) {
	var latest *types.DiscussionTemplate
	for _, row := range f.rows {
		if row.UnitID != unitID {
			continue
		}
		if latest == nil || row.Version > latest.Version {
			latest = row
		}
	}
	if latest == nil {
		return nil, pkgerrors.ErrNotFound
	}
	return latest, nil
}

type fakeContentService struct {
	payloads map[uuid.UUID]*UnitContentPayload
	units    map[uuid.UUID]*types.LearningUnit
}

func (f *fakeContentService) ResolveUnitKey(dbc dbctx.Context, courseID uuid.UUID, unitID *uuid.UUID, unitTitle, moduleTitle string) (discussion.UnitKey, *types.LearningUnit, error) {
	if unitID != nil {
		if u, ok := f.units[*unitID]; ok && u.CourseID == courseID {
			key := discussion.UnitKey{CourseID: u.CourseID, UnitID: u.ID, ModuleTitle: u.ModuleTitle, UnitTitle: u.Title}
			return key, u, nil
		}
	}
	return discussion.UnitKey{}, nil, pkgerrors.ErrContextUnresolvable
}

func (f *fakeContentService) GetCachedUnitContent(dbc dbctx.Context, key discussion.UnitKey) (*UnitContentPayload, error) {
	if p, ok := f.payloads[key.UnitID]; ok {
		return p, nil
	}
	return nil, pkgerrors.ErrNotFound
}

func testUnitKey() discussion.UnitKey {
	return discussion.UnitKey{
		CourseID:    uuid.New(),
		UnitID:      uuid.New(),
		ModuleTitle: "Module One",
		UnitTitle:   "Unit One",
	}
}

func TestSynthesizeUnitWithoutContent(t *testing.T) {
	client := &fakeOpenAIClient{result: modelTemplateObject(t)}
	repo := &fakeTemplateRepo{}
	svc := NewTemplateService(newTestLogger(t), repo, &fakeContentService{}, client, time.Second)

	row, doc, err := svc.SynthesizeUnit(dbctx.New(context.Background()), testUnitKey())
	if err != nil || row != nil || doc != nil {
		t.Fatalf("SynthesizeUnit=(%v, %v, %v), want all nil for missing content", row, doc, err)
	}
	if client.calls != 0 {
		t.Fatalf("model called %d times for a unit with no content", client.calls)
	}
	if len(repo.created) != 0 {
		t.Fatal("no row should be persisted")
	}
}

func TestSynthesizeUnitPersistsValidScript(t *testing.T) {
	key := testUnitKey()
	client := &fakeOpenAIClient{result: modelTemplateObject(t)}
	repo := &fakeTemplateRepo{}
	content := &fakeContentService{payloads: map[uuid.UUID]*UnitContentPayload{
		key.UnitID: {Summary: "A summary", Objectives: []string{"obj1"}},
	}}
	svc := NewTemplateService(newTestLogger(t), repo, content, client, time.Second)

	row, doc, err := svc.SynthesizeUnit(dbctx.New(context.Background()), key)
	if err != nil {
		t.Fatalf("SynthesizeUnit: %v", err)
	}
	if row == nil || doc == nil {
		t.Fatal("expected a persisted template")
	}
	if row.Source != discussion.SourceUnit {
		t.Fatalf("Source=%q, want %q", row.Source, discussion.SourceUnit)
	}
	if row.UnitID != key.UnitID || row.CourseID != key.CourseID {
		t.Fatalf("row anchored to %s/%s, want %s/%s", row.CourseID, row.UnitID, key.CourseID, key.UnitID)
	}
	if _, err := time.Parse(versionTokenFormat, row.Version); err != nil {
		t.Fatalf("Version=%q is not a sortable token: %v", row.Version, err)
	}
	if len(doc.Phases) != 4 {
		t.Fatalf("phases=%d, want 4", len(doc.Phases))
	}
	if len(repo.created) != 1 {
		t.Fatalf("created %d rows, want 1", len(repo.created))
	}
}

func TestSynthesizeUnitModelFailureYieldsNoTemplate(t *testing.T) {
	key := testUnitKey()
	content := &fakeContentService{payloads: map[uuid.UUID]*UnitContentPayload{
		key.UnitID: {Summary: "A summary"},
	}}

	cases := []struct {
		name   string
		client *fakeOpenAIClient
	}{
		{name: "model_error", client: &fakeOpenAIClient{err: errors.New("rate limited")}},
		{name: "invalid_script", client: &fakeOpenAIClient{result: map[string]any{"phases": []any{}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &fakeTemplateRepo{}
			svc := NewTemplateService(newTestLogger(t), repo, content, tc.client, time.Second)
			row, doc, err := svc.SynthesizeUnit(dbctx.New(context.Background()), key)
			if err != nil || row != nil || doc != nil {
				t.Fatalf("SynthesizeUnit=(%v, %v, %v), want graceful nil", row, doc, err)
			}
			if len(repo.created) != 0 {
				t.Fatal("no row should be persisted on failure")
			}
		})
	}
}

func TestSynthesizeModuleAggregatesUnits(t *testing.T) {
	courseID := uuid.New()
	unitA := &types.LearningUnit{CourseID: courseID, ModuleTitle: "Module One", Title: "Unit A", Kind: types.UnitKindContent}
	unitA.ID = uuid.New()
	unitB := &types.LearningUnit{CourseID: courseID, ModuleTitle: "Module One", Title: "Unit B", Kind: types.UnitKindContent}
	unitB.ID = uuid.New()
	closing := &types.LearningUnit{CourseID: courseID, ModuleTitle: "Module One", Title: "Discussion", Kind: types.UnitKindClosingDiscussion}
	closing.ID = uuid.New()

	key := discussion.UnitKey{CourseID: courseID, UnitID: closing.ID, ModuleTitle: "Module One", UnitTitle: "Discussion"}

	content := &fakeContentService{payloads: map[uuid.UUID]*UnitContentPayload{
		unitA.ID: {Summary: "Alpha summary", KeyTakeaways: []string{"t1"}},
		// unitB has no content yet and must be skipped, not fatal.
	}}
	client := &fakeOpenAIClient{result: modelTemplateObject(t)}
	repo := &fakeTemplateRepo{}
	svc := NewTemplateService(newTestLogger(t), repo, content, client, time.Second)

	row, doc, err := svc.SynthesizeModule(dbctx.New(context.Background()), key, []*types.LearningUnit{unitA, unitB, closing})
	if err != nil {
		t.Fatalf("SynthesizeModule: %v", err)
	}
	if row == nil || doc == nil {
		t.Fatal("expected a persisted module template")
	}
	if row.Source != discussion.SourceModule {
		t.Fatalf("Source=%q, want %q", row.Source, discussion.SourceModule)
	}
	if row.UnitID != closing.ID {
		t.Fatalf("module template anchored to %s, want closing unit %s", row.UnitID, closing.ID)
	}
}

func TestSynthesizeModuleFailsClosedWithoutContent(t *testing.T) {
	courseID := uuid.New()
	unit := &types.LearningUnit{CourseID: courseID, ModuleTitle: "Module One", Title: "Unit A", Kind: types.UnitKindContent}
	unit.ID = uuid.New()
	closing := &types.LearningUnit{CourseID: courseID, ModuleTitle: "Module One", Title: "Discussion", Kind: types.UnitKindClosingDiscussion}
	closing.ID = uuid.New()

	key := discussion.UnitKey{CourseID: courseID, UnitID: closing.ID, ModuleTitle: "Module One", UnitTitle: "Discussion"}

	client := &fakeOpenAIClient{result: modelTemplateObject(t)}
	repo := &fakeTemplateRepo{}
	svc := NewTemplateService(newTestLogger(t), repo, &fakeContentService{}, client, time.Second)

	row, doc, err := svc.SynthesizeModule(dbctx.New(context.Background()), key, []*types.LearningUnit{unit, closing})
	if err != nil || row != nil || doc != nil {
		t.Fatalf("SynthesizeModule=(%v, %v, %v), want fail-closed nils", row, doc, err)
	}
	if client.calls != 0 {
		t.Fatal("model must not be invoked with an empty brief")
	}
}

func TestBuildUnitBrief(t *testing.T) {
	payload := &UnitContentPayload{
		Summary:        "The big idea.",
		Objectives:     []string{"learn x"},
		KeyTakeaways:   []string{"x matters"},
		CommonPitfalls: []string{"confusing x with y"},
	}
	brief := buildUnitBrief("Unit One", payload)
	for _, want := range []string{"## Unit One", "The big idea.", "learn x", "x matters", "confusing x with y"} {
		if !strings.Contains(brief, want) {
			t.Fatalf("brief missing %q:\n%s", want, brief)
		}
	}
}
