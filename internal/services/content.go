package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	redisclient "github.com/lumenlabs/lumen-backend/internal/clients/redis"
	"github.com/lumenlabs/lumen-backend/internal/discussion"
	"github.com/lumenlabs/lumen-backend/internal/logger"
	"github.com/lumenlabs/lumen-backend/internal/pkg/dbctx"
	pkgerrors "github.com/lumenlabs/lumen-backend/internal/pkg/errors"
	"github.com/lumenlabs/lumen-backend/internal/repos"
	"github.com/lumenlabs/lumen-backend/internal/types"
)

// QuizPayloadQuestion is one quiz item inside the cached content payload.
type QuizPayloadQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
	Answer   string   `json:"answer,omitempty"`
}

// UnitContentPayload is the cached generated content for one unit, as the
// content pipeline writes it. Older rows used commonPitfalls instead of
// misconceptions; both decode.
type UnitContentPayload struct {
	Summary        string                `json:"summary"`
	Objectives     []string              `json:"objectives"`
	KeyTakeaways   []string              `json:"keyTakeaways"`
	Misconceptions []string              `json:"misconceptions"`
	CommonPitfalls []string              `json:"commonPitfalls"`
	Quiz           []QuizPayloadQuestion `json:"quiz"`
}

// AllMisconceptions merges the two historical field names.
func (p *UnitContentPayload) AllMisconceptions() []string {
	if len(p.Misconceptions) == 0 {
		return p.CommonPitfalls
	}
	if len(p.CommonPitfalls) == 0 {
		return p.Misconceptions
	}
	out := make([]string, 0, len(p.Misconceptions)+len(p.CommonPitfalls))
	out = append(out, p.Misconceptions...)
	out = append(out, p.CommonPitfalls...)
	return out
}

// Empty reports whether the payload carries no teachable content.
func (p *UnitContentPayload) Empty() bool {
	return strings.TrimSpace(p.Summary) == "" && len(p.Objectives) == 0 && len(p.KeyTakeaways) == 0
}

// ContentService resolves unit identity once per request and serves cached
// unit content, Redis first with the unit_content table as fallback.
type ContentService interface {
	// ResolveUnitKey maps a courseID plus either a unit id or a
	// (moduleTitle, unitTitle) pair onto the explicit composite key used
	// through the rest of the call chain.
	ResolveUnitKey(dbc dbctx.Context, courseID uuid.UUID, unitID *uuid.UUID, unitTitle, moduleTitle string) (discussion.UnitKey, *types.LearningUnit, error)
	// GetCachedUnitContent returns the cached payload for the unit, or
	// pkgerrors.ErrNotFound when the pipeline has not generated it yet.
	GetCachedUnitContent(dbc dbctx.Context, key discussion.UnitKey) (*UnitContentPayload, error)
}

type contentService struct {
	log         *logger.Logger
	unitRepo    repos.LearningUnitRepo
	contentRepo repos.UnitContentRepo
	cache       redisclient.ContentCache
}

func NewContentService(log *logger.Logger, unitRepo repos.LearningUnitRepo, contentRepo repos.UnitContentRepo, cache redisclient.ContentCache) ContentService {
	return &contentService{
		log:         log.With("service", "ContentService"),
		unitRepo:    unitRepo,
		contentRepo: contentRepo,
		cache:       cache,
	}
}

func (s *contentService) ResolveUnitKey(dbc dbctx.Context, courseID uuid.UUID, unitID *uuid.UUID, unitTitle, moduleTitle string) (discussion.UnitKey, *types.LearningUnit, error) {
	if courseID == uuid.Nil {
		return discussion.UnitKey{}, nil, fmt.Errorf("%w: courseId required", pkgerrors.ErrInvalidArgument)
	}

	var unit *types.LearningUnit
	var err error
	switch {
	case unitID != nil && *unitID != uuid.Nil:
		unit, err = s.unitRepo.GetByID(dbc.Ctx, dbc.Tx, *unitID)
	case strings.TrimSpace(unitTitle) != "":
		unit, err = s.unitRepo.GetByTitle(dbc.Ctx, dbc.Tx, courseID, strings.TrimSpace(moduleTitle), strings.TrimSpace(unitTitle))
	default:
		return discussion.UnitKey{}, nil, fmt.Errorf("%w: unitId or unitTitle required", pkgerrors.ErrInvalidArgument)
	}
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return discussion.UnitKey{}, nil, pkgerrors.ErrContextUnresolvable
		}
		return discussion.UnitKey{}, nil, err
	}
	if unit.CourseID != courseID {
		return discussion.UnitKey{}, nil, pkgerrors.ErrContextUnresolvable
	}

	return discussion.UnitKey{
		CourseID:    unit.CourseID,
		UnitID:      unit.ID,
		ModuleTitle: unit.ModuleTitle,
		UnitTitle:   unit.Title,
	}, unit, nil
}

func (s *contentService) GetCachedUnitContent(dbc dbctx.Context, key discussion.UnitKey) (*UnitContentPayload, error) {
	if s.cache != nil {
		raw, hit, err := s.cache.Get(dbc.Ctx, key.CacheKey())
		if err != nil {
			// Cache trouble degrades to the table read.
			s.log.Warn("Content cache read failed", "key", key.CacheKey(), "error", err)
		} else if hit {
			var payload UnitContentPayload
			if uErr := json.Unmarshal(raw, &payload); uErr == nil {
				return &payload, nil
			}
			s.log.Warn("Content cache entry unreadable, falling back", "key", key.CacheKey())
		}
	}

	row, err := s.contentRepo.GetByUnit(dbc.Ctx, dbc.Tx, key.CourseID, key.UnitID)
	if err != nil {
		return nil, err
	}

	var payload UnitContentPayload
	if err := json.Unmarshal(row.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode unit content payload: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(dbc.Ctx, key.CacheKey(), row.Payload); err != nil {
			s.log.Warn("Content cache repopulate failed", "key", key.CacheKey(), "error", err)
		}
	}
	return &payload, nil
}
