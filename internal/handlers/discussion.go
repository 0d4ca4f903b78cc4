package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lumenlabs/lumen-backend/internal/logger"
	"github.com/lumenlabs/lumen-backend/internal/pkg/dbctx"
	pkgerrors "github.com/lumenlabs/lumen-backend/internal/pkg/errors"
	"github.com/lumenlabs/lumen-backend/internal/services"
)

type DiscussionHandler struct {
	log           *logger.Logger
	discussionSvc services.DiscussionService
	readinessSvc  services.ReadinessService
}

func NewDiscussionHandler(log *logger.Logger, discussionSvc services.DiscussionService, readinessSvc services.ReadinessService) *DiscussionHandler {
	return &DiscussionHandler{
		log:           log.With("handler", "DiscussionHandler"),
		discussionSvc: discussionSvc,
		readinessSvc:  readinessSvc,
	}
}

type startRequest struct {
	CourseID    string `json:"courseId"`
	UnitID      string `json:"unitId"`
	UnitTitle   string `json:"unitTitle"`
	ModuleTitle string `json:"moduleTitle"`
}

// POST /api/discussions/start
// Create or resume the caller's discussion session for a unit.
func (h *DiscussionHandler) Start(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	courseID, err := uuid.Parse(req.CourseID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", errors.New("courseId must be a uuid"))
		return
	}

	in := services.StartInput{
		CourseID:    courseID,
		UnitTitle:   strings.TrimSpace(req.UnitTitle),
		ModuleTitle: strings.TrimSpace(req.ModuleTitle),
	}
	if req.UnitID != "" {
		unitID, err := uuid.Parse(req.UnitID)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_argument", errors.New("unitId must be a uuid"))
			return
		}
		in.UnitID = &unitID
	}

	state, err := h.discussionSvc.Start(dbctx.New(c.Request.Context()), in)
	if err != nil {
		h.log.Warn("Discussion start failed", "course_id", req.CourseID, "error", err)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"session":     state.Session,
		"messages":    state.Messages,
		"currentStep": state.CurrentStep,
	})
}

type respondRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// POST /api/discussions/respond
// Submit a learner answer to the session's pending step.
func (h *DiscussionHandler) Respond(c *gin.Context) {
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", errors.New("sessionId must be a uuid"))
		return
	}

	state, err := h.discussionSvc.Respond(dbctx.New(c.Request.Context()), sessionID, req.Message)
	if err != nil {
		h.log.Warn("Discussion respond failed", "session_id", req.SessionID, "error", err)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"session":  state.Session,
		"messages": state.Messages,
		"nextStep": state.CurrentStep,
	})
}

// GET /api/discussions/history?sessionId= | ?courseId=&unitId=
func (h *DiscussionHandler) History(c *gin.Context) {
	var q services.HistoryQuery
	if raw := c.Query("sessionId"); raw != "" {
		sessionID, err := uuid.Parse(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_argument", errors.New("sessionId must be a uuid"))
			return
		}
		q.SessionID = &sessionID
	} else {
		courseID, err := uuid.Parse(c.Query("courseId"))
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_argument", errors.New("courseId must be a uuid"))
			return
		}
		unitID, err := uuid.Parse(c.Query("unitId"))
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_argument", errors.New("unitId must be a uuid"))
			return
		}
		q.CourseID = courseID
		q.UnitID = &unitID
	}

	state, err := h.discussionSvc.History(dbctx.New(c.Request.Context()), q)
	if err != nil {
		if !errors.Is(err, pkgerrors.ErrNotFound) {
			h.log.Warn("Discussion history failed", "error", err)
		}
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"session":         state.Session,
		"templateVersion": state.TemplateVersion,
		"messages":        state.Messages,
		"currentStep":     state.CurrentStep,
	})
}

// GET /api/discussions/module-status?courseId=&moduleUnitId=
// Readiness gate for module-scoped discussions. Advisory and read-only.
func (h *DiscussionHandler) ModuleStatus(c *gin.Context) {
	courseID, err := uuid.Parse(c.Query("courseId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", errors.New("courseId must be a uuid"))
		return
	}
	moduleUnitID, err := uuid.Parse(c.Query("moduleUnitId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", errors.New("moduleUnitId must be a uuid"))
		return
	}

	result, err := h.readinessSvc.EvaluateModuleReadiness(dbctx.New(c.Request.Context()), courseID, moduleUnitID)
	if err != nil {
		h.log.Warn("Module readiness evaluation failed", "course_id", courseID, "module_unit_id", moduleUnitID, "error", err)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}
