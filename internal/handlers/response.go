package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	pkgerrors "github.com/lumenlabs/lumen-backend/internal/pkg/errors"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondServiceError maps the engine's error taxonomy onto HTTP statuses.
// Anything unmapped is an opaque storage/internal failure: the caller sees a
// generic try-again, never a raw internal error.
func RespondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pkgerrors.ErrUnauthorized):
		RespondError(c, http.StatusForbidden, "forbidden", errors.New("you do not have access to this discussion"))
	case errors.Is(err, pkgerrors.ErrInvalidArgument):
		RespondError(c, http.StatusBadRequest, "invalid_argument", err)
	case errors.Is(err, pkgerrors.ErrContextUnresolvable):
		RespondError(c, http.StatusNotFound, "not_available", errors.New("this discussion is not available yet"))
	case errors.Is(err, pkgerrors.ErrTemplateUnavailable):
		RespondError(c, http.StatusConflict, "not_ready", errors.New("this discussion is still being prepared, try again shortly"))
	case errors.Is(err, pkgerrors.ErrInvalidSessionState):
		RespondError(c, http.StatusConflict, "invalid_session_state", err)
	case errors.Is(err, pkgerrors.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", errors.New("something went wrong, please try again"))
	}
}
