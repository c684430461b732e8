package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperr "github.com/yungbote/mindgraph-backend/internal/pkg/errors"
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

// RespondServiceError maps the closed error-kind set onto HTTP statuses.
func RespondServiceError(c *gin.Context, err error) {
	switch {
	case apperr.IsInvalidArgument(err):
		RespondError(c, http.StatusBadRequest, "invalid_argument", err)
	case apperr.IsNotFound(err):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case apperr.IsLockUnavailable(err):
		c.Header("Retry-After", "1")
		RespondError(c, http.StatusServiceUnavailable, "lock_unavailable", err)
	case apperr.IsTransientStore(err):
		c.Header("Retry-After", "1")
		RespondError(c, http.StatusServiceUnavailable, "store_unavailable", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}
