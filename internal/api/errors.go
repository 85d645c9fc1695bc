package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domerrors "github.com/garyellow/visadesk/internal/errors"
	"github.com/garyellow/visadesk/internal/sentry"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var errorCodes = map[int]string{
	http.StatusBadRequest:          "invalid_request",
	http.StatusUnauthorized:        "unauthorized",
	http.StatusNotFound:            "not_found",
	http.StatusConflict:            "conflict",
	http.StatusTooManyRequests:     "rate_limited",
	http.StatusInternalServerError: "internal_error",
}

// abortWithError maps err to a status and writes the JSON error body.
// Server errors are logged and reported; their detail is not exposed.
func (s *Server) abortWithError(c *gin.Context, err error) {
	status := domerrors.HTTPStatus(err)
	msg := domerrors.GetUserMessage(err)

	var ve *domerrors.ValidationError
	if errors.As(err, &ve) {
		msg = ve.Message
	}
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).ErrorContext(c.Request.Context(), "Request failed", "route", c.FullPath())
		s.metrics.RecordHTTPError("internal", c.FullPath())
		sentry.CaptureException(c.Request.Context(), err, map[string]string{"route": c.FullPath()})
		msg = "internal server error"
	}
	writeError(c, status, msg)
}

func writeError(c *gin.Context, status int, msg string) {
	code, ok := errorCodes[status]
	if !ok {
		code = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: code, Message: msg})
}
