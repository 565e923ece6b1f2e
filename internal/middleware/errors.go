package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	apperrors "eventhub/internal/errors"
)

// HTTPErrorHandler renders every error as an errors.ErrorResponse. Domain
// errors that reach it unmapped go through MapErrorToHTTP.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := render(err)
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, body)
}

func render(err error) (int, apperrors.ErrorResponse) {
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		mapped := apperrors.MapErrorToHTTP(err)
		return mapped.StatusCode, mapped.ToErrorResponse()
	}

	switch msg := he.Message.(type) {
	case apperrors.ErrorResponse:
		return he.Code, msg
	case *apperrors.ErrorResponse:
		return he.Code, *msg
	case string:
		return he.Code, apperrors.ErrorResponse{Error: msg, Code: statusCode(he.Code)}
	default:
		return he.Code, apperrors.ErrorResponse{Error: http.StatusText(he.Code), Code: statusCode(he.Code)}
	}
}

// statusCode turns 413 into "REQUEST_ENTITY_TOO_LARGE" and so on.
func statusCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "INTERNAL_ERROR"
	}
	return strings.ToUpper(strings.ReplaceAll(text, " ", "_"))
}
