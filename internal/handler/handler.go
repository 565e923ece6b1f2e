package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"eventhub/internal/errors"
)

// MessageResponse is returned by endpoints that only report success.
type MessageResponse struct {
	Message string `json:"message"`
}

// respondError maps a service error to an HTTP error carrying an ErrorResponse.
func respondError(err error) error {
	mapped := errors.MapErrorToHTTP(err)
	return echo.NewHTTPError(mapped.StatusCode, mapped.ToErrorResponse()).SetInternal(err)
}

func invalidBody(err error) error {
	return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
		Error: "invalid request body",
		Code:  "INVALID_REQUEST",
	}).SetInternal(err)
}

func parseID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.NewValidationError("id", "must be a positive integer")
	}
	return uint(id), nil
}

// bindAndValidate decodes the request into req and runs the registered validator.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return invalidBody(err)
	}
	if err := c.Validate(req); err != nil {
		return respondError(err)
	}
	return nil
}
