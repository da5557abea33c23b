package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rivaldorose/konsensi-workspace/internal/chat"
	"github.com/rivaldorose/konsensi-workspace/internal/service"
)

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error code and message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error sends a JSON error response.
func Error(c echo.Context, status int, code, message string) error {
	return c.JSON(status, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message},
	})
}

// successJSON sends a JSON success response with a data envelope.
func successJSON(c echo.Context, status int, data any) error {
	return c.JSON(status, map[string]any{"data": data})
}

// mapServiceError turns a service error into its HTTP response. Anything
// unrecognized is reported as an internal error.
func mapServiceError(c echo.Context, err error) error {
	if errors.Is(err, chat.ErrNotAuthenticated) {
		return Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
	}

	var se *service.ServiceError
	if !errors.As(err, &se) {
		c.Logger().Errorf("unhandled service error: %v", err)
		return Error(c, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(se, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(se, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(se, service.ErrConflict):
		status = http.StatusConflict
	case errors.Is(se, service.ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(se, service.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(se, service.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	return Error(c, status, se.Code, se.Message)
}

// pathID parses a snowflake path parameter.
func pathID(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
