package server

import (
	goerrors "errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/getailigned/notification-service/internal/common/errors"
	"github.com/getailigned/notification-service/internal/common/logger"
)

// Envelope is the standard API response wrapper.
type Envelope struct {
	Data  interface{} `json:"data,omitempty"`
	Error *APIError   `json:"error,omitempty"`
}

// APIError represents an error in the API response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// JSON writes a JSON response with the standard envelope.
func JSON(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, Envelope{Data: data})
}

// HTTPErrorHandler maps application errors onto HTTP statuses with the
// envelope shape.
func HTTPErrorHandler(log logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, apiErr := mapError(err)
		if status >= http.StatusInternalServerError {
			log.WithError(err).Error("request failed", map[string]interface{}{
				"path": c.Request().URL.Path,
			})
		}
		if jsonErr := c.JSON(status, Envelope{Error: &apiErr}); jsonErr != nil {
			log.WithError(jsonErr).Error("failed to send error response", nil)
		}
	}
}

func mapError(err error) (int, APIError) {
	var echoErr *echo.HTTPError
	if goerrors.As(err, &echoErr) {
		msg, _ := echoErr.Message.(string)
		if msg == "" {
			msg = http.StatusText(echoErr.Code)
		}
		return echoErr.Code, APIError{Code: http.StatusText(echoErr.Code), Message: msg}
	}

	var stdErr *errors.StandardError
	if goerrors.As(err, &stdErr) {
		return statusForCode(stdErr.Code), APIError{
			Code:    string(stdErr.Code),
			Message: stdErr.Message,
			Details: stdErr.Details,
		}
	}

	return http.StatusInternalServerError, APIError{
		Code:    "INTERNAL_ERROR",
		Message: "An unexpected error occurred",
	}
}

func statusForCode(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeValidationFailed, errors.ErrCodeTemplateValidationFailed,
		errors.ErrCodeUnsubscribeTokenInvalid:
		return http.StatusBadRequest
	case errors.ErrCodeTemplateNotFound, errors.ErrCodeNotificationNotFound,
		errors.ErrCodeRecipientNotFound:
		return http.StatusNotFound
	case errors.ErrCodeChannelUnsupported:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeChannelUnavailable, errors.ErrCodeBusUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
