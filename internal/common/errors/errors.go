// Package errors provides standardized error handling for the notification
// dispatcher.
package errors

import (
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	ErrCodeTemplateNotFound         ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeTemplateValidationFailed ErrorCode = "TEMPLATE_VALIDATION_FAILED"

	ErrCodeChannelUnsupported  ErrorCode = "CHANNEL_UNSUPPORTED"
	ErrCodeChannelUnavailable  ErrorCode = "CHANNEL_UNAVAILABLE"
	ErrCodeNotificationExpired ErrorCode = "NOTIFICATION_EXPIRED"

	ErrCodeRecipientNotFound  ErrorCode = "RECIPIENT_NOT_FOUND"
	ErrCodeEmailSendFailed    ErrorCode = "EMAIL_SEND_FAILED"
	ErrCodeTokenRefreshFailed ErrorCode = "TOKEN_REFRESH_FAILED"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeNotificationNotFound     ErrorCode = "NOTIFICATION_NOT_FOUND"

	ErrCodeEventPublishFailed ErrorCode = "EVENT_PUBLISH_FAILED"
	ErrCodeBusUnavailable     ErrorCode = "BUS_UNAVAILABLE"

	ErrCodeUnsubscribeTokenInvalid ErrorCode = "UNSUBSCRIBE_TOKEN_INVALID"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// NewValidationFailedError creates a non-retryable request validation error.
func NewValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Request validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateNotFoundError creates a non-retryable template error.
func NewTemplateNotFoundError(templateID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateNotFound,
		Message:   "Template not found in catalog",
		Details:   fmt.Sprintf("templateId: %s", templateID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateValidationFailedError creates a non-retryable template variable error.
func NewTemplateValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateValidationFailed,
		Message:   "Data validation failed for template",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewChannelUnsupportedError creates a non-retryable channel routing error.
func NewChannelUnsupportedError(channel string) *StandardError {
	return &StandardError{
		Code:      ErrCodeChannelUnsupported,
		Message:   "Unsupported notification channel",
		Details:   fmt.Sprintf("channel: %s", channel),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewChannelUnavailableError marks a channel as unusable until fixed
// out-of-band (missing or failed credentials).
func NewChannelUnavailableError(channel, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeChannelUnavailable,
		Message:   fmt.Sprintf("Channel %s is unavailable", channel),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationExpiredError creates a non-retryable expiry error.
func NewNotificationExpiredError(id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationExpired,
		Message:   "expired",
		Details:   fmt.Sprintf("notificationId: %s", id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRecipientNotFoundError creates a non-retryable directory lookup error.
func NewRecipientNotFoundError(recipientID string, err error) *StandardError {
	details := fmt.Sprintf("recipientId: %s", recipientID)
	if err != nil {
		details = fmt.Sprintf("%s, error: %s", details, err.Error())
	}
	return &StandardError{
		Code:      ErrCodeRecipientNotFound,
		Message:   "Recipient contact info not found",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEmailSendFailedError creates a retryable transport error.
func NewEmailSendFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeEmailSendFailed,
		Message:   "Email delivery failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewTokenRefreshFailedError creates a non-retryable credential error; the
// email channel stays down until the refresh token is fixed out-of-band.
func NewTokenRefreshFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTokenRefreshFailed,
		Message:   "OAuth token refresh failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("operation: %s, error: %s", op, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationNotFoundError creates a non-retryable lookup error.
func NewNotificationNotFoundError(id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationNotFound,
		Message:   "Notification not found",
		Details:   fmt.Sprintf("notificationId: %s", id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEventPublishFailedError creates a retryable bus publish error. Publish
// failures are logged by the dispatch engine, never propagated to callers.
func NewEventPublishFailedError(routingKey string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeEventPublishFailed,
		Message:   "Event publish failed",
		Details:   fmt.Sprintf("routingKey: %s, error: %s", routingKey, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewBusUnavailableError creates a retryable bus connection error.
func NewBusUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeBusUnavailable,
		Message:   "Message bus unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnsubscribeTokenInvalidError creates a non-retryable token error.
func NewUnsubscribeTokenInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnsubscribeTokenInvalid,
		Message:   "Unsubscribe token is invalid or expired",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}
