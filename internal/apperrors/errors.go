package apperrors

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes identifying each failure kind of the update pipeline.
const (
	CodeMalformedEnvelope      = "MALFORMED_ENVELOPE"
	CodeMissingChangeIndicator = "MISSING_CHANGE_INDICATOR"
	CodeFetch                  = "FETCH_ERROR"
	CodeTriggerNotFound        = "TRIGGER_NOT_FOUND"
	CodeTriggerLineNotFound    = "TRIGGER_LINE_NOT_FOUND"
	CodeUpload                 = "UPLOAD_ERROR"
	CodeCrmOperation           = "CRM_OPERATION_ERROR"
	CodeLookup                 = "LOOKUP_ERROR"
	CodeNotificationSend       = "NOTIFICATION_SEND_ERROR"
	CodeConfig                 = "CONFIG_ERROR"
)

func newError(message string, category goerrors.Category, code int, textCode string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func wrapError(source error, category goerrors.Category, message string, code int, textCode string, metadata map[string]any) *goerrors.Error {
	if source == nil {
		return newError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// MalformedEnvelope reports a push envelope missing its nested message data.
func MalformedEnvelope(message string, source error) error {
	return wrapError(source, goerrors.CategoryBadInput, message, http.StatusBadRequest, CodeMalformedEnvelope, nil)
}

// MissingChangeIndicator reports a decoded payload without a historyId.
func MissingChangeIndicator(message string) error {
	return newError(message, goerrors.CategoryValidation, http.StatusBadRequest, CodeMissingChangeIndicator, nil)
}

// Fetch wraps a mailbox provider failure.
func Fetch(source error, message string) error {
	return wrapError(source, goerrors.CategoryExternal, message, http.StatusBadGateway, CodeFetch, nil)
}

// TriggerNotFound reports a body without the trigger phrase.
func TriggerNotFound(message string) error {
	return newError(message, goerrors.CategoryNotFound, http.StatusUnprocessableEntity, CodeTriggerNotFound, nil)
}

// TriggerLineNotFound reports a trigger phrase that could not be isolated to one line.
func TriggerLineNotFound(message string) error {
	return newError(message, goerrors.CategoryNotFound, http.StatusUnprocessableEntity, CodeTriggerLineNotFound, nil)
}

// Upload wraps a storage provider failure for one attachment.
func Upload(source error, filename string) error {
	return wrapError(source, goerrors.CategoryExternal, "failed to upload "+filename, http.StatusBadGateway, CodeUpload,
		map[string]any{"filename": filename})
}

// CrmOperation wraps a CRM provider failure for the named operation.
func CrmOperation(source error, operation string) error {
	return wrapError(source, goerrors.CategoryExternal, operation+" failed", http.StatusBadGateway, CodeCrmOperation,
		map[string]any{"operation": operation})
}

// Lookup wraps a knowledge lookup failure for a company.
func Lookup(source error, company string) error {
	return wrapError(source, goerrors.CategoryExternal, "failed to resolve URL for "+company, http.StatusBadGateway, CodeLookup,
		map[string]any{"company": company})
}

// NotificationSend wraps an outbound mail failure.
func NotificationSend(source error, recipient string) error {
	return wrapError(source, goerrors.CategoryExternal, "failed to send notification", http.StatusBadGateway, CodeNotificationSend,
		map[string]any{"recipient": recipient})
}

// Config reports an invalid configuration value.
func Config(message string) error {
	return newError(message, goerrors.CategoryValidation, http.StatusInternalServerError, CodeConfig, nil)
}

// IsKind reports whether err, or any error it wraps, carries the given text code.
func IsKind(err error, textCode string) bool {
	for err != nil {
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			return false
		}
		if rich.TextCode == textCode {
			return true
		}
		err = rich.Source
	}
	return false
}

// HTTPStatus maps err to the status the webhook should answer with.
// Client-side kinds keep their 4xx code; everything else is a 500.
func HTTPStatus(err error) int {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Code >= 400 && rich.Code < 500 {
		return rich.Code
	}
	return http.StatusInternalServerError
}

// WithRequestID attaches a correlation id to err when it is a typed error.
func WithRequestID(err error, requestID string) error {
	var rich *goerrors.Error
	if requestID != "" && goerrors.As(err, &rich) {
		rich.WithRequestID(requestID)
	}
	return err
}
