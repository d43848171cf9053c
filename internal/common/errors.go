package common

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an AppError for transport mapping.
type Kind int

const (
	KindServer Kind = iota
	KindValidation
	KindNotFound
	KindAuthorization
)

// Stable error codes returned to clients.
const (
	CodeInvalidUserID         = "INVALID_USER_ID"
	CodeInvalidID             = "INVALID_ID"
	CodeInvalidReason         = "INVALID_REASON"
	CodeEmptyMessage          = "EMPTY_MESSAGE"
	CodeInvalidField          = "INVALID_FIELD"
	CodeAlreadyApproved       = "ALREADY_APPROVED"
	CodeAlreadyRejected       = "ALREADY_REJECTED"
	CodeNotPending            = "NOT_PENDING"
	CodeConversationNotFound  = "CONVERSATION_NOT_FOUND"
	CodeReviewNotFound        = "REVIEW_NOT_FOUND"
	CodeUserNotFound          = "USER_NOT_FOUND"
	CodeSystemAccountNotFound = "SYSTEM_ACCOUNT_NOT_FOUND"
	CodeAdminRequired         = "ADMIN_REQUIRED"
	CodeNotParticipant        = "NOT_PARTICIPANT"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeInternal              = "INTERNAL_SERVER_ERROR"
)

// AppError carries a kind, a machine-readable code and a client-safe message.
// Err holds the underlying cause and is never serialized.
type AppError struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func Validation(code, message string) *AppError {
	return &AppError{Kind: KindValidation, Code: code, Message: message}
}

func NotFound(code, message string) *AppError {
	return &AppError{Kind: KindNotFound, Code: code, Message: message}
}

func Forbidden(code, message string) *AppError {
	return &AppError{Kind: KindAuthorization, Code: code, Message: message}
}

// Internal wraps an unexpected failure. The message shown to clients is generic.
func Internal(err error) *AppError {
	return &AppError{Kind: KindServer, Code: CodeInternal, Message: "internal server error", Err: err}
}

// AsAppError returns the AppError in err's chain, or an Internal wrapper.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// IsKind reports whether err is an AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// HTTPStatus maps an error to its response status.
func HTTPStatus(err error) int {
	switch AsAppError(err).Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
