package shared

import "errors"

// Kind classifies a domain failure for transport-layer mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindUnauthorized
	KindForbidden
	KindNotFound
)

// Error is a domain error carrying its classification and a user-safe message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Validation reports malformed input.
func Validation(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Conflict reports a uniqueness violation.
func Conflict(msg string) error {
	return &Error{Kind: KindConflict, Message: msg}
}

// Unauthorized reports a missing, invalid or expired credential.
func Unauthorized(msg string) error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

// Forbidden reports a protected-resource violation.
func Forbidden(msg string) error {
	return &Error{Kind: KindForbidden, Message: msg}
}

// NotFound reports a missing entity.
func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// KindOf extracts the classification of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return KindInternal
}

// UserSafeMessage returns a message suitable for API responses. Internal
// failures never leak their detail.
func UserSafeMessage(err error) string {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return "Internal server error"
}
