package relay

import (
	"errors"
	"fmt"
)

// Kind classifies a relay error so callers can decide between terminal
// conditions (not found, unauthorized) and retryable ones (external call,
// validation). The HTTP layer maps kinds to status codes.
type Kind string

const (
	// KindNotFound: event or slug unknown. Terminal.
	KindNotFound Kind = "not_found"
	// KindUnauthorized: acting user is not the moderator, not a listed
	// participant, or not the current participant. Terminal.
	KindUnauthorized Kind = "unauthorized"
	// KindValidation: malformed name/slug/submission list. Recoverable,
	// carries field-level messages.
	KindValidation Kind = "validation"
	// KindSlugConflict: slug already in use. Recoverable, field error on slug.
	KindSlugConflict Kind = "slug_conflict"
	// KindAuthExpired: the Twitch token expired and the single
	// refresh-and-retry also failed. Re-login required.
	KindAuthExpired Kind = "auth_expired"
	// KindExternalCall: raid trigger or handle lookup failed. The cursor is
	// unchanged and the operation may be retried.
	KindExternalCall Kind = "external_call"
	// KindNoNextParticipant: the acting submission is last by order. Terminal
	// for the action, reported as a condition rather than a fault.
	KindNoNextParticipant Kind = "no_next_participant"
)

// Error is the structured result reported for every failed relay operation.
// It is returned as a value, never panicked.
type Error struct {
	Kind    Kind
	Message string
	// Fields holds per-field validation messages (KindValidation and
	// KindSlugConflict only).
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind from an error chain, or "" for non-relay errors.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// FieldsOf extracts validation field messages from an error chain, if any.
func FieldsOf(err error) map[string]string {
	var re *Error
	if errors.As(err, &re) {
		return re.Fields
	}
	return nil
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func Validation(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: fields}
}

func SlugConflict(slug string) *Error {
	return &Error{
		Kind:    KindSlugConflict,
		Message: "slug already in use",
		Fields:  map[string]string{"slug": fmt.Sprintf("slug %q is already in use", slug)},
	}
}

func AuthExpired(err error) *Error {
	return &Error{Kind: KindAuthExpired, Message: "twitch authorization expired", Err: err}
}

func ExternalCall(err error) *Error {
	return &Error{Kind: KindExternalCall, Message: "twitch api call failed", Err: err}
}

func NoNextParticipant() *Error {
	return &Error{Kind: KindNoNextParticipant, Message: "you are the last participant in the relay"}
}
