package utils

import (
	"errors"
	"fmt"
	"time"
)

var ErrorRecordNotFound = errors.New("record not found")

// NotFoundError reports an unknown session or record.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// ExpiredSessionError reports an operation against a session whose
// expires_at has passed, whether or not the row was already swept.
type ExpiredSessionError struct {
	SessionId string
	ExpiredAt time.Time
}

func (e *ExpiredSessionError) Error() string {
	return fmt.Sprintf("sync session %q expired at %s", e.SessionId, e.ExpiredAt.UTC().Format(time.RFC3339))
}

// InvalidTransitionError reports a commit/cancel/decision against a session
// that is no longer pending.
type InvalidTransitionError struct {
	SessionId string
	Status    string
	Attempted string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("sync session %q is %s; cannot %s", e.SessionId, e.Status, e.Attempted)
}

// ValidationError reports a malformed decision payload or an unknown
// record/field reference.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// UpstreamFetchError reports that the external directory was unreachable
// while generating a preview. Retryable by the caller.
type UpstreamFetchError struct {
	Collection string
	Err        error
}

func (e *UpstreamFetchError) Error() string {
	return fmt.Sprintf("fetching %s from external directory: %v", e.Collection, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) || errors.Is(err, ErrorRecordNotFound)
}

func IsExpired(err error) bool {
	var ex *ExpiredSessionError
	return errors.As(err, &ex)
}

func IsInvalidTransition(err error) bool {
	var it *InvalidTransitionError
	return errors.As(err, &it)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsUpstreamFetch(err error) bool {
	var uf *UpstreamFetchError
	return errors.As(err, &uf)
}
