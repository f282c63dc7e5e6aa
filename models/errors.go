package models

import (
	"errors"
	"fmt"
)

// Track error codes. These are the caller-facing taxonomy for scan/order operations:
// CONFLICT means the state machine rejected the transition (duplicate or out-of-order
// scan) and must not be retried; AGGREGATE_SYNC_FAILURE means the carton's own status
// committed but a dependent aggregate recomputation failed and was flagged for resync.
const (
	TrackErrNotFound             = "NOT_FOUND"
	TrackErrConflict             = "CONFLICT"
	TrackErrInvalidInput         = "INVALID_INPUT"
	TrackErrAggregateSyncFailure = "AGGREGATE_SYNC_FAILURE"
)

// TrackError represents tracking-core errors surfaced to operator tooling.
type TrackError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func (e *TrackError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewNotFoundError(message string) *TrackError {
	return &TrackError{Code: TrackErrNotFound, Message: message}
}

func NewConflictError(message string, detail string) *TrackError {
	return &TrackError{Code: TrackErrConflict, Message: message, Detail: detail}
}

func NewInvalidInputError(message string) *TrackError {
	return &TrackError{Code: TrackErrInvalidInput, Message: message}
}

func NewAggregateSyncFailure(message string, detail string) *TrackError {
	return &TrackError{Code: TrackErrAggregateSyncFailure, Message: message, Detail: detail}
}

func AsTrackError(err error) (*TrackError, bool) {
	var te *TrackError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

func IsNotFound(err error) bool {
	te, ok := AsTrackError(err)
	return ok && te.Code == TrackErrNotFound
}

func IsConflict(err error) bool {
	te, ok := AsTrackError(err)
	return ok && te.Code == TrackErrConflict
}

func IsInvalidInput(err error) bool {
	te, ok := AsTrackError(err)
	return ok && te.Code == TrackErrInvalidInput
}

func IsAggregateSyncFailure(err error) bool {
	te, ok := AsTrackError(err)
	return ok && te.Code == TrackErrAggregateSyncFailure
}
