package domain

import (
	"errors"
	"strings"
)

// Kind classifies a failure so the transport layer can answer without
// knowing every individual error value.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindAuthorization Kind = "authorization"
	KindConflict      Kind = "conflict"
	KindState         Kind = "state"
)

// Error is a classified domain failure with a human-readable reason.
//
// Package level sentinels are *Error values; errors.Is matches them by
// identity. The kind sentinels below (empty Reason) match any *Error of the
// same kind, so callers can test for a whole class of failures.
type Error struct {
	Kind   Kind
	Reason string
	Fields []string
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return e.Reason
	}
	return e.Reason + ": " + strings.Join(e.Fields, "; ")
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason == "" && len(t.Fields) == 0 && t.Kind == e.Kind
}

var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrConflict      = &Error{Kind: KindConflict}
	ErrState         = &Error{Kind: KindState}
)

func Validation(reason string, fields ...string) *Error {
	return &Error{Kind: KindValidation, Reason: reason, Fields: fields}
}

func NotFound(reason string) *Error {
	return &Error{Kind: KindNotFound, Reason: reason}
}

func Forbidden(reason string) *Error {
	return &Error{Kind: KindAuthorization, Reason: reason}
}

func Conflict(reason string) *Error {
	return &Error{Kind: KindConflict, Reason: reason}
}

func State(reason string) *Error {
	return &Error{Kind: KindState, Reason: reason}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}
