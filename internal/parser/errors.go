package parser

import (
	"errors"
	"fmt"
)

// ErrorKind classifies parse failures. Every failure mode of the parser is
// one of these; the parser never panics on malformed input.
type ErrorKind string

const (
	KindEmptyBody      ErrorKind = "empty-body"
	KindControlMessage ErrorKind = "control-message"
	KindInvalidJSON    ErrorKind = "invalid-json"
	KindInvalidFormat  ErrorKind = "invalid-format"
	KindMissingFields  ErrorKind = "missing-fields"
)

// ParseError is the typed failure result of Parse.
type ParseError struct {
	Kind ErrorKind
	// ControlType is set for control-message errors and names the envelope
	// type that was dropped ("SubscriptionConfirmation", etc.).
	ControlType string
	Detail      string
	Err         error
}

func (e *ParseError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("parse %s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("parse %s", e.Kind)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is makes errors.Is match any ParseError with the same kind, so callers
// can test against the kind sentinels below.
func (e *ParseError) Is(target error) bool {
	t, ok := target.(*ParseError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.ControlType == "" || t.ControlType == e.ControlType)
}

// Kind sentinels for errors.Is checks.
var (
	ErrEmptyBody      = &ParseError{Kind: KindEmptyBody}
	ErrControlMessage = &ParseError{Kind: KindControlMessage}
	ErrInvalidJSON    = &ParseError{Kind: KindInvalidJSON}
	ErrInvalidFormat  = &ParseError{Kind: KindInvalidFormat}
	ErrMissingFields  = &ParseError{Kind: KindMissingFields}

	// Distinct control errors for the two pub/sub handshake envelope types.
	// They are intentionally dropped, never retried.
	ErrSubscriptionConfirmation = &ParseError{Kind: KindControlMessage, ControlType: "SubscriptionConfirmation"}
	ErrUnsubscribeConfirmation  = &ParseError{Kind: KindControlMessage, ControlType: "UnsubscribeConfirmation"}
)

// KindOf returns the kind of a parse error, or "" when err is not one.
func KindOf(err error) ErrorKind {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
