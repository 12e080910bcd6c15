// Package apperr defines the error kinds surfaced by speechviz.
//
// Every user-facing failure carries a Kind and a short human-readable
// Message. Technical detail travels in the wrapped error and is only logged;
// handlers render Message to the caller.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindConfigMissing          Kind = "config_missing"
	KindInputInvalid           Kind = "input_invalid"
	KindTransport              Kind = "transport"
	KindProviderError          Kind = "provider_error"
	KindDecodeError            Kind = "decode_error"
	KindTimeout                Kind = "timeout"
	KindUnsupportedEnvironment Kind = "unsupported_environment"
	KindAlreadyWrapped         Kind = "already_wrapped"
)

// Sentinels for errors.Is checks against a kind.
var (
	ErrConfigMissing          = &Error{Kind: KindConfigMissing}
	ErrInputInvalid           = &Error{Kind: KindInputInvalid}
	ErrTransport              = &Error{Kind: KindTransport}
	ErrProviderError          = &Error{Kind: KindProviderError}
	ErrDecodeError            = &Error{Kind: KindDecodeError}
	ErrTimeout                = &Error{Kind: KindTimeout}
	ErrUnsupportedEnvironment = &Error{Kind: KindUnsupportedEnvironment}
	ErrAlreadyWrapped         = &Error{Kind: KindAlreadyWrapped}
)

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Message string // safe to show to users
	Err     error  // technical detail, logged only
}

// E builds a classified error.
func E(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the package sentinels work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Message returns the user-facing message of err, falling back to fallback
// when err is not classified or carries no message.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}
