package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures for operators and API callers.
type ErrorKind string

const (
	KindNoDocumentsFound   ErrorKind = "NoDocumentsFound"
	KindDocumentParseError ErrorKind = "DocumentParseError"
	KindIndexUnavailable   ErrorKind = "IndexUnavailable"
	KindInvalidQuery       ErrorKind = "InvalidQuery"
	KindGenerationError    ErrorKind = "GenerationError"
	KindConfigurationError ErrorKind = "ConfigurationError"
	KindInternal           ErrorKind = "Internal"
)

// Error carries a kind, the thing it is about (file, option, path) and the cause.
type Error struct {
	Kind    ErrorKind
	Subject string
	Err     error
}

var (
	ErrNoDocumentsFound = &Error{Kind: KindNoDocumentsFound}
	ErrDocumentParse    = &Error{Kind: KindDocumentParseError}
	ErrIndexUnavailable = &Error{Kind: KindIndexUnavailable}
	ErrInvalidQuery     = &Error{Kind: KindInvalidQuery}
	ErrGeneration       = &Error{Kind: KindGenerationError}
	ErrConfiguration    = &Error{Kind: KindConfigurationError}
)

func NewError(kind ErrorKind, subject string, err error) *Error {
	return &Error{Kind: kind, Subject: subject, Err: err}
}

// Errorf builds an Error whose cause is a formatted message.
func Errorf(kind ErrorKind, subject, format string, args ...any) *Error {
	return &Error{Kind: kind, Subject: subject, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Subject != "" {
		msg += " (" + e.Subject + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
