package lobby

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why an inbound event was rejected; it is sent to the client as
// the error code.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindAuthorization ErrorKind = "authorization"
	KindPrecondition  ErrorKind = "precondition"
	KindNotFound      ErrorKind = "not_found"
	KindStorage       ErrorKind = "storage"
)

// Error is a rejected action. Key names the catalog message shown to the actor.
type Error struct {
	Kind ErrorKind
	Key  string
	Data map[string]any
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Kind, e.Key, e.Err)
	}
	return fmt.Sprintf("%s %s", e.Kind, e.Key)
}

func (e *Error) Unwrap() error { return e.Err }

// With attaches a template value for the message.
func (e *Error) With(k string, v any) *Error {
	if e.Data == nil {
		e.Data = make(map[string]any)
	}
	e.Data[k] = v
	return e
}

func (e *Error) wrap(err error) *Error {
	e.Err = err
	return e
}

func validationErr(key string) *Error    { return &Error{Kind: KindValidation, Key: "errors." + key} }
func authorizationErr(key string) *Error { return &Error{Kind: KindAuthorization, Key: "errors." + key} }
func preconditionErr(key string) *Error  { return &Error{Kind: KindPrecondition, Key: "errors." + key} }
func notFoundErr(key string) *Error      { return &Error{Kind: KindNotFound, Key: "errors." + key} }

func storageErr(err error) *Error {
	return &Error{Kind: KindStorage, Key: "errors.storage", Err: err}
}

// asError maps any handler error to an *Error; unknown errors are storage failures.
func asError(err error) *Error {
	var le *Error
	if errors.As(err, &le) {
		return le
	}
	return storageErr(err)
}

// KindOf returns the kind of err, or "" when err is nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	return asError(err).Kind
}
