package command

import (
	"errors"
	"net/http"
)

// Kind classifies why a command did not succeed.
type Kind string

const (
	KindNotInitialized     Kind = "NotInitialized"
	KindEmptyCommand       Kind = "EmptyCommand"
	KindCommandNotAllowed  Kind = "CommandNotAllowed"
	KindArgumentRejected   Kind = "ArgumentRejected"
	KindCloneError         Kind = "CloneError"
	KindProcessSpawnError  Kind = "ProcessSpawnError"
	KindProcessNonZeroExit Kind = "ProcessNonZeroExit"
	KindTimeout            Kind = "Timeout"
	KindIOError            Kind = "IOError"
)

// HTTPStatus maps the kind to a response status: caller mistakes are 400,
// everything that went wrong while running is 500.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotInitialized, KindEmptyCommand, KindCommandNotAllowed, KindArgumentRejected:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified command failure. Message is what the caller sees.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or "" when err is not a *Error.
func KindOf(err error) Kind {
	var cmdErr *Error
	if errors.As(err, &cmdErr) {
		return cmdErr.Kind
	}
	return ""
}

// Result is the outcome of one command: output on success, Err otherwise.
type Result struct {
	Output string
	Err    *Error
}

// Success reports whether the command succeeded.
func (r Result) Success() bool {
	return r.Err == nil
}

func success(output string) Result {
	return Result{Output: output}
}

func failure(err *Error) Result {
	return Result{Err: err}
}
