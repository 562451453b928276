// Package errs enables error handling and definition at the test-client level.
package errs

import (
	"errors"
	"fmt"
	"runtime"
)

// Kind classifies an error for the calling test.
type Kind int

const (
	// KindUsage marks misuse of the client API: nested context preservation,
	// cookie operations without a jar, session transactions without a jar.
	KindUsage Kind = iota + 1

	// KindConfig marks invalid configuration: conflicting body arguments,
	// a session interface unable to open a session (missing secret key).
	KindConfig

	// KindProtocol marks a protocol or encoding violation, such as a
	// non-ASCII request path.
	KindProtocol

	// KindRedirect marks an exceeded redirect hop cap.
	KindRedirect
)

// String returns a short name for the kind.
func (k Kind) String() string {
	switch k {
	case KindUsage:
		return "usage"
	case KindConfig:
		return "config"
	case KindProtocol:
		return "protocol"
	case KindRedirect:
		return "redirect"
	}
	return "unknown"
}

// Error represents an error in the system.
type Error struct {
	Kind     Kind   `json:"kind"`
	Message  string `json:"message"`
	FuncName string `json:"-"`
	FileName string `json:"-"`
}

// New constructs an error of the given kind.
func New(kind Kind, err error) *Error {
	pc, filename, line, _ := runtime.Caller(1)

	return &Error{
		Kind:     kind,
		Message:  err.Error(),
		FuncName: runtime.FuncForPC(pc).Name(),
		FileName: fmt.Sprintf("%s:%d", filename, line),
	}
}

// Newf constructs an error of the given kind from a format string.
func Newf(kind Kind, format string, args ...any) *Error {
	pc, filename, line, _ := runtime.Caller(1)

	return &Error{
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
		FuncName: runtime.FuncForPC(pc).Name(),
		FileName: fmt.Sprintf("%s:%d", filename, line),
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// KindOf returns the kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return 0
	}
	return e.Kind
}

// IsUsage reports whether err is a usage error.
func IsUsage(err error) bool {
	return KindOf(err) == KindUsage
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool {
	return KindOf(err) == KindConfig
}

// IsProtocol reports whether err is a protocol or encoding error.
func IsProtocol(err error) bool {
	return KindOf(err) == KindProtocol
}

// IsRedirect reports whether err is a redirect-cap error.
func IsRedirect(err error) bool {
	return KindOf(err) == KindRedirect
}
