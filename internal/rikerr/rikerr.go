// Package rikerr defines the flat error taxonomy shared by every runtime
// component. Callers classify failures with errors.As against *Error and
// branch on Class rather than matching strings.
package rikerr

import "fmt"

// Class identifies which part of the system produced an error.
type Class string

const (
	// Parsing covers malformed WorkloadDefinitions or scheduling messages.
	Parsing Class = "parsing"
	// Fetching covers HTTP transport failures while downloading a rootfs.
	Fetching Class = "fetching"
	// Http covers a non-200 response from a rootfs registry.
	Http Class = "http"
	// Io covers filesystem failures.
	Io Class = "io"
	// Network covers netlink, firewall, and allocator failures.
	Network Class = "network"
	// FirecrackerApi covers microVM driver failures.
	FirecrackerApi Class = "firecracker_api"
	// FirepilotConfiguration covers a valid definition producing an invalid
	// microVM config. Reaching this class is a programmer error.
	FirepilotConfiguration Class = "firepilot_configuration"
	// NotRunning is returned by Down on an instance that was never started.
	NotRunning Class = "not_running"
	// Timeout covers a step that exceeded its configured deadline.
	Timeout Class = "timeout"
	// Other is the catch-all for anything not otherwise classified.
	Other Class = "other"
)

// Error is the concrete error type every runtime component returns.
type Error struct {
	Class Class
	// Step names the operation that failed, e.g. "tap_add", or the step
	// that timed out for Timeout errors, e.g. "network.preboot".
	Step string
	// Code carries the HTTP status for Class == Http.
	Code  int
	Cause error
}

func (e *Error) Error() string {
	if e.Step == "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Class, e.Cause)
		}
		return string(e.Class)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s[%s]: %v", e.Class, e.Step, e.Cause)
	}
	return fmt.Sprintf("%s[%s]", e.Class, e.Step)
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus returns the HTTP status code carried by a Class == Http
// error, and false for any other class.
func (e *Error) HTTPStatus() (int, bool) {
	if e.Class != Http {
		return 0, false
	}
	return e.Code, true
}

// New builds an Error with no wrapped cause.
func New(class Class, step string) *Error {
	return &Error{Class: class, Step: step}
}

// Wrap builds an Error around an existing cause.
func Wrap(class Class, step string, cause error) *Error {
	return &Error{Class: class, Step: step, Cause: cause}
}

// HTTPError builds a Class == Http error carrying the response status code.
func HTTPError(step string, code int) *Error {
	return &Error{Class: Http, Step: step, Code: code}
}

// ClassOf returns the Class of err if it (or something it wraps) is an
// *Error, and Other otherwise.
func ClassOf(err error) Class {
	var e *Error
	if As(err, &e) {
		return e.Class
	}
	return Other
}

// As walks err's single-error Unwrap chain and stores the first *Error it
// finds in target, so callers of this package do not need a second import
// for the common case. Errors that wrap several causes (Unwrap() []error)
// are not searched.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
