// Package bridgeerr defines the error taxonomy surfaced by the manager:
// StartupFailed, MethodNotFound, InvocationFailed, ChildExitedUnexpectedly,
// DeserialisationFailed, and TransportClosed. Values are sentinel-comparable
// via errors.Is/errors.As, matching the plain fmt.Errorf/errors style used
// throughout the rest of the bridge.
package bridgeerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies which row of the error taxonomy an Error belongs to.
type Kind int

const (
	StartupFailed Kind = iota
	MethodNotFound
	InvocationFailed
	ChildExitedUnexpectedly
	DeserialisationFailed
	TransportClosed
)

func (k Kind) String() string {
	switch k {
	case StartupFailed:
		return "StartupFailed"
	case MethodNotFound:
		return "MethodNotFound"
	case InvocationFailed:
		return "InvocationFailed"
	case ChildExitedUnexpectedly:
		return "ChildExitedUnexpectedly"
	case DeserialisationFailed:
		return "DeserialisationFailed"
	case TransportClosed:
		return "TransportClosed"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type for every row of the taxonomy.
type Error struct {
	Kind     Kind
	Message  string
	ExitCode int   // only meaningful for StartupFailed
	Cause    error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Kind == StartupFailed {
		return fmt.Sprintf("%s (exit code %d)", e.Message, e.ExitCode)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error of the same Kind, so callers can
// write errors.Is(err, bridgeerr.ErrChildExitedUnexpectedly) against the
// sentinel values below, or errors.As to recover the full Error value.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// NewStartupFailed reports that the child exited before both transport
// endpoints connected.
func NewStartupFailed(exitCode int) *Error {
	return &Error{
		Kind:     StartupFailed,
		Message:  "runner process exited before startup completed",
		ExitCode: exitCode,
	}
}

// NewMethodNotFound reports that the runner could not resolve a Call's
// method name. message is the runner's literal "Method <name> not found"
// response text (spec.md §7), carried through unchanged so the caller sees
// exactly what was on the wire.
func NewMethodNotFound(message string) *Error {
	return &Error{Kind: MethodNotFound, Message: message}
}

// NewInvocationFailed reports that a hosted method body raised; message is
// its root-cause text, with any wrapper chain already unwound by the runner.
func NewInvocationFailed(message string) *Error {
	return &Error{Kind: InvocationFailed, Message: message}
}

// FromResponseMessage classifies an error Response's decoded message text
// into the taxonomy row the runner actually produced it from. The runner's
// dispatch emits the literal "Method <name> not found" shape for an
// unresolved method name (spec.md §4.4) and the method's own root-cause
// message for every other failure, so that literal shape is the only signal
// the manager has to distinguish MethodNotFound from InvocationFailed on
// the wire.
func FromResponseMessage(message string) *Error {
	if strings.HasPrefix(message, "Method ") && strings.HasSuffix(message, " not found") {
		return NewMethodNotFound(message)
	}
	return NewInvocationFailed(message)
}

// NewChildExitedUnexpectedly reports that the child terminated while calls
// were pending. The message must contain this exact phrase per the wire
// contract observed by callers.
func NewChildExitedUnexpectedly() *Error {
	return &Error{
		Kind:    ChildExitedUnexpectedly,
		Message: "Process exited unexpectedly",
	}
}

// NewTransportClosed reports a read or write error on either transport.
func NewTransportClosed(cause error) *Error {
	return &Error{
		Kind:    TransportClosed,
		Message: fmt.Sprintf("transport closed: %v", cause),
		Cause:   cause,
	}
}

// NewDeserialisationFailed reports that a frame's payload did not match the
// shape the reader expected.
func NewDeserialisationFailed(cause error) *Error {
	return &Error{
		Kind:    DeserialisationFailed,
		Message: fmt.Sprintf("deserialisation failed: %v", cause),
		Cause:   cause,
	}
}

// sentinel builds the Kind-only Error values below, usable with
// errors.Is(err, bridgeerr.ErrMethodNotFound) and the like; the
// Kind-comparing Is method above also matches any other Error of the
// desired Kind.
func sentinel(k Kind) *Error { return &Error{Kind: k} }

var (
	// ErrStartupFailed matches any *Error with Kind == StartupFailed.
	ErrStartupFailed = sentinel(StartupFailed)
	// ErrMethodNotFound matches any *Error with Kind == MethodNotFound.
	ErrMethodNotFound = sentinel(MethodNotFound)
	// ErrInvocationFailed matches any *Error with Kind == InvocationFailed.
	ErrInvocationFailed = sentinel(InvocationFailed)
	// ErrChildExitedUnexpectedly matches any *Error with Kind == ChildExitedUnexpectedly.
	ErrChildExitedUnexpectedly = sentinel(ChildExitedUnexpectedly)
	// ErrDeserialisationFailed matches any *Error with Kind == DeserialisationFailed.
	ErrDeserialisationFailed = sentinel(DeserialisationFailed)
	// ErrTransportClosed matches any *Error with Kind == TransportClosed.
	ErrTransportClosed = sentinel(TransportClosed)
)
