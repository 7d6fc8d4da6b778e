// Package fs provides the shared vocabulary of the virtual filesystem
// core: the error taxonomy, the channel contract, the environment map,
// option normalization and the attribute translation table. It has no
// knowledge of any concrete backend.
package fs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies a behavioral category of failure, independent of any
// concrete Go error type. Callers should switch on Kind (via AsError),
// never on string matching.
type Kind int

// The error taxonomy of the core, see spec §7.
const (
	// KindUnknown is the zero value of Kind. No *Error built by this
	// module carries it; KindOf returns it for an error that is not an
	// *Error.
	KindUnknown Kind = iota
	KindNotFound
	KindAlreadyExists
	KindNotADirectory
	KindDirectoryNotEmpty
	KindAccessDenied
	KindUnsupportedOperation
	KindUnsupportedAttribute
	KindUnsupportedView
	KindUnsupportedOption
	KindInvalidArgument
	KindProviderMismatch
	KindPoolShutdown
	KindTimeout
	KindInterrupted
	KindIOFailure
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not-found"
	case KindAlreadyExists:
		return "already-exists"
	case KindNotADirectory:
		return "not-a-directory"
	case KindDirectoryNotEmpty:
		return "directory-not-empty"
	case KindAccessDenied:
		return "access-denied"
	case KindUnsupportedOperation:
		return "unsupported-operation"
	case KindUnsupportedAttribute:
		return "unsupported-attribute"
	case KindUnsupportedView:
		return "unsupported-view"
	case KindUnsupportedOption:
		return "unsupported-option"
	case KindInvalidArgument:
		return "invalid-argument"
	case KindProviderMismatch:
		return "provider-mismatch"
	case KindPoolShutdown:
		return "pool-shutdown"
	case KindTimeout:
		return "timeout"
	case KindInterrupted:
		return "interrupted"
	case KindIOFailure:
		return "io-failure"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by every operation in this
// module. It always carries a Kind and, when the failure is path
// qualified, the offending path string verbatim (never a credential).
type Error struct {
	Kind  Kind
	Path  string // empty when the failure is not path-qualified
	Msg   string
	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		if e.Msg != "" {
			return fmt.Sprintf("%s: %s: %s", e.Path, e.Kind, e.Msg)
		}
		return fmt.Sprintf("%s: %s", e.Path, e.Kind)
	}
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return e.Kind.String()
}

// Unwrap exposes the wrapped cause so errors.Is/errors.As keep working
// across this package's boundary.
func (e *Error) Unwrap() error {
	return e.cause
}

// New builds a bare *Error of the given kind with a message, no path,
// no cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// NewPath builds a path-qualified *Error.
func NewPath(kind Kind, path, msg string) *Error {
	return &Error{Kind: kind, Path: path, Msg: msg}
}

// Wrap annotates cause with a Kind and an optional path, preserving it
// as the Unwrap/errors.Cause chain the way the teacher's backends wrap
// transport errors. The cause's message is scrubbed of credential-shaped
// substrings before it is copied into Msg (spec §7).
func Wrap(kind Kind, path string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Path: path, Msg: Scrub(errors.Cause(cause).Error()), cause: cause}
}

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Kind == kind
}

// KindOf extracts the Kind of err, or KindUnknown if err is not (or does
// not wrap) an *Error.
func KindOf(err error) Kind {
	var fe *Error
	if !errors.As(err, &fe) {
		return KindUnknown
	}
	return fe.Kind
}
