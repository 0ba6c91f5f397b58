// Package errs defines the error kinds the core ever returns, per the
// error handling design: a caller sees exactly one kind plus optional
// context, never a panic on malformed external input.
package errs

import (
	"fmt"
	"strings"
)

// Kind categorizes an error the way the core surfaces it to callers
// and, at the transport boundary, to wire status codes.
type Kind int

const (
	// KindMissingDeps - apply received a patch whose prerequisites are absent.
	KindMissingDeps Kind = iota
	// KindHasDependents - unrecord asked to remove a patch still required.
	KindHasDependents
	// KindNotFound - patch, tag, channel, or inode not found.
	KindNotFound
	// KindInvalidPatch - corrupt body, hash mismatch, unknown atom tag.
	KindInvalidPatch
	// KindConflict - structural problem requiring operator intervention.
	KindConflict
	// KindStorage - substrate or filesystem failure.
	KindStorage
	// KindNetwork - transport failure; caller may retry.
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindMissingDeps:
		return "missing_deps"
	case KindHasDependents:
		return "has_dependents"
	case KindNotFound:
		return "not_found"
	case KindInvalidPatch:
		return "invalid_patch"
	case KindConflict:
		return "conflict"
	case KindStorage:
		return "storage_error"
	case KindNetwork:
		return "network_error"
	default:
		return "unknown"
	}
}

// Error is the single error type the core returns. Hashes carries the
// content-hash list for KindMissingDeps/KindHasDependents so callers
// can loop (fetch the missing ones, or unrecord the dependents) without
// string-parsing the message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Hashes  []string
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if len(e.Hashes) > 0 {
		sb.WriteString(" [")
		sb.WriteString(strings.Join(e.Hashes, ", "))
		sb.WriteString("]")
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates a bare error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a bare error of the given kind with formatting.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new error of the given kind.
func Wrap(cause error, kind Kind, message string) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// MissingDeps builds the expected missing-dependency error: apply
// resolved a dependency hash the channel doesn't have.
func MissingDeps(hashes []string) *Error {
	return &Error{
		Kind:    KindMissingDeps,
		Message: fmt.Sprintf("%d dependency hash(es) not present on channel", len(hashes)),
		Hashes:  hashes,
	}
}

// HasDependents builds the expected dependents-still-applied error:
// unrecord refused to remove a patch still required downstream.
func HasDependents(hashes []string) *Error {
	return &Error{
		Kind:    KindHasDependents,
		Message: fmt.Sprintf("%d dependent patch(es) still applied", len(hashes)),
		Hashes:  hashes,
	}
}

// NotFound builds a not-found error for a patch, tag, channel, or inode.
func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

// InvalidPatch builds an invalid-patch error with a reason.
func InvalidPatch(reason string) *Error {
	return &Error{Kind: KindInvalidPatch, Message: reason}
}

// InvalidPatchf builds an invalid-patch error with formatting.
func InvalidPatchf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidPatch, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a conflict descriptor error.
func Conflict(descriptor string) *Error {
	return &Error{Kind: KindConflict, Message: descriptor}
}

// Storage wraps a substrate or filesystem failure.
func Storage(cause error, message string) *Error {
	return Wrap(cause, KindStorage, message)
}

// Network wraps a transport failure; callers may retry these.
func Network(cause error, message string) *Error {
	return Wrap(cause, KindNetwork, message)
}

// KindOf returns the Kind of err, or KindStorage if err is not an *Error
// (an unexpected, non-core error is treated as an opaque storage-layer
// failure rather than panicking the caller).
func KindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindStorage
}

// Retriable reports whether the recovery policy treats this error kind
// as one the caller should retry (network_error) versus loop-and-fix
// (missing_deps, has_dependents) versus fatal-to-this-operation.
func Retriable(err error) bool {
	return KindOf(err) == KindNetwork
}
