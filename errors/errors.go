// Package errors implements IcyDB's public error taxonomy: a class x origin
// pair carried on every fault the engine surfaces, per spec.md §7.
package errors

import (
	"fmt"

	"github.com/go-stack/stack"
)

// Class is the error taxonomy's class axis.
type Class string

const (
	ClassInvariantViolation Class = "InvariantViolation"
	ClassCorruption         Class = "Corruption"
	ClassConflict           Class = "Conflict"
	ClassUnsupported        Class = "Unsupported"
	ClassNotFound           Class = "NotFound"
	ClassInternal           Class = "Internal"
	ClassSerialize          Class = "Serialize"
)

// Origin is the error taxonomy's origin axis.
type Origin string

const (
	OriginExecutor  Origin = "Executor"
	OriginIndex     Origin = "Index"
	OriginInterface Origin = "Interface"
	OriginQuery     Origin = "Query"
	OriginResponse  Origin = "Response"
	OriginSerialize Origin = "Serialize"
	OriginStore     Origin = "Store"
)

// Error is IcyDB's internal fault type. Corruption and InvariantViolation
// faults capture the raising call site so a fatal condition can be traced
// without a panic.
type Error struct {
	Class   Class
	Origin  Origin
	Message string
	Frame   string
}

func (e *Error) Error() string {
	if e.Frame != "" {
		return fmt.Sprintf("%s/%s: %s (at %s)", e.Origin, e.Class, e.Message, e.Frame)
	}
	return fmt.Sprintf("%s/%s: %s", e.Origin, e.Class, e.Message)
}

// New constructs an Error, capturing a call-site frame for fatal classes.
func New(class Class, origin Origin, message string) *Error {
	e := &Error{Class: class, Origin: origin, Message: message}
	if class == ClassCorruption || class == ClassInvariantViolation {
		e.Frame = callerFrame()
	}
	return e
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(class Class, origin Origin, format string, args ...any) *Error {
	return New(class, origin, fmt.Sprintf(format, args...))
}

// WithMessage returns a copy of e with a replaced message, preserving class/origin/frame.
func (e *Error) WithMessage(message string) *Error {
	cp := *e
	cp.Message = message
	return &cp
}

func callerFrame() string {
	cs := stack.Trace().TrimRuntime()
	if len(cs) < 3 {
		return ""
	}
	// Skip New/Newf and the immediate caller in this package.
	return fmt.Sprintf("%+v", cs[2])
}

// Is reports whether err is an *Error of the given class.
func Is(err error, class Class) bool {
	e, ok := err.(*Error)
	return ok && e.Class == class
}

// StoreCorruption is a convenience constructor matching the original engine's
// `InternalError::store_corruption` helper.
func StoreCorruption(message string) *Error {
	return New(ClassCorruption, OriginStore, message)
}

// StoreCorruptionf is StoreCorruption with formatting.
func StoreCorruptionf(format string, args ...any) *Error {
	return Newf(ClassCorruption, OriginStore, format, args...)
}

// StoreInternal matches `InternalError::store_internal`.
func StoreInternal(message string) *Error {
	return New(ClassInternal, OriginStore, message)
}

// StoreUnsupported matches `InternalError::store_unsupported`.
func StoreUnsupported(message string) *Error {
	return New(ClassUnsupported, OriginStore, message)
}

// NotFound and NotUnique back Response's require_one/require_some helpers.
func NotFound(entity string) *Error {
	return Newf(ClassNotFound, OriginResponse, "expected exactly one row, found 0 (entity %s)", entity)
}

func NotUnique(entity string, count int) *Error {
	return Newf(ClassNotFound, OriginResponse, "expected exactly one row, found %d (entity %s)", count, entity)
}
