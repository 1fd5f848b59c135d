package shared

import "errors"

// Kind classifies core errors so the boundary layer can map them to
// transport failure codes without string matching.
type Kind int

const (
	// KindUnknown covers errors raised outside the core taxonomy.
	KindUnknown Kind = iota
	// KindValidation indicates malformed or contradictory input.
	KindValidation
	// KindState indicates an operation illegal in the entity's current state.
	KindState
	// KindNotFound indicates a missing entity.
	KindNotFound
	// KindConflict indicates a uniqueness or concurrency conflict.
	KindConflict
)

// Error is a sentinel error carrying its taxonomy kind. Packages declare
// their sentinels with the constructors below and compare with errors.Is.
type Error struct {
	kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Kind returns the taxonomy kind of the error.
func (e *Error) Kind() Kind { return e.kind }

// Validation builds a validation-kind sentinel.
func Validation(msg string) *Error { return &Error{kind: KindValidation, msg: msg} }

// State builds a state-kind sentinel.
func State(msg string) *Error { return &Error{kind: KindState, msg: msg} }

// NotFound builds a not-found sentinel.
func NotFound(msg string) *Error { return &Error{kind: KindNotFound, msg: msg} }

// Conflict builds a conflict sentinel.
func Conflict(msg string) *Error { return &Error{kind: KindConflict, msg: msg} }

// KindOf extracts the taxonomy kind from err, unwrapping as needed.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsState reports whether err is a state error.
func IsState(err error) bool { return KindOf(err) == KindState }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }
