package workcell

import (
	"errors"
	"fmt"
)

// Error codes. Every rejected operation carries exactly one of these as
// its Code, so callers can branch with errors.Is.
var (
	ErrDanglingReference      = errors.New("dangling reference")
	ErrCyclicTopology         = errors.New("cyclic topology")
	ErrDuplicateIdentifier    = errors.New("duplicate identifier")
	ErrUnresolvedName         = errors.New("unresolved name")
	ErrMalformedDocument      = errors.New("malformed document")
	ErrUnsupportedTopology    = errors.New("unsupported topology")
	ErrReferencedEntityInUse  = errors.New("referenced entity in use")
	ErrUndoPreconditionFailed = errors.New("undo precondition failed")
	ErrInvalidProperty        = errors.New("invalid property")
)

// ErrNotFound is returned when the target of an operation does not exist.
// It is a dangling reference from the caller's point of view.
var ErrNotFound = fmt.Errorf("entity not found: %w", ErrDanglingReference)

// ValidationSeverity indicates whether a finding blocks a commit or is
// merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // blocks the commit
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single integrity finding: which entity,
// which rule, and why.
type ValidationError struct {
	Code     error // one of the Err* codes
	Entity   Ref   // offending entity (zero if workcell-level)
	Message  string
	Severity ValidationSeverity
	Cause    error // optional underlying error
}

func (e *ValidationError) Error() string {
	prefix := ""
	if e.Severity == SeverityWarning {
		prefix = "[warning] "
	}
	if e.Entity.IsZero() {
		return fmt.Sprintf("%s%v: %s", prefix, e.Code, e.Message)
	}
	return fmt.Sprintf("%s%s: %v: %s", prefix, e.Entity, e.Code, e.Message)
}

// Unwrap exposes both the code and the cause to errors.Is and errors.As.
func (e *ValidationError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Code, e.Cause}
	}
	return []error{e.Code}
}

func newError(code error, ref Ref, format string, args ...any) *ValidationError {
	return &ValidationError{
		Code:     code,
		Entity:   ref,
		Message:  fmt.Sprintf(format, args...),
		Severity: SeverityError,
	}
}

func newWarning(code error, ref Ref, format string, args ...any) *ValidationError {
	e := newError(code, ref, format, args...)
	e.Severity = SeverityWarning
	return e
}

// Errorf builds an error-severity ValidationError. It is used by the
// codecs so that document failures carry the same shape as integrity
// failures.
func Errorf(code error, ref Ref, format string, args ...any) *ValidationError {
	return newError(code, ref, format, args...)
}

// firstError returns the first error-severity finding, or nil.
func firstError(findings []*ValidationError) error {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return f
		}
	}
	return nil
}
