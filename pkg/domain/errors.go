package domain

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
)

// Kind is a machine-readable mutation failure category.
type Kind string

// Failure kinds returned by the mutation pipeline.
const (
	KindPermissionDenied Kind = "PERMISSION_DENIED"
	KindValidationFailed Kind = "VALIDATION_FAILED"
	KindNotFound         Kind = "NOT_FOUND"
	KindVersionMismatch  Kind = "CONFLICT_VERSION_MISMATCH"
	KindAlreadyExists    Kind = "ALREADY_EXISTS"
	KindPersistence      Kind = "PERSISTENCE_FAILURE"
	KindProcessor        Kind = "PROCESSOR_FAILURE"
	KindExternalService  Kind = "EXTERNAL_SERVICE_FAILURE"
	KindUnknown          Kind = "UNKNOWN"
)

const errorSeparator = ": "

// GRPCCode maps the failure kind to a gRPC status code for transports.
func (k Kind) GRPCCode() codes.Code {
	switch k {
	case KindPermissionDenied:
		return codes.PermissionDenied
	case KindValidationFailed, KindProcessor:
		return codes.InvalidArgument
	case KindNotFound:
		return codes.NotFound
	case KindVersionMismatch:
		return codes.Aborted
	case KindAlreadyExists:
		return codes.AlreadyExists
	case KindExternalService:
		return codes.Unavailable
	case KindPersistence:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// Error is the typed failure returned by the mutation pipeline. Callers branch
// on Kind; the remaining fields carry enough detail to act without re-deriving it.
type Error struct {
	Kind       Kind
	Message    string
	ItemID     string
	Violations []Violation
	Expected   int64
	Actual     int64
	Step       string
	Cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(string(e.Kind)))
	if e.Message != "" {
		b.WriteString(errorSeparator)
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(errorSeparator)
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target carries the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// Sentinels for errors.Is comparisons.
var (
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}
	ErrValidationFailed = &Error{Kind: KindValidationFailed}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrVersionMismatch  = &Error{Kind: KindVersionMismatch}
	ErrAlreadyExists    = &Error{Kind: KindAlreadyExists}
	ErrPersistence      = &Error{Kind: KindPersistence}
	ErrProcessor        = &Error{Kind: KindProcessor}
	ErrExternalService  = &Error{Kind: KindExternalService}
)

// KindOf extracts the failure kind from err, returning KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// PermissionDenied builds a permission failure.
func PermissionDenied(reason string) *Error {
	return &Error{Kind: KindPermissionDenied, Message: reason}
}

// ValidationFailed builds a validation failure carrying every violation.
func ValidationFailed(violations []Violation) *Error {
	parts := make([]string, 0, len(violations))
	for _, v := range violations {
		parts = append(parts, v.Field+" "+v.Reason)
	}
	return &Error{
		Kind:       KindValidationFailed,
		Message:    strings.Join(parts, ", "),
		Violations: append([]Violation(nil), violations...),
	}
}

// NotFound builds a missing-item failure.
func NotFound(id string) *Error {
	return &Error{Kind: KindNotFound, ItemID: id, Message: fmt.Sprintf("item %s not found", id)}
}

// VersionMismatch builds an optimistic concurrency failure.
func VersionMismatch(id string, expected, actual int64) *Error {
	return &Error{
		Kind:     KindVersionMismatch,
		ItemID:   id,
		Expected: expected,
		Actual:   actual,
		Message:  fmt.Sprintf("item %s expected version %d, stored version %d", id, expected, actual),
	}
}

// AlreadyExists builds a duplicate identity failure.
func AlreadyExists(id string) *Error {
	return &Error{Kind: KindAlreadyExists, ItemID: id, Message: fmt.Sprintf("item %s already exists", id)}
}

// PersistenceFailure wraps a fatal store error verbatim.
func PersistenceFailure(op string, cause error) *Error {
	return &Error{Kind: KindPersistence, Message: op, Cause: cause}
}

// ProcessorFailure builds a processor step failure.
func ProcessorFailure(step string, cause error) *Error {
	return &Error{Kind: KindProcessor, Step: step, Message: fmt.Sprintf("step %q failed", step), Cause: cause}
}

// ExternalServiceFailure builds a collaborator failure. It is only returned as
// an error when the caller explicitly configured the collaborator as blocking.
func ExternalServiceFailure(source string, cause error) *Error {
	return &Error{Kind: KindExternalService, Step: source, Message: source, Cause: cause}
}
