package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrConcurrentModification means the asset's ledger changed between read and commit.
	// Callers reload and retry.
	ErrConcurrentModification = errors.New("ledger changed concurrently")
	ErrAssetNotFound          = errors.New("asset not found")
	ErrOwnershipNotFound      = errors.New("ownership record not found")
	// ErrRecordDisputed blocks replacing a record while its dispute is open.
	ErrRecordDisputed = errors.New("ownership record is under dispute")
)

// ValidationError is an input fault. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

type InsufficientOwnershipError struct {
	AssetID   uuid.UUID
	CreatorID uuid.UUID
	Requested int
	Available int
}

func (e *InsufficientOwnershipError) Error() string {
	return fmt.Sprintf("creator %s holds %d bps of asset %s, cannot move %d bps",
		e.CreatorID, e.Available, e.AssetID, e.Requested)
}

// InvariantViolationError rejects a proposed ledger state. Violations name the offending
// intervals and observed totals.
type InvariantViolationError struct {
	Violations []Violation
}

func (e *InvariantViolationError) Error() string {
	return "ownership invariant violated: " + describeViolations(e.Violations)
}

// ConflictError is a state conflict the caller must resolve, including retries given up on.
type ConflictError struct {
	Reason string
	Err    error
}

func (e *ConflictError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// InternalInvariantError is a defect: an algorithm produced a ledger that fails validation.
type InternalInvariantError struct {
	Operation  string
	Violations []Violation
}

func (e *InternalInvariantError) Error() string {
	return fmt.Sprintf("internal invariant failure in %s: %s", e.Operation, describeViolations(e.Violations))
}

func describeViolations(vs []Violation) string {
	if len(vs) == 0 {
		return "no details"
	}
	parts := make([]string, 0, len(vs))
	for _, v := range vs {
		parts = append(parts, v.String())
	}
	return strings.Join(parts, "; ")
}

// ErrorKind classifies ledger errors for the transport boundary.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindConcurrency
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindConcurrency:
		return "concurrency"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

func KindOf(err error) ErrorKind {
	var (
		validationErr   *ValidationError
		insufficientErr *InsufficientOwnershipError
		violationErr    *InvariantViolationError
		conflictErr     *ConflictError
		internalErr     *InternalInvariantError
	)
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &internalErr):
		return KindInternal
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.Is(err, ErrAssetNotFound), errors.Is(err, ErrOwnershipNotFound):
		return KindNotFound
	case errors.As(err, &conflictErr), errors.As(err, &insufficientErr), errors.As(err, &violationErr):
		return KindConflict
	case errors.Is(err, ErrConcurrentModification):
		return KindConcurrency
	default:
		return KindUnknown
	}
}
