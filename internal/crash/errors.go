package crash

import "fmt"

const (
	ReasonMissingField = "MISSING_FIELD"
	ReasonInvalidType  = "INVALID_TYPE"
	ReasonInvalidValue = "INVALID_VALUE"
)

// ValidationError reports a client payload that cannot be ingested.
// It is always detected before anything is written.
type ValidationError struct {
	Reason string
	Field  string
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonMissingField:
		return fmt.Sprintf("missing required field: %s", e.Field)
	case ReasonInvalidType:
		return fmt.Sprintf("%s must be one of: CRASH, NON_FATAL, ANR", e.Field)
	case ReasonInvalidValue:
		return fmt.Sprintf("%s must be a string", e.Field)
	default:
		return fmt.Sprintf("invalid field %s: %s", e.Field, e.Reason)
	}
}

// StorageError wraps a failure of the underlying store. Nothing written in the
// failed unit of work is visible afterwards.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("crash storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
