package job

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("job listing not found")
	ErrPersistenceConflict = errors.New("persistence conflict")
)

// ValidationError rejects a single stage update. The stored record is never
// touched when a merge returns one.
type ValidationError struct {
	Stage  StageID
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field == "" {
		return fmt.Sprintf("invalid %s update: %s", e.Stage.Tag(), e.Reason)
	}
	return fmt.Sprintf("invalid %s update: field=%s: %s", e.Stage.Tag(), e.Field, e.Reason)
}

func newValidationError(stage StageID, field, format string, args ...any) *ValidationError {
	return &ValidationError{Stage: stage, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// SignatureCollisionError reports two different candidates hashing to the
// same signature. It is a data-quality event; the first candidate wins.
type SignatureCollisionError struct {
	Signature string
	First     Candidate
	Second    Candidate
}

func (e *SignatureCollisionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("signature collision sig=%s first=%q second=%q", e.Signature, e.First.URL, e.Second.URL)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
