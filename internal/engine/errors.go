package engine

import (
	"errors"
	"fmt"
)

// Kind classifies engine errors.
type Kind string

const (
	// KindValidation means the candidate was rejected before anything changed.
	KindValidation Kind = "validation"

	// KindPrecondition means the installation cannot be modified right now.
	KindPrecondition Kind = "precondition"

	// KindApplyFailed means the merge failed and the installation was restored.
	KindApplyFailed Kind = "apply-failed"

	// KindRestoreFailed means the merge failed and the restore failed too. The
	// installation may be inconsistent and needs manual recovery.
	KindRestoreFailed Kind = "restore-failed"

	// KindMetadata means installation or candidate metadata could not be read.
	KindMetadata Kind = "metadata"
)

// Sentinels for errors.Is checks by kind.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrPrecondition  = &Error{Kind: KindPrecondition}
	ErrApplyFailed   = &Error{Kind: KindApplyFailed}
	ErrRestoreFailed = &Error{Kind: KindRestoreFailed}
	ErrMetadata      = &Error{Kind: KindMetadata}
)

// Error is a classified engine error.
type Error struct {
	Kind    Kind
	Message string

	// Installation and Candidate are the directories involved, if known.
	Installation string
	Candidate    string

	// Status is set for validation errors.
	Status ValidationResult

	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, req candidateRef, err error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:         kind,
		Message:      fmt.Sprintf(format, args...),
		Installation: req.Installation,
		Candidate:    req.Candidate,
		Err:          err,
	}
}
