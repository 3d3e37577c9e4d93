package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsByKind(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("apply: %w", &Error{Kind: KindApplyFailed, Message: "failed to apply candidate", Err: cause})

	assert.ErrorIs(t, err, ErrApplyFailed)
	assert.ErrorIs(t, err, cause)
	assert.False(t, errors.Is(err, ErrRestoreFailed))
	assert.False(t, errors.Is(err, ErrValidation))
}

func TestError_Message(t *testing.T) {
	err := &Error{Kind: KindPrecondition, Message: "server is running"}
	assert.Equal(t, "[precondition] server is running", err.Error())

	err.Err = errors.New("boom")
	assert.Equal(t, "[precondition] server is running: boom", err.Error())
}
