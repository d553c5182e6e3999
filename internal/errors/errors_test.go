package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapNilCauseYieldsUsableError(t *testing.T) {
	var err error = TransientModel(nil, "empty response from model")

	// A nil *Error stored in an error interface is non-nil; the wrapped
	// form must carry a real value so type checks and Error() work.
	require.Error(t, err)
	assert.Equal(t, "empty response from model", err.Error())

	var e *Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, ErrorTypeTransientModel, e.Type)
	assert.Nil(t, e.Cause)

	assert.False(t, IsInsufficientCredits(err))
}

func TestWrapKeepsCauseChain(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := StorageError(cause, "failed to write job")

	assert.Equal(t, "failed to write job: connection reset", err.Error())
	assert.True(t, stderrors.Is(err, cause))
}

func TestIsInsufficientCreditsWalksChain(t *testing.T) {
	inner := InsufficientCredits("payment required")
	outer := TransientModel(inner, "provider call failed")

	assert.True(t, IsInsufficientCredits(outer))
	assert.False(t, IsInsufficientCredits(TransientModel(stderrors.New("timeout"), "provider call failed")))
}
