package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New("test error")
	require.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestChannelTimeoutIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(ErrChannelTimeout))
	assert.True(t, IsTimeout(Wrap(ErrChannelTimeout, "post-processing")))
	assert.True(t, IsTimeout(ErrTimeout))
	assert.False(t, IsTimeout(ErrSourceFailure))
	assert.False(t, IsTimeout(nil))
}

func TestSourceFailure(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := SourceFailure(cause)

	require.Error(t, err)
	assert.True(t, Is(err, ErrSourceFailure))
	assert.False(t, Is(err, ErrValidatorFailure))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Nil(t, SourceFailure(nil))
}

func TestValidatorFailure(t *testing.T) {
	err := ValidatorFailure(New("shape not found"))

	assert.True(t, Is(err, ErrValidatorFailure))
	assert.Contains(t, err.Error(), "shape not found")
	assert.Nil(t, ValidatorFailure(nil))
}

func TestInvalidRequest(t *testing.T) {
	err := NewInvalidRequestError("unknown backend %q", "ring")

	assert.True(t, IsInvalidRequestError(err))
	assert.Contains(t, err.Error(), `unknown backend "ring"`)
	assert.False(t, IsInvalidRequestError(New("other")))
}

func TestWithHint(t *testing.T) {
	err := WithHint(ErrNotAlive, "call Start before Submit")
	assert.True(t, Is(err, ErrNotAlive))
	assert.Contains(t, FlattenHints(err), "call Start before Submit")
}
