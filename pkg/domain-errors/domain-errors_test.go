package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	err := New(CodeDecryptionFailed, "auth tag mismatch")
	assert.True(t, HasCode(err, CodeDecryptionFailed))
	assert.False(t, HasCode(err, CodeAuthenticationMismatch))
	assert.False(t, HasCode(errors.New("plain"), CodeDecryptionFailed))
	assert.False(t, HasCode(nil, CodeDecryptionFailed))
}

func TestWrapPreservesCode(t *testing.T) {
	inner := New(CodeThrottled, "too many attempts")
	wrapped := Wrap(inner, CodeInternal, "personal key verification refused")

	assert.True(t, HasCode(wrapped, CodeThrottled), "wrapping must not overwrite the original code")
	assert.Equal(t, "personal key verification refused", wrapped.Error())
	assert.True(t, errors.Is(wrapped, inner))
}

func TestWrapPlainError(t *testing.T) {
	inner := errors.New("connection refused")
	wrapped := Wrap(inner, CodeInternal, "store unavailable")

	assert.True(t, HasCode(wrapped, CodeInternal))
	assert.True(t, errors.Is(wrapped, inner))
}

func TestFieldAttribution(t *testing.T) {
	err := NewField(CodeAuthenticationMismatch, "personal_key", "personal key is incorrect")
	require.True(t, HasCode(err, CodeAuthenticationMismatch))
	assert.Equal(t, "personal_key", FieldOf(err))

	// Field survives wrapping through intermediate layers.
	wrapped := Wrap(fmt.Errorf("recover: %w", err), CodeInternal, "recovery failed")
	assert.Equal(t, "personal_key", FieldOf(wrapped))
	assert.Equal(t, "", FieldOf(errors.New("plain")))
}

func TestErrorMessageFallsBackToCode(t *testing.T) {
	err := &Error{Code: CodeConflict}
	assert.Equal(t, "conflict", err.Error())
}
