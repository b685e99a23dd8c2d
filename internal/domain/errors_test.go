package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	err := NewDomainError(ErrCodeValidation, "bad input")
	assert.Equal(t, "[VALIDATION_ERROR] bad input", err.Error())

	wrapped := NewDomainErrorWithCause(ErrCodeStore, "insert failed", errors.New("timeout"))
	assert.Equal(t, "[STORE_FAILED] insert failed: timeout", wrapped.Error())
}

func TestDomainError_IsMatchesSentinelWithCause(t *testing.T) {
	cause := errors.New("zip: not a valid zip file")
	err := ErrCorruptFile.WithCause(cause)

	assert.ErrorIs(t, err, ErrCorruptFile)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDomainError_IsThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("reading /tmp/x.bin: %w", ErrUnsupportedFormat)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("embed: %w", ErrEmbeddingUnavailable.WithCause(errors.New("dial tcp")))
	assert.True(t, HasCode(err, ErrCodeEmbedding))
	assert.False(t, HasCode(err, ErrCodeStore))
	assert.False(t, HasCode(errors.New("plain"), ErrCodeEmbedding))
}
