package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("polling: %w", E(KindTimeout, "Transcription timed out", nil))

	assert.True(t, errors.Is(err, ErrTimeout))
	assert.False(t, errors.Is(err, ErrProviderError))
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestErrorUnwrapsDetail(t *testing.T) {
	detail := errors.New("connection reset")
	err := E(KindTransport, "Failed to generate speech. Please try again.", detail)

	assert.ErrorIs(t, err, detail)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestMessageFallback(t *testing.T) {
	assert.Equal(t, "fallback", Message(errors.New("raw"), "fallback"))
	assert.Equal(t, "File size exceeds 25MB limit",
		Message(E(KindInputInvalid, "File size exceeds 25MB limit", nil), "fallback"))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}
