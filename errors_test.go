package feedsync

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"feedsync/internal/retry"
	"feedsync/registry"
	"feedsync/youtube"
)

func TestSentinelsMatchSubpackages(t *testing.T) {
	_, err := registry.Parser{}.ParseStrict("")
	assert.ErrorIs(t, err, ErrEmptyRegistry)

	wrapped := &youtube.ResolveError{Channel: "@x", Err: youtube.ErrChannelNotFound}
	assert.ErrorIs(t, wrapped, ErrChannelNotFound)

	var resolveErr *ResolveError
	assert.ErrorAs(t, fmt.Errorf("run: %w", wrapped), &resolveErr)
	assert.Equal(t, "@x", resolveErr.Channel)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("transient")))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(retry.Permanent(ErrChannelNotFound)))
	assert.False(t, IsRetryable(nil))
}
