package pipeline

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedule_InvalidSpec(t *testing.T) {
	f := newFixture(t)
	err := f.syncer(fakeFetcher{text: registryCSV}, testPlatform()).Schedule(context.Background(), "not a schedule")
	assert.Error(t, err)
}

func TestSchedule_RunsUntilCancelled(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a scheduler tick")
	}
	f := newFixture(t)
	s := f.syncer(fakeFetcher{text: registryCSV}, testPlatform())

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Schedule(ctx, "@every 1s") }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}

	_, err := os.Stat(f.feedPath)
	assert.NoError(t, err)
}
