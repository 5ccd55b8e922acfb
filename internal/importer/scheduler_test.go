package importer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personal-pl/plctl/internal/logging"
)

func TestNewScheduler_InvalidSpec(t *testing.T) {
	_, err := NewScheduler("every tuesday", time.UTC, func(context.Context) error { return nil }, logging.Discard())
	assert.Error(t, err)
}

func TestScheduler_RunsUntilCanceled(t *testing.T) {
	var runs atomic.Int32
	s, err := NewScheduler("@every 1s", time.UTC, func(ctx context.Context) error {
		assert.NotNil(t, ctx)
		runs.Add(1)
		return nil
	}, logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
