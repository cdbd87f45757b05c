package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"clone-call-server/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForStatus(t *testing.T, r *Registry, name string, want Status) Record {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("task %s never reached status %s", name, want)
		default:
		}
		if record, ok := r.Status(name); ok && record.Status == want {
			return record
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSpawnRunsToCompletion(t *testing.T) {
	t.Parallel()
	registry := NewRegistry(time.Minute, observability.NewLogger())

	var ran atomic.Bool
	err := registry.Spawn("clone-CA1", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)

	record := waitForStatus(t, registry, "clone-CA1", StatusSucceeded)
	assert.True(t, ran.Load())
	assert.NoError(t, record.Err)
	assert.False(t, record.FinishedAt.IsZero())
}

func TestSpawnRecordsFailure(t *testing.T) {
	t.Parallel()
	registry := NewRegistry(time.Minute, observability.NewLogger())

	taskErr := errors.New("clone creation failed")
	require.NoError(t, registry.Spawn("clone-CA2", func(ctx context.Context) error {
		return taskErr
	}))

	record := waitForStatus(t, registry, "clone-CA2", StatusFailed)
	assert.ErrorIs(t, record.Err, taskErr)
}

func TestSpawnRecoversPanic(t *testing.T) {
	t.Parallel()
	registry := NewRegistry(time.Minute, observability.NewLogger())

	require.NoError(t, registry.Spawn("clone-CA3", func(ctx context.Context) error {
		panic("boom")
	}))

	record := waitForStatus(t, registry, "clone-CA3", StatusFailed)
	assert.Contains(t, record.Err.Error(), "boom")
}

func TestSpawnRejectsDuplicateRunningName(t *testing.T) {
	t.Parallel()
	registry := NewRegistry(time.Minute, observability.NewLogger())

	release := make(chan struct{})
	require.NoError(t, registry.Spawn("clone-CA4", func(ctx context.Context) error {
		<-release
		return nil
	}))

	err := registry.Spawn("clone-CA4", func(ctx context.Context) error { return nil })
	assert.Error(t, err)

	close(release)
	waitForStatus(t, registry, "clone-CA4", StatusSucceeded)

	// A finished name may be reused.
	assert.NoError(t, registry.Spawn("clone-CA4", func(ctx context.Context) error { return nil }))
}

func TestCompletedRecordsExpireAfterRetention(t *testing.T) {
	t.Parallel()
	registry := NewRegistry(50*time.Millisecond, observability.NewLogger())

	require.NoError(t, registry.Spawn("clone-CA5", func(ctx context.Context) error { return nil }))
	waitForStatus(t, registry, "clone-CA5", StatusSucceeded)

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := registry.Status("clone-CA5"); !ok {
			return
		}
		select {
		case <-deadline:
			t.Fatal("completed record was never discarded")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestShutdownCancelsTasksAndRejectsNewOnes(t *testing.T) {
	t.Parallel()
	registry := NewRegistry(time.Minute, observability.NewLogger())

	started := make(chan struct{})
	require.NoError(t, registry.Spawn("clone-CA6", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	<-started

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, registry.Shutdown(shutdownCtx))

	assert.Error(t, registry.Spawn("clone-CA7", func(ctx context.Context) error { return nil }))
}
