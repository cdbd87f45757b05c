package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"clone-call-server/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	count int64
	err   error
	calls int
}

func (f *fakeSweeper) CleanupExpired(ctx context.Context) (int64, error) {
	f.calls++
	return f.count, f.err
}

func TestCloneCleanupJob_Run(t *testing.T) {
	sweeper := &fakeSweeper{count: 3}
	job := NewCloneCleanupJob(sweeper, observability.NewLogger(), time.Minute)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, "clone_cache_cleanup", job.Name())
	assert.Equal(t, time.Minute, job.Schedule())
}

func TestCloneCleanupJob_SweepError(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("db down")}
	job := NewCloneCleanupJob(sweeper, observability.NewLogger(), 0)

	assert.Error(t, job.Run(context.Background()))
	assert.Equal(t, 15*time.Minute, job.Schedule(), "zero interval falls back to the default")
}
