package jobs

import (
	"context"
	"fmt"
	"time"

	"clone-call-server/internal/observability"
)

// CloneSweeper soft-deletes expired voice clones.
type CloneSweeper interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// CloneCleanupJob sweeps expired voice clones out of the cache on a schedule.
// Lookups already ignore expired rows, so the sweep is bookkeeping: it keeps
// the live set small and the audit trail honest.
type CloneCleanupJob struct {
	sweeper  CloneSweeper
	logger   *observability.Logger
	interval time.Duration
}

// NewCloneCleanupJob creates a new clone cleanup job
func NewCloneCleanupJob(sweeper CloneSweeper, logger *observability.Logger, interval time.Duration) *CloneCleanupJob {
	if interval == 0 {
		interval = 15 * time.Minute
	}
	return &CloneCleanupJob{
		sweeper:  sweeper,
		logger:   logger,
		interval: interval,
	}
}

// Name returns the job name
func (j *CloneCleanupJob) Name() string {
	return "clone_cache_cleanup"
}

// Schedule returns how often the job should run
func (j *CloneCleanupJob) Schedule() time.Duration {
	return j.interval
}

// Run sweeps expired clones
func (j *CloneCleanupJob) Run(ctx context.Context) error {
	count, err := j.sweeper.CleanupExpired(ctx)
	if err != nil {
		return fmt.Errorf("failed to sweep expired clones: %w", err)
	}
	if count > 0 {
		j.logger.Info(ctx, fmt.Sprintf("Swept %d expired voice clones", count))
	}
	return nil
}
