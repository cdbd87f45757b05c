package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"clone-call-server/internal/observability"
)

// Status is the lifecycle state of a spawned task.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Record describes a spawned task. Completed records are retained for a
// bounded grace period so late status queries can still observe the outcome.
type Record struct {
	Name       string
	Status     Status
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// DefaultRetention is how long completed task records are kept.
const DefaultRetention = 5 * time.Minute

// Registry supervises named fire-and-forget tasks. Tasks run on a
// registry-owned root context that is cancelled on shutdown, so no task
// outlives the process teardown unnoticed.
type Registry struct {
	logger    *observability.Logger
	retention time.Duration

	rootCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	records map[string]*Record
	stopped bool
	wg      sync.WaitGroup
}

// NewRegistry creates a task registry. retention bounds how long completed
// task records remain queryable.
func NewRegistry(retention time.Duration, logger *observability.Logger) *Registry {
	if retention <= 0 {
		retention = DefaultRetention
	}
	rootCtx, cancel := context.WithCancel(context.Background())
	return &Registry{
		logger:    logger,
		retention: retention,
		rootCtx:   rootCtx,
		cancel:    cancel,
		records:   make(map[string]*Record),
	}
}

// Spawn starts fn as a named task. The name must be unique among running
// tasks; completed names may be reused. fn receives the registry root
// context, not the caller's, so it survives the end of the spawning request.
func (r *Registry) Spawn(name string, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return fmt.Errorf("task registry is shut down")
	}
	if existing, ok := r.records[name]; ok && existing.Status == StatusRunning {
		return fmt.Errorf("task %s is already running", name)
	}

	record := &Record{
		Name:      name,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
	r.records[name] = record

	r.wg.Add(1)
	go r.run(record, fn)
	return nil
}

func (r *Registry) run(record *Record, fn func(ctx context.Context) error) {
	defer r.wg.Done()

	ctx := observability.WithFields(r.rootCtx,
		observability.Field{Key: "task", Value: record.Name},
	)

	var err error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("task panicked: %+v", rec)
			}
		}()
		err = fn(ctx)
	}()

	r.mu.Lock()
	record.FinishedAt = time.Now()
	if err != nil {
		record.Status = StatusFailed
		record.Err = err
	} else {
		record.Status = StatusSucceeded
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Error(ctx, fmt.Sprintf("Task %s failed", record.Name), err)
	} else {
		r.logger.Info(ctx, fmt.Sprintf("Task %s completed in %s",
			record.Name, record.FinishedAt.Sub(record.StartedAt)))
	}

	time.AfterFunc(r.retention, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if current, ok := r.records[record.Name]; ok && current == record {
			delete(r.records, record.Name)
		}
	})
}

// Status returns the record for a named task, if still retained.
func (r *Registry) Status(name string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[name]
	if !ok {
		return Record{}, false
	}
	return *record, true
}

// Running returns the number of in-flight tasks.
func (r *Registry) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, record := range r.records {
		if record.Status == StatusRunning {
			count++
		}
	}
	return count
}

// Shutdown stops accepting new tasks, cancels the root context and waits
// for in-flight tasks to finish or the passed context to expire.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	r.mu.Unlock()

	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("task registry shutdown timed out: %w", ctx.Err())
	}
}
