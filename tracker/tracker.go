package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docparser/cache"
	"docparser/events"
	"docparser/models"
	"docparser/parser"
	"docparser/pool"
	"docparser/registry"
)

var (
	// ErrQueueFull means the async queue rejected the submission.
	ErrQueueFull = errors.New("task queue is full")
	// ErrBusy means all parse slots are occupied by in-flight requests.
	ErrBusy = errors.New("server at max capacity")

	ErrTaskNotFound = registry.ErrTaskNotFound
)

// Snapshots caches terminal task snapshots for polling clients. The
// registry stays authoritative.
type Snapshots interface {
	Get(ctx context.Context, taskID string) (*models.ParseTask, error)
	Set(ctx context.Context, task *models.ParseTask) error
	Delete(ctx context.Context, taskID string) error
}

var _ Snapshots = (*cache.SnapshotCache)(nil)

// Tracker manages the lifecycle of asynchronous parse jobs: it creates
// tasks, dispatches them to the bounded worker pool, and serves
// snapshots to polling clients. It is the only writer of task state.
type Tracker struct {
	reg       registry.Registry
	backends  *parser.Selector
	pool      *pool.WorkerPool
	limiter   *pool.Limiter
	snapshots Snapshots
	publisher events.Publisher
	retention time.Duration
	logger    *zap.Logger
}

// Config carries the tracker's collaborators. Snapshots and Publisher
// are optional.
type Config struct {
	Registry  registry.Registry
	Backends  *parser.Selector
	Pool      *pool.WorkerPool
	Limiter   *pool.Limiter
	Snapshots Snapshots
	Publisher events.Publisher
	Retention time.Duration
	Logger    *zap.Logger
}

func New(cfg Config) *Tracker {
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Tracker{
		reg:       cfg.Registry,
		backends:  cfg.Backends,
		pool:      cfg.Pool,
		limiter:   cfg.Limiter,
		snapshots: cfg.Snapshots,
		publisher: publisher,
		retention: cfg.Retention,
		logger:    cfg.Logger,
	}
}

// Submit validates the request, registers a pending task and enqueues
// the parse. It never blocks on the parse itself.
func (t *Tracker) Submit(ctx context.Context, doc parser.Document, opts models.ParseOptions) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}
	backend, err := t.backends.Get(opts.Backend)
	if err != nil {
		return "", fmt.Errorf("%w: backend %q not configured", models.ErrInvalidOptions, opts.Backend)
	}

	now := time.Now().UTC()
	task := &models.ParseTask{
		ID:        uuid.New().String(),
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(t.retention),
	}
	if err := t.reg.Create(ctx, task); err != nil {
		return "", fmt.Errorf("register task: %w", err)
	}

	job := func(jobCtx context.Context) {
		t.execute(jobCtx, task.ID, backend, doc, opts)
	}
	if err := t.pool.TrySubmit(job); err != nil {
		// Roll back so a rejected submission leaves no pending task.
		if delErr := t.reg.Delete(ctx, task.ID); delErr != nil {
			t.logger.Warn("Failed to roll back rejected task",
				zap.String("task_id", task.ID),
				zap.Error(delErr),
			)
		}
		return "", ErrQueueFull
	}

	t.logger.Info("Task submitted",
		zap.String("task_id", task.ID),
		zap.String("backend", string(opts.Backend)),
		zap.String("filename", doc.Filename),
	)
	return task.ID, nil
}

// Get returns a consistent point-in-time snapshot of the task.
func (t *Tracker) Get(ctx context.Context, taskID string) (*models.ParseTask, error) {
	if t.snapshots != nil {
		if task, err := t.snapshots.Get(ctx, taskID); err == nil {
			// The cache TTL may outlive the retention deadline; a
			// snapshot past expires_at is a miss, same as the registry.
			if !snapshotExpired(task) {
				return task, nil
			}
			if err := t.snapshots.Delete(ctx, taskID); err != nil {
				t.logger.Warn("Failed to drop expired snapshot",
					zap.String("task_id", taskID),
					zap.Error(err),
				)
			}
		}
	}

	task, err := t.reg.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if t.snapshots != nil && task.Status.IsTerminal() {
		if err := t.snapshots.Set(ctx, task); err != nil {
			t.logger.Warn("Failed to cache task snapshot",
				zap.String("task_id", taskID),
				zap.Error(err),
			)
		}
	}
	return task, nil
}

// ParseSync runs a parse inline for the synchronous endpoints, bounded
// by the same capacity limiter as the worker pool.
func (t *Tracker) ParseSync(ctx context.Context, doc parser.Document, opts models.ParseOptions) (*models.ParseResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	backend, err := t.backends.Get(opts.Backend)
	if err != nil {
		return nil, fmt.Errorf("%w: backend %q not configured", models.ErrInvalidOptions, opts.Backend)
	}

	if !t.limiter.TryAcquire() {
		return nil, ErrBusy
	}
	defer t.limiter.Release()

	return backend.Parse(ctx, doc, opts)
}

// execute is the worker harness. Parse failures of any kind, panics
// included, end up in the task's error field rather than escaping to
// the polling client.
func (t *Tracker) execute(ctx context.Context, taskID string, backend parser.Backend, doc parser.Document, opts models.ParseOptions) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Parse worker panic",
				zap.String("task_id", taskID),
				zap.Any("panic", r),
			)
			t.fail(ctx, taskID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if err := t.update(ctx, taskID, registry.Update{
		Status:   statusPtr(models.StatusProcessing),
		Progress: floatPtr(0.1),
	}); err != nil {
		return
	}

	if err := t.limiter.Acquire(ctx); err != nil {
		t.fail(ctx, taskID, "server shutting down before parse started")
		return
	}
	defer t.limiter.Release()

	if err := t.update(ctx, taskID, registry.Update{Progress: floatPtr(0.3)}); err != nil {
		return
	}

	result, err := backend.Parse(ctx, doc, opts)
	if err != nil {
		t.logger.Error("Parse failed",
			zap.String("task_id", taskID),
			zap.String("backend", string(opts.Backend)),
			zap.Error(err),
		)
		t.fail(ctx, taskID, err.Error())
		return
	}

	if err := t.update(ctx, taskID, registry.Update{
		Status:   statusPtr(models.StatusCompleted),
		Progress: floatPtr(1.0),
		Result:   result,
	}); err != nil {
		return
	}

	t.publish(ctx, &events.TaskEvent{
		TaskID:    taskID,
		Status:    string(models.StatusCompleted),
		ElapsedMS: result.ElapsedMS,
	})
	t.logger.Info("Task completed",
		zap.String("task_id", taskID),
		zap.Int("pages", result.PageCount),
		zap.Int64("elapsed_ms", result.ElapsedMS),
	)
}

func (t *Tracker) fail(ctx context.Context, taskID, errMsg string) {
	if err := t.update(ctx, taskID, registry.Update{
		Status: statusPtr(models.StatusFailed),
		Error:  &errMsg,
	}); err != nil {
		return
	}
	t.publish(ctx, &events.TaskEvent{
		TaskID: taskID,
		Status: string(models.StatusFailed),
		Error:  errMsg,
	})
}

// update funnels worker reports into the registry, logging rather than
// propagating races on evicted or already-terminal tasks.
func (t *Tracker) update(ctx context.Context, taskID string, upd registry.Update) error {
	err := t.reg.Update(ctx, taskID, upd)
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, registry.ErrTaskNotFound):
		t.logger.Warn("Update for unknown or evicted task", zap.String("task_id", taskID))
	case errors.Is(err, registry.ErrInvalidTransition):
		t.logger.Warn("Update rejected for terminal task", zap.String("task_id", taskID), zap.Error(err))
	default:
		t.logger.Error("Task update failed", zap.String("task_id", taskID), zap.Error(err))
	}
	return err
}

func (t *Tracker) publish(ctx context.Context, event *events.TaskEvent) {
	if err := t.publisher.PublishTaskEvent(ctx, event); err != nil {
		t.logger.Warn("Failed to publish task event",
			zap.String("task_id", event.TaskID),
			zap.Error(err),
		)
	}
}

// EvictExpired removes tasks past their retention window.
func (t *Tracker) EvictExpired(ctx context.Context) (int, error) {
	return t.reg.EvictExpired(ctx)
}

// FailStalled marks processing tasks with no update for the given
// window as failed. A zero window disables the check.
func (t *Tracker) FailStalled(ctx context.Context, window time.Duration) (int, error) {
	if window <= 0 {
		return 0, nil
	}
	return t.reg.FailStalled(ctx, time.Now().UTC().Add(-window), "worker timeout")
}

func snapshotExpired(task *models.ParseTask) bool {
	return !task.ExpiresAt.IsZero() && !time.Now().UTC().Before(task.ExpiresAt)
}

func statusPtr(s models.TaskStatus) *models.TaskStatus { return &s }
func floatPtr(f float64) *float64                      { return &f }
