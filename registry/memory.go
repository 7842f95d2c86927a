package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"docparser/models"
)

// MemoryRegistry is the default task store: a mutex-guarded map with
// retention-based expiry and oldest-first capacity eviction.
type MemoryRegistry struct {
	mu       sync.RWMutex
	tasks    map[string]*models.ParseTask
	maxTasks int
	now      func() time.Time
}

type MemoryOption func(*MemoryRegistry)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(r *MemoryRegistry) { r.now = now }
}

func NewMemoryRegistry(maxTasks int, opts ...MemoryOption) *MemoryRegistry {
	r := &MemoryRegistry{
		tasks:    make(map[string]*models.ParseTask),
		maxTasks: maxTasks,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *MemoryRegistry) Create(ctx context.Context, task *models.ParseTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[task.ID]; exists {
		return fmt.Errorf("task %s already exists", task.ID)
	}

	r.evictExpiredLocked(r.now())
	if r.maxTasks > 0 {
		for len(r.tasks) >= r.maxTasks {
			r.evictOldestLocked()
		}
	}

	r.tasks[task.ID] = task.Clone()
	return nil
}

func (r *MemoryRegistry) Get(ctx context.Context, id string) (*models.ParseTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, exists := r.tasks[id]
	if !exists || r.expired(task) {
		return nil, ErrTaskNotFound
	}
	return task.Clone(), nil
}

func (r *MemoryRegistry) Update(ctx context.Context, id string, upd Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, exists := r.tasks[id]
	if !exists || r.expired(task) {
		return ErrTaskNotFound
	}
	if task.Status.IsTerminal() {
		return ErrInvalidTransition
	}
	if err := upd.validate(); err != nil {
		return err
	}
	if upd.Status != nil && !validTransition(task.Status, *upd.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, task.Status, *upd.Status)
	}

	if upd.Status != nil {
		task.Status = *upd.Status
	}

	if upd.Progress != nil {
		p := *upd.Progress
		if p < 0 {
			p = 0
		}
		if p > 1 {
			p = 1
		}
		// Progress only moves forward.
		if p > task.Progress {
			task.Progress = p
		}
	}
	if upd.Result != nil {
		task.Result = upd.Result.Clone()
		task.Progress = 1.0
	}
	if upd.Error != nil {
		task.Error = *upd.Error
	}

	now := r.now()
	if now.After(task.UpdatedAt) {
		task.UpdatedAt = now
	}
	return nil
}

func (r *MemoryRegistry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[id]; !exists {
		return ErrTaskNotFound
	}
	delete(r.tasks, id)
	return nil
}

func (r *MemoryRegistry) EvictExpired(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictExpiredLocked(r.now()), nil
}

func (r *MemoryRegistry) FailStalled(ctx context.Context, cutoff time.Time, errMsg string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stalled := 0
	now := r.now()
	for _, task := range r.tasks {
		if task.Status != models.StatusProcessing || !task.UpdatedAt.Before(cutoff) {
			continue
		}
		task.Status = models.StatusFailed
		task.Error = errMsg
		task.UpdatedAt = now
		stalled++
	}
	return stalled, nil
}

func (r *MemoryRegistry) Len(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks), nil
}

func (r *MemoryRegistry) expired(task *models.ParseTask) bool {
	return !task.ExpiresAt.IsZero() && !r.now().Before(task.ExpiresAt)
}

func (r *MemoryRegistry) evictExpiredLocked(now time.Time) int {
	evicted := 0
	for id, task := range r.tasks {
		if !task.ExpiresAt.IsZero() && !now.Before(task.ExpiresAt) {
			delete(r.tasks, id)
			evicted++
		}
	}
	return evicted
}

// evictOldestLocked drops the task with the earliest creation time.
func (r *MemoryRegistry) evictOldestLocked() {
	var oldestID string
	var oldestAt time.Time
	for id, task := range r.tasks {
		if oldestID == "" || task.CreatedAt.Before(oldestAt) {
			oldestID = id
			oldestAt = task.CreatedAt
		}
	}
	if oldestID != "" {
		delete(r.tasks, oldestID)
	}
}
