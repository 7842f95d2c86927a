package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"docparser/models"
)

func newTask(id string, now time.Time) *models.ParseTask {
	return &models.ParseTask{
		ID:        id,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
}

func TestMemoryRegistry_CreateAndGet(t *testing.T) {
	reg := NewMemoryRegistry(100)
	ctx := context.Background()

	now := time.Now().UTC()
	if err := reg.Create(ctx, newTask("t1", now)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	task, err := reg.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if task.Status != models.StatusPending {
		t.Errorf("Expected status pending, got %s", task.Status)
	}
	if task.UpdatedAt.Before(task.CreatedAt) {
		t.Error("updated_at must not precede created_at")
	}
}

func TestMemoryRegistry_GetUnknown(t *testing.T) {
	reg := NewMemoryRegistry(100)

	_, err := reg.Get(context.Background(), "nope")
	if !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Expected ErrTaskNotFound, got %v", err)
	}
}

func TestMemoryRegistry_SnapshotIsolation(t *testing.T) {
	reg := NewMemoryRegistry(100)
	ctx := context.Background()

	now := time.Now().UTC()
	if err := reg.Create(ctx, newTask("t1", now)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	snap, _ := reg.Get(ctx, "t1")
	snap.Status = models.StatusFailed
	snap.Error = "mutated copy"

	again, _ := reg.Get(ctx, "t1")
	if again.Status != models.StatusPending || again.Error != "" {
		t.Error("Mutating a snapshot leaked into the registry")
	}
}

func TestMemoryRegistry_ProgressMonotonic(t *testing.T) {
	reg := NewMemoryRegistry(100)
	ctx := context.Background()
	reg.Create(ctx, newTask("t1", time.Now().UTC()))

	processing := models.StatusProcessing
	for _, p := range []float64{0.1, 0.5, 0.3, 0.5} {
		p := p
		upd := Update{Progress: &p}
		if p == 0.1 {
			upd.Status = &processing
		}
		if err := reg.Update(ctx, "t1", upd); err != nil {
			t.Fatalf("Update to %v failed: %v", p, err)
		}
	}

	task, _ := reg.Get(ctx, "t1")
	if task.Progress != 0.5 {
		t.Errorf("Expected progress 0.5 after decreasing update, got %v", task.Progress)
	}
}

func TestMemoryRegistry_CompleteRequiresResult(t *testing.T) {
	reg := NewMemoryRegistry(100)
	ctx := context.Background()
	reg.Create(ctx, newTask("t1", time.Now().UTC()))

	completed := models.StatusCompleted
	err := reg.Update(ctx, "t1", Update{Status: &completed})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for completed without result, got %v", err)
	}

	failed := models.StatusFailed
	err = reg.Update(ctx, "t1", Update{Status: &failed})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for failed without error, got %v", err)
	}
}

func TestMemoryRegistry_TerminalIsImmutable(t *testing.T) {
	reg := NewMemoryRegistry(100)
	ctx := context.Background()
	reg.Create(ctx, newTask("t1", time.Now().UTC()))

	processing := models.StatusProcessing
	if err := reg.Update(ctx, "t1", Update{Status: &processing}); err != nil {
		t.Fatalf("Start processing failed: %v", err)
	}

	completed := models.StatusCompleted
	result := &models.ParseResult{Status: "success", Markdown: "# Title"}
	if err := reg.Update(ctx, "t1", Update{Status: &completed, Result: result}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	failed := models.StatusFailed
	errMsg := "too late"
	err := reg.Update(ctx, "t1", Update{Status: &failed, Error: &errMsg})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition on terminal task, got %v", err)
	}

	p := 0.5
	err = reg.Update(ctx, "t1", Update{Progress: &p})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for progress on terminal task, got %v", err)
	}

	task, _ := reg.Get(ctx, "t1")
	if task.Status != models.StatusCompleted || task.Result == nil || task.Error != "" {
		t.Errorf("Terminal state changed after rejected updates: %+v", task)
	}
	if task.Result.Markdown != "# Title" {
		t.Errorf("Expected result markdown preserved, got %q", task.Result.Markdown)
	}
	if task.Progress != 1.0 {
		t.Errorf("Expected progress 1.0 on completion, got %v", task.Progress)
	}
}

func TestMemoryRegistry_StatusCannotRegress(t *testing.T) {
	reg := NewMemoryRegistry(100)
	ctx := context.Background()
	reg.Create(ctx, newTask("t1", time.Now().UTC()))

	processing := models.StatusProcessing
	if err := reg.Update(ctx, "t1", Update{Status: &processing}); err != nil {
		t.Fatalf("Start processing failed: %v", err)
	}

	pending := models.StatusPending
	if err := reg.Update(ctx, "t1", Update{Status: &pending}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for processing -> pending, got %v", err)
	}

	// Completion may only leave processing, never pending directly.
	reg.Create(ctx, newTask("t2", time.Now().UTC()))
	completed := models.StatusCompleted
	err := reg.Update(ctx, "t2", Update{
		Status: &completed,
		Result: &models.ParseResult{Status: "success"},
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for pending -> completed, got %v", err)
	}

	task, _ := reg.Get(ctx, "t1")
	if task.Status != models.StatusProcessing {
		t.Errorf("Rejected regression must leave status untouched, got %s", task.Status)
	}
}

func TestMemoryRegistry_ResultErrorExclusive(t *testing.T) {
	reg := NewMemoryRegistry(100)
	ctx := context.Background()
	reg.Create(ctx, newTask("t1", time.Now().UTC()))
	reg.Create(ctx, newTask("t2", time.Now().UTC()))

	completed := models.StatusCompleted
	errMsg := "boom"
	err := reg.Update(ctx, "t1", Update{
		Status: &completed,
		Result: &models.ParseResult{Status: "success"},
		Error:  &errMsg,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected rejection of completed with error, got %v", err)
	}

	failed := models.StatusFailed
	err = reg.Update(ctx, "t2", Update{
		Status: &failed,
		Error:  &errMsg,
		Result: &models.ParseResult{Status: "success"},
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected rejection of failed with result, got %v", err)
	}
}

func TestMemoryRegistry_ExpiryEviction(t *testing.T) {
	current := time.Now().UTC()
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}

	reg := NewMemoryRegistry(100, WithClock(clock))
	ctx := context.Background()

	task := newTask("t1", current)
	task.ExpiresAt = current.Add(time.Hour)
	reg.Create(ctx, task)

	mu.Lock()
	current = current.Add(2 * time.Hour)
	mu.Unlock()

	n, err := reg.EvictExpired(ctx)
	if err != nil {
		t.Fatalf("EvictExpired failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 eviction, got %d", n)
	}

	if _, err := reg.Get(ctx, "t1"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Expected ErrTaskNotFound after eviction, got %v", err)
	}
}

func TestMemoryRegistry_ExpiredInvisibleBeforeEviction(t *testing.T) {
	current := time.Now().UTC()
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}

	reg := NewMemoryRegistry(100, WithClock(clock))
	ctx := context.Background()

	task := newTask("t1", current)
	task.ExpiresAt = current.Add(time.Hour)
	reg.Create(ctx, task)

	mu.Lock()
	current = current.Add(2 * time.Hour)
	mu.Unlock()

	if _, err := reg.Get(ctx, "t1"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Expected expired task to be invisible, got %v", err)
	}
	if err := reg.Update(ctx, "t1", Update{}); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Expected update of expired task to fail, got %v", err)
	}
}

func TestMemoryRegistry_CapacityEvictsOldest(t *testing.T) {
	reg := NewMemoryRegistry(3)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		reg.Create(ctx, newTask(fmt.Sprintf("t%d", i), base.Add(time.Duration(i)*time.Second)))
	}
	reg.Create(ctx, newTask("t3", base.Add(3*time.Second)))

	if _, err := reg.Get(ctx, "t0"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Expected oldest task evicted, got %v", err)
	}
	for _, id := range []string{"t1", "t2", "t3"} {
		if _, err := reg.Get(ctx, id); err != nil {
			t.Errorf("Expected task %s to survive, got %v", id, err)
		}
	}
}

func TestMemoryRegistry_FailStalled(t *testing.T) {
	reg := NewMemoryRegistry(100)
	ctx := context.Background()

	reg.Create(ctx, newTask("stuck", time.Now().UTC()))
	processing := models.StatusProcessing
	reg.Update(ctx, "stuck", Update{Status: &processing})

	reg.Create(ctx, newTask("fresh", time.Now().UTC()))

	n, err := reg.FailStalled(ctx, time.Now().UTC().Add(time.Minute), "worker timeout")
	if err != nil {
		t.Fatalf("FailStalled failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 stalled task, got %d", n)
	}

	task, _ := reg.Get(ctx, "stuck")
	if task.Status != models.StatusFailed || task.Error != "worker timeout" {
		t.Errorf("Expected failed/worker timeout, got %s/%q", task.Status, task.Error)
	}

	fresh, _ := reg.Get(ctx, "fresh")
	if fresh.Status != models.StatusPending {
		t.Errorf("Pending task must not be touched by stall check, got %s", fresh.Status)
	}
}

func TestMemoryRegistry_ConcurrentUpdateRace(t *testing.T) {
	// Two racing updates, one to processing/0.3 and one to completed:
	// the final state must be exactly one of the two, never a hybrid.
	for i := 0; i < 50; i++ {
		reg := NewMemoryRegistry(100)
		ctx := context.Background()
		reg.Create(ctx, newTask("t1", time.Now().UTC()))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			processing := models.StatusProcessing
			p := 0.3
			reg.Update(ctx, "t1", Update{Status: &processing, Progress: &p})
		}()
		go func() {
			defer wg.Done()
			completed := models.StatusCompleted
			reg.Update(ctx, "t1", Update{
				Status: &completed,
				Result: &models.ParseResult{Status: "success", Markdown: "# Title"},
			})
		}()
		wg.Wait()

		task, err := reg.Get(ctx, "t1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		switch task.Status {
		case models.StatusProcessing:
			if task.Result != nil {
				t.Fatal("Processing task must not carry a result")
			}
		case models.StatusCompleted:
			if task.Result == nil || task.Error != "" || task.Progress != 1.0 {
				t.Fatalf("Hybrid completed state: %+v", task)
			}
		default:
			t.Fatalf("Unexpected status %s", task.Status)
		}
	}
}

func TestMemoryRegistry_UpdatedAtAdvances(t *testing.T) {
	reg := NewMemoryRegistry(100)
	ctx := context.Background()

	created := time.Now().UTC().Add(-time.Minute)
	task := newTask("t1", created)
	reg.Create(ctx, task)

	processing := models.StatusProcessing
	reg.Update(ctx, "t1", Update{Status: &processing})

	got, _ := reg.Get(ctx, "t1")
	if !got.UpdatedAt.After(created) {
		t.Error("updated_at must advance on state change")
	}
	if got.CreatedAt != created {
		t.Error("created_at must be immutable")
	}
}
