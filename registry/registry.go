package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docparser/models"
)

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid task transition")
)

// Update carries the fields a worker may change on a task. Nil fields
// are left untouched.
type Update struct {
	Status   *models.TaskStatus
	Progress *float64
	Result   *models.ParseResult
	Error    *string
}

// validate enforces the result/error exclusivity invariant: a result
// only ever arrives with the completed transition, an error only with
// the failed one.
func (u Update) validate() error {
	if u.Status != nil {
		switch *u.Status {
		case models.StatusCompleted:
			if u.Result == nil || u.Error != nil {
				return fmt.Errorf("%w: completed requires a result and no error", ErrInvalidTransition)
			}
		case models.StatusFailed:
			if u.Error == nil || *u.Error == "" || u.Result != nil {
				return fmt.Errorf("%w: failed requires an error and no result", ErrInvalidTransition)
			}
		case models.StatusProcessing, models.StatusPending:
		default:
			return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, *u.Status)
		}
	}
	if u.Result != nil && (u.Status == nil || *u.Status != models.StatusCompleted) {
		return fmt.Errorf("%w: result outside a completed transition", ErrInvalidTransition)
	}
	if u.Error != nil && (u.Status == nil || *u.Status != models.StatusFailed) {
		return fmt.Errorf("%w: error outside a failed transition", ErrInvalidTransition)
	}
	return nil
}

// validTransition is the task lifecycle graph: pending either starts
// processing or fails outright; processing only finishes. Nothing
// moves backwards.
func validTransition(from, to models.TaskStatus) bool {
	switch from {
	case models.StatusPending:
		return to == models.StatusProcessing || to == models.StatusFailed
	case models.StatusProcessing:
		return to == models.StatusCompleted || to == models.StatusFailed
	default:
		return false
	}
}

// Registry owns the task collection. All task state flows through it;
// callers only ever see snapshot copies.
type Registry interface {
	Create(ctx context.Context, task *models.ParseTask) error
	Get(ctx context.Context, id string) (*models.ParseTask, error)
	Update(ctx context.Context, id string, upd Update) error
	Delete(ctx context.Context, id string) error

	// EvictExpired removes tasks whose retention window has elapsed and
	// returns how many were removed. Idempotent.
	EvictExpired(ctx context.Context) (int, error)

	// FailStalled forces processing tasks that have not been updated
	// since cutoff into failed state with the given error message.
	FailStalled(ctx context.Context, cutoff time.Time, errMsg string) (int, error)

	Len(ctx context.Context) (int, error)
}
