package models

import (
	"time"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

func (s TaskStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are permitted.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseTask tracks one asynchronous parse job from submission to its
// terminal outcome.
type ParseTask struct {
	ID        string
	Status    TaskStatus
	Progress  float64
	Result    *ParseResult
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// Clone returns a deep copy so readers never share mutable state with
// the registry.
func (t *ParseTask) Clone() *ParseTask {
	cp := *t
	if t.Result != nil {
		cp.Result = t.Result.Clone()
	}
	return &cp
}
