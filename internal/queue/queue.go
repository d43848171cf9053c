package queue

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateTask is returned by Enqueue when a task with the same TaskID is
// already queued, running or retained.
var ErrDuplicateTask = errors.New("queue: duplicate task")

// ErrSkipRetry can be wrapped by a Handler to fail a task without retrying it.
var ErrSkipRetry = errors.New("queue: skip retry")

// Task is a background job with a stable type name and opaque payload.
type Task struct {
	Type    string
	Payload []byte
}

// Handler processes a Task. A non-nil error schedules a retry. Handlers must
// be idempotent.
type Handler func(ctx context.Context, task Task) error

// EnqueueOption controls enqueue behavior. Zero values mean unspecified.
type EnqueueOption struct {
	Queue     string
	TaskID    string // deterministic id; a second enqueue with the same id is rejected
	ProcessIn time.Duration
	MaxRetry  int
	Retention time.Duration
	Timeout   time.Duration
}

// Client enqueues tasks for background processing.
type Client interface {
	Enqueue(ctx context.Context, t Task, opts ...EnqueueOption) (id string, err error)
	Close() error
}

// Server runs workers that handle tasks. Run blocks until ctx is cancelled.
type Server interface {
	Register(taskType string, h Handler)
	Run(ctx context.Context) error
	Stop(ctx context.Context) error
}
