package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/clipqueue/client/internal/logging"
	"github.com/clipqueue/client/internal/videos"
)

// Operation names a task the worker can run.
type Operation string

const (
	OperationDownload Operation = "download"
	OperationDelete   Operation = "delete"
)

// Status is the outcome carried by a worker reply.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

var (
	// ErrUnknownOperation indicates the worker has no handler for the task.
	ErrUnknownOperation = errors.New("unknown worker operation")
	// ErrTaskFailed indicates the worker replied with a failure status.
	ErrTaskFailed = errors.New("worker task failed")
)

// Payload identifies the video a task acts on.
type Payload struct {
	VideoID string
	Title   string
}

// Task is the single message posted to a worker.
type Task struct {
	Operation Operation
	Payload   Payload
}

// Result is the single reply from a worker.
type Result struct {
	Status    Status
	Reference videos.Reference
	Err       error
}

// Actions performs the network work behind each operation.
type Actions interface {
	Download(ctx context.Context, videoID, title string) (videos.Reference, error)
	Delete(ctx context.Context, videoID, title string) bool
}

// Delegator runs each task in its own goroutine and waits for its reply.
type Delegator struct {
	actions Actions
}

// NewDelegator returns a Delegator dispatching to actions.
func NewDelegator(actions Actions) *Delegator {
	return &Delegator{actions: actions}
}

// Delegate posts task to a fresh worker, waits for one reply and tears the
// worker down. A failure reply is returned as an error wrapping ErrTaskFailed.
func (d *Delegator) Delegate(ctx context.Context, task Task) (Result, error) {
	ctx = logging.WithVideoID(ctx, task.Payload.VideoID)
	ctx, span := logging.StartSpan(ctx, "delegate")
	defer span.End()

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	inbox := make(chan Task, 1)
	outbox := make(chan Result, 1)
	go d.run(workerCtx, inbox, outbox)

	inbox <- task
	close(inbox)

	select {
	case res := <-outbox:
		if res.Status == StatusFailure {
			err := fmt.Errorf("%w: %s: %w", ErrTaskFailed, task.Operation, res.Err)
			span.Fail(err)
			return res, err
		}
		logging.FromContext(ctx).Debug("worker task completed", "operation", string(task.Operation))
		return res, nil
	case <-ctx.Done():
		span.Fail(ctx.Err())
		return Result{Status: StatusFailure, Err: ctx.Err()}, ctx.Err()
	}
}

func (d *Delegator) run(ctx context.Context, inbox <-chan Task, outbox chan<- Result) {
	task, ok := <-inbox
	if !ok {
		return
	}
	outbox <- d.handle(ctx, task)
}

func (d *Delegator) handle(ctx context.Context, task Task) Result {
	switch task.Operation {
	case OperationDownload:
		ref, err := d.actions.Download(ctx, task.Payload.VideoID, task.Payload.Title)
		if err != nil {
			return Result{Status: StatusFailure, Err: err}
		}
		return Result{Status: StatusSuccess, Reference: ref}
	case OperationDelete:
		if !d.actions.Delete(ctx, task.Payload.VideoID, task.Payload.Title) {
			return Result{Status: StatusFailure, Err: errors.New("delete rejected")}
		}
		return Result{Status: StatusSuccess}
	default:
		return Result{Status: StatusFailure, Err: fmt.Errorf("%w: %q", ErrUnknownOperation, task.Operation)}
	}
}
