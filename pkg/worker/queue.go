package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/avelhorn/pgmq-worker/internal/metrics"
)

// HandlerFunc processes one job and returns an error if processing failed.
// Returning nil means success (the message will be finalized).
// Returning an error means failure (the message stays in the store and is
// redelivered once its visibility deadline elapses — unless the queue runs
// in pop mode, where the message is already gone).
type HandlerFunc func(ctx context.Context, job *Job) error

// FinalizePolicy selects what happens to a read-mode message after its
// handler succeeds.
type FinalizePolicy int

const (
	// ArchiveOnSuccess moves the message to the queue's archive, keeping
	// it around for audit and retry tooling.
	ArchiveOnSuccess FinalizePolicy = iota

	// DeleteOnSuccess removes the message permanently.
	DeleteOnSuccess
)

// Queue binds a named backing queue to a handler and a completion policy.
//
// CompletionTimeout == 0 selects pop mode: messages are fetched with an
// atomic fetch-and-delete, trading the redelivery path for lower overhead
// (at-most-once delivery, for fire-and-forget jobs). Any positive timeout
// selects read mode: messages are hidden for that duration and finalized
// after a successful handler run (at-least-once delivery).
//
// The timeout also bounds how long a handler may run before the message
// silently becomes redeliverable to another poller, so long-running
// handlers need it set generously.
type Queue struct {
	name              string
	completionTimeout time.Duration
	policy            FinalizePolicy
	handler           HandlerFunc
	store             Store
	notifier          Notifier
	log               *zap.Logger
}

func (q *Queue) Name() string { return q.name }

// Work runs one work cycle: fetch one message, invoke the handler,
// finalize on success. Returns true when a message was fetched — even if
// the handler failed, a failing job is still evidence the queue is active,
// so the caller resets its backoff either way. Returns false on an empty
// queue or a fetch error (the next pass retries).
func (q *Queue) Work(ctx context.Context) bool {
	var (
		job *Job
		err error
	)
	if q.completionTimeout == 0 {
		job, err = q.store.Pop(ctx, q.name)
	} else {
		job, err = q.store.Read(ctx, q.name, q.completionTimeout)
	}
	if err != nil {
		metrics.StoreErrors.WithLabelValues(q.name, "fetch").Inc()
		q.log.Warn("fetch failed", zap.String("queue", q.name), zap.Error(err))
		return false
	}
	if job == nil {
		return false
	}
	job.Queue = q.name

	metrics.JobsInFlight.Inc()
	q.notifier.JobStarted(q.name, job.ID)
	err = q.invoke(ctx, job)
	q.notifier.JobFinished(q.name, job.ID)
	metrics.JobsInFlight.Dec()

	if err != nil {
		metrics.JobsProcessed.WithLabelValues(q.name, "error").Inc()
		q.log.Error("handler failed",
			zap.String("queue", q.name),
			zap.Int64("job_id", job.ID),
			zap.Int("delivery_count", job.DeliveryCount),
			zap.Error(err))
		// No finalize: the message becomes redeliverable after its
		// visibility deadline. In pop mode it is already gone.
		return true
	}

	metrics.JobsProcessed.WithLabelValues(q.name, "ok").Inc()
	if job.Popped {
		return true
	}
	q.finalize(ctx, job)
	return true
}

// invoke calls the handler with panic recovery, bounding it by the
// visibility window in read mode.
func (q *Queue) invoke(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	if q.completionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.completionTimeout)
		defer cancel()
	}
	return q.handler(ctx, job)
}

func (q *Queue) finalize(ctx context.Context, job *Job) {
	var (
		op  string
		ok  bool
		err error
	)
	switch q.policy {
	case DeleteOnSuccess:
		op = "delete"
		ok, err = q.store.Delete(ctx, q.name, job.ID)
	default:
		op = "archive"
		ok, err = q.store.Archive(ctx, q.name, job.ID)
	}
	if err != nil {
		metrics.StoreErrors.WithLabelValues(q.name, op).Inc()
		q.log.Warn("finalize failed",
			zap.String("queue", q.name),
			zap.Int64("job_id", job.ID),
			zap.String("op", op),
			zap.Error(err))
		return
	}
	if !ok {
		// Someone else finalized it, or visibility lapsed mid-run and
		// the message was claimed again.
		q.log.Warn("message gone before finalize",
			zap.String("queue", q.name),
			zap.Int64("job_id", job.ID),
			zap.String("op", op))
	}
}
