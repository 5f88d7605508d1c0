package worker

import "context"

// Notifier is the wake-up bridge as seen by the worker core: it turns
// external "job enqueued" notifications into WakeSignal sets and reports
// this worker's presence (busy/idle, in-flight jobs) to the outside.
//
// Notifications are a liveness hint only — a missed or delayed wake-up
// must never cause a missed job, only a later poll. The core therefore
// treats every Notifier method as best-effort and never lets one fail the
// run loop.
type Notifier interface {
	// Start begins delivering wake-ups for the given queue names. It must
	// not block and must not return an error path into the Worker: a
	// transport that cannot be reached degrades the system to pure
	// polling.
	Start(queues []string)

	// Register adds a thread's wake handle. Unregister removes it.
	Register(s *WakeSignal)
	Unregister(s *WakeSignal)

	// JobStarted and JobFinished bracket one in-flight job for presence
	// reporting. Both are non-blocking.
	JobStarted(queue string, jobID int64)
	JobFinished(queue string, jobID int64)

	// Stop shuts the bridge down, bounded by ctx.
	Stop(ctx context.Context) error
}

// NopNotifier is the pure-polling fallback used when no notification
// transport is configured.
type NopNotifier struct{}

func (NopNotifier) Start(queues []string) {}

func (NopNotifier) Register(s *WakeSignal) {}

func (NopNotifier) Unregister(s *WakeSignal) {}

func (NopNotifier) JobStarted(queue string, id int64) {}

func (NopNotifier) JobFinished(queue string, id int64) {}

func (NopNotifier) Stop(ctx context.Context) error { return nil }
