package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/avelhorn/pgmq-worker/internal/metrics"
)

// thread is one polling loop: it walks the registry in priority order,
// calling each queue's work cycle once per pass, and sleeps with
// exponential backoff between passes that find nothing. The sleep is
// interruptible — it ends early on a wake signal or a stop request.
//
// Each thread owns its backoff counter and wake signal; threads share
// only the read-only registry.
type thread struct {
	id       int
	registry *registry
	signal   *WakeSignal
	stop     <-chan struct{}
	minPoll  time.Duration
	maxPoll  time.Duration
	log      *zap.Logger
}

func (t *thread) run(ctx context.Context) {
	t.log.Debug("worker thread started", zap.Int("thread", t.id))
	defer t.log.Debug("worker thread stopped", zap.Int("thread", t.id))

	backoff := t.minPoll
	for {
		select {
		case <-t.stop:
			return
		default:
		}

		found := false
		for _, q := range t.registry.queues {
			// No new work cycle begins once stop is requested; the
			// cycle in flight always completes first.
			select {
			case <-t.stop:
				return
			default:
			}
			if q.Work(ctx) {
				found = true
			}
		}

		if found {
			backoff = t.minPoll
			continue
		}

		timer := time.NewTimer(backoff)
		select {
		case <-t.stop:
			timer.Stop()
			return
		case <-t.signal.C():
			timer.Stop()
			metrics.WakeSignals.Inc()
			backoff = t.minPoll
		case <-timer.C:
			backoff *= 2
			if backoff > t.maxPoll {
				backoff = t.maxPoll
			}
		}
	}
}
