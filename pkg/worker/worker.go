// Package worker implements a queue-worker runtime: a pool of polling
// threads that pull jobs from durable, visibility-timeout-based queues,
// dispatch each job to a registered handler, and finalize completion.
// Threads poll on an exponential-backoff schedule; an optional wake-up
// bridge (see the Notifier interface) interrupts their idle sleep the
// moment a new job is announced, so backoff polling stays the correctness
// backstop and notifications are purely a latency optimization.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultMinPoll         = 1 * time.Second
	defaultMaxPoll         = 30 * time.Second
	defaultShutdownTimeout = 30 * time.Second
)

// Options configures a Worker. Store is required; everything else has a
// sensible default.
type Options struct {
	Store    Store
	Logger   *zap.Logger // default: zap.NewNop()
	Notifier Notifier    // default: NopNotifier (pure polling)

	// Concurrency is the number of polling threads, each walking every
	// registered queue. Default 1.
	Concurrency int

	// MinPollInterval and MaxPollInterval bound a thread's backoff
	// between empty passes. Defaults 1s and 30s.
	MinPollInterval time.Duration
	MaxPollInterval time.Duration

	// ShutdownTimeout bounds how long Run waits for in-flight work and
	// the notifier after a stop request before forcing termination.
	// Default 30s.
	ShutdownTimeout time.Duration
}

// QueueOptions configures one registered queue.
type QueueOptions struct {
	// CompletionTimeout selects the delivery mode: 0 means pop mode
	// (atomic fetch-and-delete, at-most-once); any positive value means
	// read mode with this visibility timeout (at-least-once).
	CompletionTimeout time.Duration

	FinalizePolicy FinalizePolicy
}

// Worker owns the queue registry, the polling threads, and the wake-up
// bridge, and coordinates startup and shutdown.
type Worker struct {
	store    Store
	log      *zap.Logger
	notifier Notifier
	registry *registry

	concurrency     int
	minPoll         time.Duration
	maxPoll         time.Duration
	shutdownTimeout time.Duration

	started bool
}

func New(opts Options) (*Worker, error) {
	if opts.Store == nil {
		return nil, errors.New("worker: Store is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MinPollInterval <= 0 {
		opts.MinPollInterval = defaultMinPoll
	}
	if opts.MaxPollInterval <= 0 {
		opts.MaxPollInterval = defaultMaxPoll
	}
	if opts.MinPollInterval > opts.MaxPollInterval {
		return nil, fmt.Errorf("worker: min poll interval %s exceeds max %s",
			opts.MinPollInterval, opts.MaxPollInterval)
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}

	return &Worker{
		store:           opts.Store,
		log:             opts.Logger,
		notifier:        opts.Notifier,
		registry:        newRegistry(),
		concurrency:     opts.Concurrency,
		minPoll:         opts.MinPollInterval,
		maxPoll:         opts.MaxPollInterval,
		shutdownTimeout: opts.ShutdownTimeout,
	}, nil
}

// RegisterQueue adds a named queue to this worker's scope. Must be called
// before Run; registration order defines poll priority. Misconfiguration
// is returned immediately — operating on a malformed registry is unsafe.
func (w *Worker) RegisterQueue(name string, handler HandlerFunc, opts QueueOptions) error {
	if w.started {
		return errors.New("worker: queue registered after Run")
	}
	if name == "" {
		return errors.New("worker: queue name is required")
	}
	if handler == nil {
		return fmt.Errorf("worker: queue %q has no handler", name)
	}
	if opts.CompletionTimeout < 0 {
		return fmt.Errorf("worker: queue %q has negative completion timeout", name)
	}

	q := &Queue{
		name:              name,
		completionTimeout: opts.CompletionTimeout,
		policy:            opts.FinalizePolicy,
		handler:           handler,
		store:             w.store,
		notifier:          w.notifier,
		log:               w.log,
	}
	if err := w.registry.add(q); err != nil {
		return fmt.Errorf("worker: queue %q: %w", name, err)
	}
	w.log.Info("queue registered",
		zap.String("queue", name),
		zap.Duration("completion_timeout", opts.CompletionTimeout),
		zap.Bool("pop_mode", opts.CompletionTimeout == 0))
	return nil
}

// QueueNames returns the registered queue names in poll-priority order.
func (w *Worker) QueueNames() []string {
	return w.registry.names()
}

// Run starts the wake-up bridge and the polling threads, then blocks until
// ctx is cancelled. On cancellation it stops accepting new work, lets
// in-flight work cycles finish, joins every thread, and shuts the bridge
// down — bounded by ShutdownTimeout, after which in-flight handlers are
// force-cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if len(w.registry.queues) == 0 {
		return errors.New("worker: no queues registered")
	}
	w.started = true

	w.notifier.Start(w.registry.names())

	// Work cycles run on their own context so a stop request does not
	// interrupt a job mid-processing. forceCancel is the escalation path
	// when graceful shutdown overruns its deadline.
	workCtx, forceCancel := context.WithCancel(context.Background())
	defer forceCancel()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	signals := make([]*WakeSignal, 0, w.concurrency)

	for i := 0; i < w.concurrency; i++ {
		t := &thread{
			id:       i,
			registry: w.registry,
			signal:   NewWakeSignal(),
			stop:     stop,
			minPoll:  w.minPoll,
			maxPoll:  w.maxPoll,
			log:      w.log,
		}
		w.notifier.Register(t.signal)
		signals = append(signals, t.signal)

		wg.Add(1)
		go func() {
			defer wg.Done()
			t.run(workCtx)
		}()
	}

	w.log.Info("worker started",
		zap.Int("threads", w.concurrency),
		zap.Strings("queues", w.registry.names()))

	<-ctx.Done()
	w.log.Info("worker stopping")

	close(stop)
	for _, s := range signals {
		s.Set() // wake sleeping threads so they observe stop promptly
	}

	joined := make(chan struct{})
	go func() {
		wg.Wait()
		close(joined)
	}()

	deadline := time.NewTimer(w.shutdownTimeout)
	defer deadline.Stop()
	select {
	case <-joined:
	case <-deadline.C:
		w.log.Warn("shutdown timeout exceeded, cancelling in-flight work",
			zap.Duration("timeout", w.shutdownTimeout))
		forceCancel()
		<-joined
	}

	for _, s := range signals {
		w.notifier.Unregister(s)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
	defer cancel()
	if err := w.notifier.Stop(stopCtx); err != nil {
		w.log.Warn("wake-up bridge did not stop cleanly", zap.Error(err))
	}

	w.log.Info("worker stopped")
	return nil
}
