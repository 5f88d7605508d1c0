// Package wakeup bridges an asynchronous pub/sub notification channel to
// the worker's polling threads. All worker instances in a deployment share
// one broadcast channel; producers announce new jobs on it, and each
// worker announces its own presence. The bridge is a best-effort latency
// optimization: the worker's backoff polling is the correctness backstop,
// and a channel that can never be reached just leaves the system in pure
// polling mode.
package wakeup

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/avelhorn/pgmq-worker/internal/metrics"
	"github.com/avelhorn/pgmq-worker/internal/runloop"
	"github.com/avelhorn/pgmq-worker/pkg/worker"
)

const (
	defaultChannel   = "pgmq-worker:wakeup"
	defaultHeartbeat = 15 * time.Second
	defaultMinRetry  = 1 * time.Second
	defaultMaxRetry  = 60 * time.Second

	loopBuffer = 64
)

// Config for the wake-up service. Zero values take the defaults above.
type Config struct {
	WorkerID  string
	Channel   string
	EventName string // event that triggers wake-ups, default job_enqueued
	Heartbeat time.Duration
	MinRetry  time.Duration
	MaxRetry  time.Duration
}

// Service subscribes to the shared channel, wakes registered threads when
// a monitored queue gets a job, and publishes this worker's presence on
// every busy/idle transition plus a fixed heartbeat. Transport errors are
// logged and retried with exponential backoff; they never reach the
// owning Worker.
//
// Presence state (the in-flight map) lives on the run loop: polling
// threads hand their updates off via runloop.Post instead of touching the
// transport or the map directly.
type Service struct {
	cfg Config
	tr  Transport
	log *zap.Logger

	loop *runloop.Loop

	mu      sync.Mutex
	signals map[*worker.WakeSignal]struct{}
	queues  map[string]struct{}

	// loop-owned, never touched off-loop
	inflight map[string]time.Time
	lastBusy bool

	cancel  context.CancelFunc
	consume chan struct{} // closed when the consume goroutine exits
	beat    chan struct{} // closed when the heartbeat goroutine exits
}

func New(cfg Config, tr Transport, log *zap.Logger) *Service {
	if cfg.Channel == "" {
		cfg.Channel = defaultChannel
	}
	if cfg.EventName == "" {
		cfg.EventName = EventJobEnqueued
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = defaultHeartbeat
	}
	if cfg.MinRetry <= 0 {
		cfg.MinRetry = defaultMinRetry
	}
	if cfg.MaxRetry < cfg.MinRetry {
		cfg.MaxRetry = defaultMaxRetry
	}
	return &Service{
		cfg:      cfg,
		tr:       tr,
		log:      log,
		loop:     runloop.New(loopBuffer),
		signals:  make(map[*worker.WakeSignal]struct{}),
		queues:   make(map[string]struct{}),
		inflight: make(map[string]time.Time),
		consume:  make(chan struct{}),
		beat:     make(chan struct{}),
	}
}

var _ worker.Notifier = (*Service)(nil)

// Start begins consuming notifications for the given queue names and
// publishing presence. Never fails: connection problems are retried in
// the background while the worker polls on its own schedule.
func (s *Service) Start(queues []string) {
	s.mu.Lock()
	for _, q := range queues {
		s.queues[q] = struct{}{}
	}
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.consumeLoop(ctx)
	go s.heartbeatLoop(ctx)
}

// Register adds a thread's wake handle.
func (s *Service) Register(sig *worker.WakeSignal) {
	s.mu.Lock()
	s.signals[sig] = struct{}{}
	s.mu.Unlock()
}

// Unregister removes a thread's wake handle.
func (s *Service) Unregister(sig *worker.WakeSignal) {
	s.mu.Lock()
	delete(s.signals, sig)
	s.mu.Unlock()
}

// JobStarted records an in-flight job and publishes presence if this
// worker just went busy. Non-blocking; dropped when the loop is saturated.
func (s *Service) JobStarted(queue string, jobID int64) {
	key := jobKey(queue, jobID)
	now := time.Now()
	s.loop.Post(func() {
		s.inflight[key] = now
		s.publishOnTransition(context.Background())
	})
}

// JobFinished clears an in-flight job and publishes presence if this
// worker just went idle.
func (s *Service) JobFinished(queue string, jobID int64) {
	key := jobKey(queue, jobID)
	s.loop.Post(func() {
		delete(s.inflight, key)
		s.publishOnTransition(context.Background())
	})
}

// Snapshot returns the current presence record, read on the loop so it is
// consistent with in-progress updates.
func (s *Service) Snapshot(ctx context.Context) (PresenceRecord, error) {
	var rec PresenceRecord
	err := s.loop.Submit(ctx, func() {
		rec = s.record()
	})
	return rec, err
}

// Stop publishes a best-effort presence leave, tears the transport down,
// and joins the background goroutines, bounded by ctx.
func (s *Service) Stop(ctx context.Context) error {
	started := s.cancel != nil
	if started {
		s.cancel()
	}

	// Leave presence while the transport may still be up. Fire-and-forget:
	// a dead connection at shutdown is not worth waiting on.
	leave, _ := json.Marshal(envelope{Event: EventPresenceLeave, Worker: s.cfg.WorkerID})
	_ = s.loop.Submit(ctx, func() {
		if err := s.tr.Publish(ctx, s.cfg.Channel, leave); err != nil {
			s.log.Debug("presence leave failed", zap.Error(err))
		}
	})

	s.loop.Close()
	if err := s.tr.Close(); err != nil {
		s.log.Debug("transport close failed", zap.Error(err))
	}

	if !started {
		return nil
	}
	for _, done := range []<-chan struct{}{s.consume, s.beat} {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// consumeLoop maintains the subscription: connect, subscribe, receive
// until the connection dies, then retry with exponential backoff.
func (s *Service) consumeLoop(ctx context.Context) {
	defer close(s.consume)

	retry := s.cfg.MinRetry
	for {
		if ctx.Err() != nil {
			return
		}
		ok := s.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if ok {
			retry = s.cfg.MinRetry
		}
		metrics.WakeupReconnects.Inc()
		s.log.Warn("wake-up channel down, retrying",
			zap.String("channel", s.cfg.Channel),
			zap.Duration("retry_in", retry))
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
		retry *= 2
		if retry > s.cfg.MaxRetry {
			retry = s.cfg.MaxRetry
		}
	}
}

// session runs one connect-subscribe-receive cycle. Returns true if the
// subscription was established (so the caller resets its backoff).
func (s *Service) session(ctx context.Context) bool {
	if err := s.tr.Connect(ctx); err != nil {
		s.log.Warn("wake-up connect failed", zap.Error(err))
		return false
	}
	sub, err := s.tr.Subscribe(ctx, s.cfg.Channel)
	if err != nil {
		s.log.Warn("wake-up subscribe failed", zap.Error(err))
		return false
	}
	defer sub.Close()

	s.log.Info("wake-up channel connected", zap.String("channel", s.cfg.Channel))

	// Announce ourselves as soon as the channel is up.
	s.loop.Post(func() { s.publish(ctx) })

	for {
		payload, err := sub.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn("wake-up receive failed", zap.Error(err))
			}
			return true
		}
		s.handle(payload)
	}
}

// handle processes one raw event from the channel.
func (s *Service) handle(payload []byte) {
	var ev envelope
	if err := json.Unmarshal(payload, &ev); err != nil {
		s.log.Debug("bad event on wake-up channel", zap.Error(err))
		return
	}
	if ev.Event != s.cfg.EventName {
		return // presence traffic from other workers, not for us
	}

	s.mu.Lock()
	_, monitored := s.queues[ev.Queue]
	if !monitored {
		s.mu.Unlock()
		metrics.WakeupsIgnored.Inc()
		return
	}
	for sig := range s.signals {
		sig.Set()
	}
	s.mu.Unlock()

	s.log.Debug("wake-up received",
		zap.String("queue", ev.Queue),
		zap.Int64("job_id", ev.JobID))
}

func (s *Service) heartbeatLoop(ctx context.Context) {
	defer close(s.beat)

	ticker := time.NewTicker(s.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.loop.Post(func() { s.publish(ctx) })
		}
	}
}

// record builds the presence snapshot. Loop-owned state; call on-loop only.
func (s *Service) record() PresenceRecord {
	s.mu.Lock()
	queues := make([]string, 0, len(s.queues))
	for q := range s.queues {
		queues = append(queues, q)
	}
	s.mu.Unlock()

	status := StatusIdle
	if len(s.inflight) > 0 {
		status = StatusBusy
	}
	jobs := make(map[string]time.Time, len(s.inflight))
	for k, v := range s.inflight {
		jobs[k] = v
	}
	return PresenceRecord{
		Worker:      s.cfg.WorkerID,
		Queues:      queues,
		Status:      status,
		CurrentJobs: jobs,
	}
}

// publishOnTransition publishes presence only when the busy/idle status
// changed. Heartbeats cover the steady state.
func (s *Service) publishOnTransition(ctx context.Context) {
	busy := len(s.inflight) > 0
	if busy == s.lastBusy {
		return
	}
	s.publish(ctx)
}

// publish sends the current presence record. Call on-loop only.
func (s *Service) publish(ctx context.Context) {
	rec := s.record()
	s.lastBusy = rec.Status == StatusBusy
	if err := s.tr.Publish(ctx, s.cfg.Channel, rec.encode()); err != nil {
		s.log.Debug("presence publish failed", zap.Error(err))
		return
	}
	metrics.PresencePublished.Inc()
}

func jobKey(queue string, id int64) string {
	return queue + "/" + strconv.FormatInt(id, 10)
}

// Announce publishes a job_enqueued event for the given queue. Producers
// call this after a store send so that sleeping workers poll immediately
// instead of waiting out their backoff.
func Announce(ctx context.Context, rdb *redis.Client, channel, queue string, jobID int64) error {
	if channel == "" {
		channel = defaultChannel
	}
	b, _ := json.Marshal(envelope{Event: EventJobEnqueued, Queue: queue, JobID: jobID})
	return rdb.Publish(ctx, channel, b).Err()
}
