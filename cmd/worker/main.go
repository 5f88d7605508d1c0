// Command worker is the reference worker binary: it wires the runtime
// entirely from the environment and registers a logging handler for every
// declared queue. Real deployments embed the library instead (see
// examples/worker) and register their own handlers.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/avelhorn/pgmq-worker/internal/api"
	"github.com/avelhorn/pgmq-worker/internal/config"
	"github.com/avelhorn/pgmq-worker/internal/logging"
	"github.com/avelhorn/pgmq-worker/pkg/wakeup"
	"github.com/avelhorn/pgmq-worker/pkg/pgmq"
	"github.com/avelhorn/pgmq-worker/pkg/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		zap.NewExample().Fatal("build logger", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()

	connectCtx, cancel := context.WithTimeout(ctx, cfg.DBConnectTimeout)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("pgxpool.New", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(connectCtx); err != nil {
		log.Fatal("pgx ping", zap.Error(err))
	}

	store := pgmq.New(pool)
	for _, q := range cfg.Queues {
		if err := store.EnsureQueue(connectCtx, q.Name); err != nil {
			log.Fatal("create queue", zap.String("queue", q.Name), zap.Error(err))
		}
	}

	var notifier worker.Notifier = worker.NopNotifier{}
	var svc *wakeup.Service
	if cfg.RedisAddr != "" {
		svc = wakeup.New(wakeup.Config{
			WorkerID:  cfg.WorkerName,
			Channel:   cfg.Channel,
			Heartbeat: cfg.Heartbeat,
			MinRetry:  cfg.WakeupMinRetry,
			MaxRetry:  cfg.WakeupMaxRetry,
		}, wakeup.NewRedisTransport(cfg.RedisAddr, cfg.RedisPassword), log)
		notifier = svc
	} else {
		log.Info("REDIS_ADDR not set, running in pure polling mode")
	}

	w, err := worker.New(worker.Options{
		Store:           store,
		Logger:          log,
		Notifier:        notifier,
		Concurrency:     cfg.Concurrency,
		MinPollInterval: cfg.MinPollInterval,
		MaxPollInterval: cfg.MaxPollInterval,
		ShutdownTimeout: cfg.ShutdownTimeout,
	})
	if err != nil {
		log.Fatal("build worker", zap.Error(err))
	}

	for _, q := range cfg.Queues {
		policy := worker.ArchiveOnSuccess
		if !q.Archive {
			policy = worker.DeleteOnSuccess
		}
		if err := w.RegisterQueue(q.Name, logHandler(log), worker.QueueOptions{
			CompletionTimeout: q.CompletionTimeout,
			FinalizePolicy:    policy,
		}); err != nil {
			log.Fatal("register queue", zap.String("queue", q.Name), zap.Error(err))
		}
	}

	if cfg.AdminAddr != "" {
		srv := api.NewServer(cfg.AdminAddr, statusFunc(cfg, svc))
		log.Info("admin server listening", zap.String("addr", cfg.AdminAddr))
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal("admin server", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Shutdown(context.Background()) }()
	}

	if err := w.Run(ctx); err != nil {
		log.Fatal("worker", zap.Error(err))
	}
}

// statusFunc reports live presence when the wake-up bridge is on, and a
// static record otherwise.
func statusFunc(cfg *config.Config, svc *wakeup.Service) api.StatusFunc {
	if svc != nil {
		return svc.Snapshot
	}
	queues := make([]string, 0, len(cfg.Queues))
	for _, q := range cfg.Queues {
		queues = append(queues, q.Name)
	}
	return func(ctx context.Context) (wakeup.PresenceRecord, error) {
		return wakeup.PresenceRecord{
			Worker: cfg.WorkerName,
			Queues: queues,
			Status: "unknown", // no presence tracking without the bridge
		}, nil
	}
}

// logHandler returns the demo handler: it logs the payload and succeeds.
func logHandler(log *zap.Logger) worker.HandlerFunc {
	return func(ctx context.Context, job *worker.Job) error {
		log.Info("job received",
			zap.String("queue", job.Queue),
			zap.Int64("job_id", job.ID),
			zap.Int("delivery_count", job.DeliveryCount),
			zap.ByteString("payload", job.Payload))
		return nil
	}
}
