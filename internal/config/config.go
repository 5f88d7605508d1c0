package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
)

// Config holds all environment configuration for the reference worker
// binary. Library users bypass this entirely and wire worker.Options by
// hand.
type Config struct {
	WorkerName  string `env:"WORKER_NAME"`
	DatabaseURL string `env:"DATABASE_URL,notEmpty"`

	// QueuesRaw declares the queues to poll, in priority order:
	// "name:vtSeconds[:archive|delete]", comma separated. vtSeconds 0
	// selects pop mode.
	QueuesRaw string `env:"QUEUES,notEmpty"`

	// RedisAddr enables the wake-up bridge; empty means pure polling.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	Channel        string        `env:"WAKEUP_CHANNEL" envDefault:"pgmq-worker:wakeup"`
	WakeupMinRetry time.Duration `env:"WAKEUP_MIN_RETRY" envDefault:"1s"`
	WakeupMaxRetry time.Duration `env:"WAKEUP_MAX_RETRY" envDefault:"60s"`
	Heartbeat      time.Duration `env:"PRESENCE_HEARTBEAT" envDefault:"15s"`

	Concurrency     int           `env:"CONCURRENCY" envDefault:"4"`
	MinPollInterval time.Duration `env:"MIN_POLL_INTERVAL" envDefault:"1s"`
	MaxPollInterval time.Duration `env:"MAX_POLL_INTERVAL" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	DBConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"5s"`

	// AdminAddr enables the /healthz, /metrics and /v1/status server;
	// empty disables it.
	AdminAddr string `env:"ADMIN_ADDR"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	Queues []QueueSpec `env:"-"`
}

// QueueSpec is one parsed QUEUES entry.
type QueueSpec struct {
	Name              string
	CompletionTimeout time.Duration
	Archive           bool // archive on success; false means delete
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}

	queues, err := ParseQueues(cfg.QueuesRaw)
	if err != nil {
		return nil, err
	}
	cfg.Queues = queues

	if cfg.WorkerName == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "worker"
		}
		cfg.WorkerName = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}

	if cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("invalid CONCURRENCY: %d", cfg.Concurrency)
	}
	if cfg.MinPollInterval <= 0 || cfg.MinPollInterval > cfg.MaxPollInterval {
		return nil, fmt.Errorf("invalid poll intervals: min %s, max %s",
			cfg.MinPollInterval, cfg.MaxPollInterval)
	}
	return &cfg, nil
}

// ParseQueues parses a QUEUES declaration like
// "emails:30,thumbnails:0,audit:45:delete".
func ParseQueues(raw string) ([]QueueSpec, error) {
	var out []QueueSpec
	seen := make(map[string]bool)

	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("invalid queue entry %q (want name:vtSeconds[:archive|delete])", entry)
		}
		name := strings.TrimSpace(parts[0])
		if name == "" {
			return nil, fmt.Errorf("invalid queue entry %q: empty name", entry)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate queue %q", name)
		}
		seen[name] = true

		secs, err := strconv.Atoi(parts[1])
		if err != nil || secs < 0 {
			return nil, fmt.Errorf("invalid queue entry %q: bad timeout %q", entry, parts[1])
		}

		spec := QueueSpec{
			Name:              name,
			CompletionTimeout: time.Duration(secs) * time.Second,
			Archive:           true,
		}
		if len(parts) == 3 {
			switch parts[2] {
			case "archive":
			case "delete":
				spec.Archive = false
			default:
				return nil, fmt.Errorf("invalid queue entry %q: unknown policy %q", entry, parts[2])
			}
		}
		out = append(out, spec)
	}

	if len(out) == 0 {
		return nil, errors.New("QUEUES declares no queues")
	}
	return out, nil
}
