package wakeup

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Transport abstracts the pub/sub client so the service can be exercised
// without a live Redis.
type Transport interface {
	// Connect establishes (or re-establishes) the connection.
	Connect(ctx context.Context) error

	// Subscribe opens a subscription on the shared channel. Only valid
	// after a successful Connect.
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	// Publish sends one payload on the channel. Best-effort: a publish
	// on a down connection just returns an error.
	Publish(ctx context.Context, channel string, payload []byte) error

	Close() error
}

// Subscription delivers raw payloads until an error, after which it is
// dead and the transport must reconnect.
type Subscription interface {
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// redisTransport is called from two goroutines: the consume loop drives
// Connect/Subscribe while the run loop publishes presence, so the client
// pointer is swapped and read under a mutex.
type redisTransport struct {
	opts *redis.Options

	mu  sync.Mutex
	rdb *redis.Client
}

// NewRedisTransport returns a Transport backed by go-redis pub/sub.
func NewRedisTransport(addr, password string) Transport {
	return &redisTransport{opts: &redis.Options{Addr: addr, Password: password}}
}

func (t *redisTransport) client() *redis.Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rdb
}

func (t *redisTransport) swap(rdb *redis.Client) {
	t.mu.Lock()
	old := t.rdb
	t.rdb = rdb
	t.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

func (t *redisTransport) Connect(ctx context.Context) error {
	rdb := redis.NewClient(t.opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return err
	}
	t.swap(rdb)
	return nil
}

func (t *redisTransport) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	rdb := t.client()
	if rdb == nil {
		return nil, redis.ErrClosed
	}
	ps := rdb.Subscribe(ctx, channel)
	// Force the SUBSCRIBE round-trip so connection failures surface here
	// instead of on the first Receive.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	return &redisSubscription{ps: ps}, nil
}

func (t *redisTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	rdb := t.client()
	if rdb == nil {
		return redis.ErrClosed
	}
	return rdb.Publish(ctx, channel, payload).Err()
}

func (t *redisTransport) Close() error {
	t.mu.Lock()
	rdb := t.rdb
	t.rdb = nil
	t.mu.Unlock()
	if rdb == nil {
		return nil
	}
	return rdb.Close()
}

type redisSubscription struct {
	ps *redis.PubSub
}

func (s *redisSubscription) Receive(ctx context.Context) ([]byte, error) {
	msg, err := s.ps.ReceiveMessage(ctx)
	if err != nil {
		return nil, err
	}
	return []byte(msg.Payload), nil
}

func (s *redisSubscription) Close() error {
	return s.ps.Close()
}
