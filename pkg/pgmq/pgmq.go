// Package pgmq is a pgx-backed client for the PGMQ Postgres extension,
// implementing the worker.Store contract. PGMQ's read is atomic with
// respect to concurrent readers and pop is an atomic fetch-and-delete, so
// this adapter adds no locking of its own.
package pgmq

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avelhorn/pgmq-worker/pkg/worker"
)

// Ensure *Store implements worker.Store at compile time.
var _ worker.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// SQL templates. PGMQ takes visibility timeouts as whole seconds.
const (
	sqlSend      = `SELECT * FROM pgmq.send(queue_name => $1, msg => $2);`
	sqlSendBatch = `SELECT * FROM pgmq.send_batch(queue_name => $1, msgs => $2::jsonb[]);`
	sqlRead      = `SELECT msg_id, read_ct, enqueued_at, vt, message FROM pgmq.read(queue_name => $1, vt => $2, qty => 1);`
	sqlPop       = `SELECT msg_id, read_ct, enqueued_at, vt, message FROM pgmq.pop(queue_name => $1);`
	sqlArchive   = `SELECT pgmq.archive(queue_name => $1, msg_id => $2);`
	sqlDelete    = `SELECT pgmq.delete(queue_name => $1, msg_id => $2);`
	sqlCreate    = `SELECT pgmq.create(queue_name => $1);`
)

// helper: visibility timeout as whole seconds, rounded up so a sub-second
// request never becomes zero (zero would make the message instantly
// redeliverable).
func toSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

// EnsureQueue creates the queue if it does not exist. Idempotent.
func (s *Store) EnsureQueue(ctx context.Context, queue string) error {
	_, err := s.pool.Exec(ctx, sqlCreate, queue)
	return err
}

// Send enqueues one payload and returns its message ID.
func (s *Store) Send(ctx context.Context, queue string, payload json.RawMessage) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, sqlSend, queue, payload).Scan(&id)
	return id, err
}

// SendBatch enqueues payloads in order and returns their IDs.
func (s *Store) SendBatch(ctx context.Context, queue string, payloads []json.RawMessage) ([]int64, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	msgs := make([]string, 0, len(payloads))
	for _, p := range payloads {
		msgs = append(msgs, string(p))
	}

	rows, err := s.pool.Query(ctx, sqlSendBatch, queue, msgs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Read fetches the next visible message, hiding it for vt. Returns
// nil, nil when the queue is empty.
func (s *Store) Read(ctx context.Context, queue string, vt time.Duration) (*worker.Job, error) {
	return s.fetch(ctx, sqlRead, false, queue, toSeconds(vt))
}

// Pop atomically fetches and deletes the next visible message. Returns
// nil, nil when the queue is empty.
func (s *Store) Pop(ctx context.Context, queue string) (*worker.Job, error) {
	return s.fetch(ctx, sqlPop, true, queue)
}

func (s *Store) fetch(ctx context.Context, sql string, popped bool, args ...any) (*worker.Job, error) {
	job := &worker.Job{Popped: popped}
	err := s.pool.QueryRow(ctx, sql, args...).Scan(
		&job.ID,
		&job.DeliveryCount,
		&job.EnqueuedAt,
		&job.VisibilityDeadline,
		&job.Payload,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Archive moves the message into the queue's archive table; false means
// it was already gone.
func (s *Store) Archive(ctx context.Context, queue string, id int64) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, sqlArchive, queue, id).Scan(&ok)
	return ok, err
}

// Delete removes the message permanently; false means it was already gone.
func (s *Store) Delete(ctx context.Context, queue string, id int64) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, sqlDelete, queue, id).Scan(&ok)
	return ok, err
}
