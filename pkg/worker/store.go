package worker

import (
	"context"
	"encoding/json"
	"time"
)

// Store is the store-agnostic interface the worker runtime uses to talk to
// a durable, visibility-timeout-based queue backend. Every call is scoped
// to one named queue.
//
// Contract: Read must be atomic with respect to other concurrent readers —
// two concurrent Read calls never return the same undelivered message. Pop
// is an atomic fetch-and-delete. No ordering guarantee is assumed beyond
// whatever the backend provides natively.
type Store interface {
	// Send enqueues one payload and returns its message ID.
	Send(ctx context.Context, queue string, payload json.RawMessage) (int64, error)

	// SendBatch enqueues payloads in order and returns their IDs.
	SendBatch(ctx context.Context, queue string, payloads []json.RawMessage) ([]int64, error)

	// Read fetches the next visible message and hides it for vt.
	// Returns nil, nil when the queue is empty.
	Read(ctx context.Context, queue string, vt time.Duration) (*Job, error)

	// Pop atomically fetches and deletes the next visible message.
	// Returns nil, nil when the queue is empty.
	Pop(ctx context.Context, queue string) (*Job, error)

	// Archive moves the message to the queue's archive; returns false if
	// the message no longer exists.
	Archive(ctx context.Context, queue string, id int64) (bool, error)

	// Delete removes the message permanently; returns false if the
	// message no longer exists.
	Delete(ctx context.Context, queue string, id int64) (bool, error)
}
