package worker

import (
	"encoding/json"
	"time"
)

// Job is an immutable snapshot of one dequeued message. The store assigns
// the ID; finalization (archive/delete) is a follow-up store call keyed by
// that ID, never a mutation of the Job itself.
type Job struct {
	ID            int64           `json:"id"`
	Payload       json.RawMessage `json:"payload"`
	DeliveryCount int             `json:"delivery_count"`
	EnqueuedAt    time.Time       `json:"enqueued_at"`

	// VisibilityDeadline is when the message becomes redeliverable if it
	// was read (not popped) and never finalized.
	VisibilityDeadline time.Time `json:"visibility_deadline"`

	// Popped is true when the store already deleted the message on fetch.
	// A popped job has no redelivery path.
	Popped bool `json:"popped"`

	Queue string `json:"-"` // Set by the owning Queue before the handler runs
}
