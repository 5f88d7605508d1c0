package wakeup

import (
	"encoding/json"
	"time"
)

// Event names carried on the shared channel.
const (
	EventJobEnqueued   = "job_enqueued"
	EventPresence      = "presence"
	EventPresenceLeave = "presence_leave"
)

// Presence statuses.
const (
	StatusIdle = "idle"
	StatusBusy = "busy"
)

// envelope is the wire format for every event on the shared channel. All
// worker instances in a deployment share one channel, so consumers filter
// on Event and Queue.
type envelope struct {
	Event string `json:"event"`

	// job_enqueued fields
	Queue string `json:"queue,omitempty"`
	JobID int64  `json:"job_id,omitempty"`

	// presence fields
	Worker      string           `json:"worker,omitempty"`
	Queues      []string         `json:"queues,omitempty"`
	Status      string           `json:"status,omitempty"`
	CurrentJobs map[string]int64 `json:"current_jobs,omitempty"` // job key -> unix start
}

// PresenceRecord is a point-in-time snapshot of this worker's presence
// state: identity, monitored queues, busy/idle, and in-flight jobs with
// their start times. It is ephemeral pub/sub state, never persisted.
type PresenceRecord struct {
	Worker      string               `json:"worker"`
	Queues      []string             `json:"queues"`
	Status      string               `json:"status"`
	CurrentJobs map[string]time.Time `json:"current_jobs"`
}

func (p PresenceRecord) encode() []byte {
	jobs := make(map[string]int64, len(p.CurrentJobs))
	for k, v := range p.CurrentJobs {
		jobs[k] = v.Unix()
	}
	b, _ := json.Marshal(envelope{
		Event:       EventPresence,
		Worker:      p.Worker,
		Queues:      p.Queues,
		Status:      p.Status,
		CurrentJobs: jobs,
	})
	return b
}
