package worker

import "errors"

var ErrDuplicateQueue = errors.New("queue already registered")

// registry is an ordered collection of queues forming one worker's scope.
// Registration order defines poll priority: first registered, first polled
// each pass. Mutated only before the run loop starts; read-only after, so
// concurrent iteration by worker threads needs no locking.
type registry struct {
	queues []*Queue
	index  map[string]*Queue
}

func newRegistry() *registry {
	return &registry{index: make(map[string]*Queue)}
}

func (r *registry) add(q *Queue) error {
	if _, exists := r.index[q.name]; exists {
		return ErrDuplicateQueue
	}
	r.index[q.name] = q
	r.queues = append(r.queues, q)
	return nil
}

func (r *registry) names() []string {
	out := make([]string, 0, len(r.queues))
	for _, q := range r.queues {
		out = append(out, q.name)
	}
	return out
}
