package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// fakeStore is an in-memory Store with real visibility-timeout semantics:
// Read hides a message until its deadline, Pop removes it outright, and
// an unfinalized message becomes redeliverable with its delivery count
// bumped. All operations are atomic under one mutex, matching the store
// contract that two concurrent readers never see the same message.
type fakeStore struct {
	mu     sync.Mutex
	nextID int64
	queues map[string][]*fakeMsg

	archived map[string][]int64
	deleted  map[string][]int64

	fetchErr error // when set, Read and Pop fail
	fetches  chan string
}

type fakeMsg struct {
	id        int64
	payload   json.RawMessage
	readCt    int
	enqueued  time.Time
	visibleAt time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		queues:   make(map[string][]*fakeMsg),
		archived: make(map[string][]int64),
		deleted:  make(map[string][]int64),
		fetches:  make(chan string, 1024),
	}
}

func (f *fakeStore) Send(ctx context.Context, queue string, payload json.RawMessage) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.queues[queue] = append(f.queues[queue], &fakeMsg{
		id:       f.nextID,
		payload:  payload,
		enqueued: time.Now(),
	})
	return f.nextID, nil
}

func (f *fakeStore) SendBatch(ctx context.Context, queue string, payloads []json.RawMessage) ([]int64, error) {
	ids := make([]int64, 0, len(payloads))
	for _, p := range payloads {
		id, _ := f.Send(ctx, queue, p)
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStore) Read(ctx context.Context, queue string, vt time.Duration) (*Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.note(queue)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	now := time.Now()
	for _, m := range f.queues[queue] {
		if m.visibleAt.After(now) {
			continue
		}
		m.readCt++
		m.visibleAt = now.Add(vt)
		return &Job{
			ID:                 m.id,
			Payload:            m.payload,
			DeliveryCount:      m.readCt,
			EnqueuedAt:         m.enqueued,
			VisibilityDeadline: m.visibleAt,
		}, nil
	}
	return nil, nil
}

func (f *fakeStore) Pop(ctx context.Context, queue string) (*Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.note(queue)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	now := time.Now()
	for i, m := range f.queues[queue] {
		if m.visibleAt.After(now) {
			continue
		}
		f.queues[queue] = append(f.queues[queue][:i], f.queues[queue][i+1:]...)
		return &Job{
			ID:            m.id,
			Payload:       m.payload,
			DeliveryCount: m.readCt,
			EnqueuedAt:    m.enqueued,
			Popped:        true,
		}, nil
	}
	return nil, nil
}

func (f *fakeStore) Archive(ctx context.Context, queue string, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.remove(queue, id) {
		return false, nil
	}
	f.archived[queue] = append(f.archived[queue], id)
	return true, nil
}

func (f *fakeStore) Delete(ctx context.Context, queue string, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.remove(queue, id) {
		return false, nil
	}
	f.deleted[queue] = append(f.deleted[queue], id)
	return true, nil
}

func (f *fakeStore) remove(queue string, id int64) bool {
	for i, m := range f.queues[queue] {
		if m.id == id {
			f.queues[queue] = append(f.queues[queue][:i], f.queues[queue][i+1:]...)
			return true
		}
	}
	return false
}

func (f *fakeStore) note(queue string) {
	select {
	case f.fetches <- queue:
	default:
	}
}

func (f *fakeStore) remaining(queue string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queues[queue])
}

func (f *fakeStore) archivedIDs(queue string) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.archived[queue]...)
}

func (f *fakeStore) deletedIDs(queue string) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.deleted[queue]...)
}

func (f *fakeStore) setFetchErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}
