package outbox

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the outbox in process. Repositories that hold their own
// lock while calling Append get the same all-or-nothing write as a database
// transaction.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	events []Event
	leases map[int64]time.Time
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{leases: map[int64]time.Time{}, now: time.Now}
}

func (s *MemoryStore) Append(events ...Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		s.nextID++
		e.ID = s.nextID
		e.Status = StatusPending
		s.events = append(s.events, e)
	}
}

// Events returns a copy of every stored event in insertion order.
func (s *MemoryStore) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *MemoryStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Status != StatusSent {
			n++
		}
	}
	return n
}

func (s *MemoryStore) LockBatch(_ context.Context, _ string, batchSize int, lease time.Duration) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out []Event
	for i := range s.events {
		if len(out) == batchSize {
			break
		}
		e := &s.events[i]
		switch e.Status {
		case StatusPending, StatusFailed:
		case StatusInProgress:
			if now.Before(s.leases[e.ID]) {
				continue
			}
		default:
			continue
		}
		e.Status = StatusInProgress
		s.leases[e.ID] = now.Add(lease)
		out = append(out, *e)
	}
	return out, nil
}

func (s *MemoryStore) MarkSent(_ context.Context, ids []int64) error {
	s.set(ids, func(e *Event) { e.Status = StatusSent })
	return nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, id int64, errMsg string) error {
	s.set([]int64{id}, func(e *Event) {
		e.Status = StatusFailed
		e.RetryCount++
		e.LastError = &errMsg
	})
	return nil
}

func (s *MemoryStore) Release(_ context.Context, ids []int64) error {
	s.set(ids, func(e *Event) { e.Status = StatusPending })
	return nil
}

func (s *MemoryStore) set(ids []int64, fn func(*Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for i := range s.events {
		if want[s.events[i].ID] {
			fn(&s.events[i])
			delete(s.leases, s.events[i].ID)
		}
	}
}
