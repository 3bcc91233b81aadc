package sched

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type testItem struct {
	id  int64
	due time.Time
}

func (i *testItem) ItemID() int64       { return i.id }
func (i *testItem) Deadline() time.Time { return i.due }

type memRow struct {
	item   *testItem
	active bool
}

// memStore is an in-memory Store for driving the scheduler in tests.
// failMark/failLoad make the next N calls fail with a transport error.
type memStore struct {
	mu       sync.Mutex
	rows     map[int64]*memRow
	failMark int
	failLoad int
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[int64]*memRow)}
}

func (m *memStore) add(id int64, due time.Time) *testItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := &testItem{id: id, due: due.UTC()}
	m.rows[id] = &memRow{item: it, active: true}
	return it
}

func (m *memStore) active(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	return ok && row.active
}

func (m *memStore) EarliestActiveBefore(deadline time.Time) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLoad > 0 {
		m.failLoad--
		return nil, &TransportError{Op: "load", Err: fmt.Errorf("connection lost")}
	}
	var best *testItem
	for _, row := range m.rows {
		if !row.active || row.item.due.After(deadline) {
			continue
		}
		if best == nil || row.item.due.Before(best.due) ||
			(row.item.due.Equal(best.due) && row.item.id < best.id) {
			best = row.item
		}
	}
	if best == nil {
		return nil, nil
	}
	return best, nil
}

func (m *memStore) MarkInactive(id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failMark > 0 {
		m.failMark--
		return false, &TransportError{Op: "mark", Err: fmt.Errorf("connection lost")}
	}
	row, ok := m.rows[id]
	if !ok {
		return false, ErrNotFound
	}
	if !row.active {
		return false, nil
	}
	row.active = false
	return true, nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func waitEvents(t *testing.T, r *recorder, n int) []Event {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if evs := r.snapshot(); len(evs) >= n {
			return evs
		}
		time.Sleep(time.Millisecond)
	}
	evs := r.snapshot()
	t.Fatalf("timed out waiting for %d events, got %d", n, len(evs))
	return nil
}

func waitNoEvents(t *testing.T, r *recorder, wait time.Duration) {
	t.Helper()
	time.Sleep(wait)
	if evs := r.snapshot(); len(evs) != 0 {
		t.Fatalf("expected no events, got %d", len(evs))
	}
}

// waitNextID polls until the worker is waiting on the given item id.
func waitNextID(t *testing.T, s *Scheduler, id int64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if got, _, ok := s.NextDeadline(); ok && got == id {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for scheduler to wait on item %d", id)
}

func firedIDs(events []Event) []int64 {
	ids := make([]int64, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.Data.(Item).ItemID())
	}
	return ids
}
