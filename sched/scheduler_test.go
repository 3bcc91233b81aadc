package sched

import (
	"context"
	"math/rand"
	"sort"
	"testing"
	"time"
)

var testEpoch = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func startScheduler(t *testing.T, store Store, clock Clock, cfg Config) (*Scheduler, *recorder, context.CancelFunc) {
	t.Helper()
	sink := NewSink()
	rec := &recorder{}
	sink.Subscribe("test.fire", rec.handle)
	s := NewScheduler("test", store, clock, sink, "test.fire", cfg)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	t.Cleanup(func() {
		cancel()
		s.Wait()
	})
	return s, rec, cancel
}

func TestFiresInDeadlineOrder(t *testing.T) {
	clock := NewFakeClock(testEpoch)
	store := newMemStore()
	store.add(3, testEpoch.Add(30*time.Second))
	store.add(1, testEpoch.Add(10*time.Second))
	store.add(2, testEpoch.Add(20*time.Second))

	_, rec, _ := startScheduler(t, store, clock, Config{})

	clock.BlockUntil(1)
	clock.Advance(30 * time.Second)

	events := waitEvents(t, rec, 3)
	ids := firedIDs(events)
	want := []int64{1, 2, 3}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("fire order = %v, want %v", ids, want)
		}
	}
}

func TestTieBreakAscendingID(t *testing.T) {
	clock := NewFakeClock(testEpoch)
	store := newMemStore()
	due := testEpoch.Add(15 * time.Second)
	store.add(9, due)
	store.add(2, due)
	store.add(5, due)

	_, rec, _ := startScheduler(t, store, clock, Config{})

	clock.BlockUntil(1)
	clock.Advance(15 * time.Second)

	ids := firedIDs(waitEvents(t, rec, 3))
	want := []int64{2, 5, 9}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("fire order = %v, want %v", ids, want)
		}
	}
}

func TestRewakeOnEarlierInsert(t *testing.T) {
	clock := NewFakeClock(testEpoch)
	store := newMemStore()
	store.add(1, testEpoch.Add(time.Hour))

	s, rec, _ := startScheduler(t, store, clock, Config{})
	waitNextID(t, s, 1)

	b := store.add(2, testEpoch.Add(2*time.Minute))
	s.Signal(b.due)
	waitNextID(t, s, 2)

	clock.Advance(2 * time.Minute)
	waitEvents(t, rec, 1)

	waitNextID(t, s, 1)
	clock.Advance(58 * time.Minute)

	ids := firedIDs(waitEvents(t, rec, 2))
	if ids[0] != 2 || ids[1] != 1 {
		t.Fatalf("fire order = %v, want [2 1]", ids)
	}
}

func TestHorizonExcludesFarItems(t *testing.T) {
	clock := NewFakeClock(testEpoch)
	store := newMemStore()
	horizon := 40 * 24 * time.Hour
	item := store.add(1, testEpoch.Add(horizon+time.Second))

	s, rec, _ := startScheduler(t, store, clock, Config{Horizon: horizon, RequeryInterval: time.Hour})

	// Beyond the horizon: Signal is a no-op and the worker stays parked.
	s.Signal(item.due)
	clock.BlockUntil(1)
	if _, _, ok := s.NextDeadline(); ok {
		t.Fatal("scheduler loaded an item beyond the horizon")
	}
	waitNoEvents(t, rec, 20*time.Millisecond)

	// Once time moves the item inside the horizon, the periodic requery
	// loads it.
	clock.Advance(time.Hour)
	waitNextID(t, s, 1)

	clock.Advance(horizon)
	ids := firedIDs(waitEvents(t, rec, 1))
	if ids[0] != 1 {
		t.Fatalf("fired id = %d, want 1", ids[0])
	}
}

func TestSignalWakesParkedWorker(t *testing.T) {
	clock := NewFakeClock(testEpoch)
	store := newMemStore()

	s, rec, _ := startScheduler(t, store, clock, Config{})
	clock.BlockUntil(1) // parked, nothing in store

	item := store.add(7, testEpoch.Add(10*time.Second))
	s.Signal(item.due)
	waitNextID(t, s, 7)

	clock.Advance(10 * time.Second)
	waitEvents(t, rec, 1)
}

func TestPastDueItemFiresImmediately(t *testing.T) {
	// A scheduler started after the deadline (restart after a crash) fires
	// the persisted item without waiting.
	clock := NewFakeClock(testEpoch)
	store := newMemStore()
	store.add(1, testEpoch.Add(-10*time.Second))

	_, rec, _ := startScheduler(t, store, clock, Config{})

	ids := firedIDs(waitEvents(t, rec, 1))
	if ids[0] != 1 {
		t.Fatalf("fired id = %d, want 1", ids[0])
	}
	if store.active(1) {
		t.Fatal("item still active after fire")
	}
}

func TestRefiresAfterMarkFailure(t *testing.T) {
	clock := NewFakeClock(testEpoch)
	store := newMemStore()
	store.add(1, testEpoch.Add(5*time.Second))
	store.failMark = 1

	_, rec, _ := startScheduler(t, store, clock, Config{})

	clock.BlockUntil(1)
	clock.Advance(5 * time.Second)

	// Mark failed; the worker backs off and retries.
	clock.BlockUntil(1)
	clock.Advance(2 * time.Second)

	events := waitEvents(t, rec, 1)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if store.active(1) {
		t.Fatal("item still active after refire")
	}
}

func TestLoadFailureBacksOffAndRecovers(t *testing.T) {
	clock := NewFakeClock(testEpoch)
	store := newMemStore()
	store.add(1, testEpoch.Add(2*time.Second))
	store.failLoad = 2

	_, rec, _ := startScheduler(t, store, clock, Config{})

	// Two failed loads, two backoff sleeps.
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	clock.BlockUntil(1)
	clock.Advance(2 * time.Second)

	// Third load succeeds; the item is already past due.
	waitEvents(t, rec, 1)
}

func TestShutdownLeavesItemActive(t *testing.T) {
	clock := NewFakeClock(testEpoch)
	store := newMemStore()
	store.add(1, testEpoch.Add(time.Minute))

	s, rec, cancel := startScheduler(t, store, clock, Config{})
	waitNextID(t, s, 1)

	cancel()
	s.Wait()

	if !store.active(1) {
		t.Fatal("shutdown marked the in-flight item inactive")
	}
	waitNoEvents(t, rec, 10*time.Millisecond)
}

func TestCancelledItemDoesNotFire(t *testing.T) {
	clock := NewFakeClock(testEpoch)
	store := newMemStore()
	store.add(1, testEpoch.Add(30*time.Second))

	s, rec, _ := startScheduler(t, store, clock, Config{})
	waitNextID(t, s, 1)

	changed, err := store.MarkInactive(1)
	if err != nil || !changed {
		t.Fatalf("cancel: changed=%v err=%v", changed, err)
	}
	s.Invalidate(1)

	// Second mark is an idempotent no-op.
	changed, err = store.MarkInactive(1)
	if err != nil {
		t.Fatalf("second mark: %v", err)
	}
	if changed {
		t.Fatal("second mark reported a transition")
	}

	clock.Advance(30 * time.Second)
	waitNoEvents(t, rec, 20*time.Millisecond)
}

func TestManyItemsFireInSortedOrder(t *testing.T) {
	clock := NewFakeClock(testEpoch)
	store := newMemStore()
	horizon := 40 * 24 * time.Hour

	rng := rand.New(rand.NewSource(1))
	const n = 1000
	type key struct {
		due time.Time
		id  int64
	}
	keys := make([]key, 0, n)
	for i := 0; i < n; i++ {
		id := int64(i + 1)
		due := testEpoch.Add(time.Duration(rng.Int63n(int64(horizon))))
		store.add(id, due)
		keys = append(keys, key{due: due.UTC(), id: id})
	}
	sort.Slice(keys, func(i, j int) bool {
		if !keys[i].due.Equal(keys[j].due) {
			return keys[i].due.Before(keys[j].due)
		}
		return keys[i].id < keys[j].id
	})

	// Everything is already past due from the worker's perspective, so it
	// drains the store without sleeping.
	clock.Advance(horizon + time.Second)
	_, rec, _ := startScheduler(t, store, clock, Config{Horizon: horizon})

	events := waitEvents(t, rec, n)
	if len(events) != n {
		t.Fatalf("got %d events, want %d", len(events), n)
	}
	ids := firedIDs(events)
	for i, k := range keys {
		if ids[i] != k.id {
			t.Fatalf("position %d: fired %d, want %d", i, ids[i], k.id)
		}
	}
}
