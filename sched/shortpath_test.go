package sched

import (
	"context"
	"testing"
	"time"
)

func TestShortPathFiresWithoutStore(t *testing.T) {
	clock := NewFakeClock(testEpoch)
	sink := NewSink()
	rec := &recorder{}
	sink.Subscribe("test.fire", rec.handle)
	short := NewShortPath(clock, sink)

	item := &testItem{id: 1, due: testEpoch.Add(30 * time.Second)}
	short.Schedule(context.Background(), "test.fire", item, nil)

	clock.BlockUntil(1)
	waitNoEvents(t, rec, 10*time.Millisecond)

	clock.Advance(30 * time.Second)
	events := waitEvents(t, rec, 1)
	if events[0].Data.(Item).ItemID() != 1 {
		t.Fatalf("fired id = %d, want 1", events[0].Data.(Item).ItemID())
	}
}

func TestShortPathMarksPersistedItemBeforeEmit(t *testing.T) {
	clock := NewFakeClock(testEpoch)
	sink := NewSink()
	store := newMemStore()
	short := NewShortPath(clock, sink)

	item := store.add(4, testEpoch.Add(10*time.Second))

	// The subscriber must observe the item inactive already.
	var activeAtEmit bool
	sink.Subscribe("test.fire", func(e Event) error {
		activeAtEmit = store.active(e.Data.(Item).ItemID())
		return nil
	})
	rec := &recorder{}
	sink.Subscribe("test.fire", rec.handle)

	short.Schedule(context.Background(), "test.fire", item, store)
	clock.BlockUntil(1)
	clock.Advance(10 * time.Second)

	waitEvents(t, rec, 1)
	if activeAtEmit {
		t.Fatal("item was still active when the event was emitted")
	}
}

func TestShortPathSuppressesCancelledItem(t *testing.T) {
	clock := NewFakeClock(testEpoch)
	sink := NewSink()
	store := newMemStore()
	rec := &recorder{}
	sink.Subscribe("test.fire", rec.handle)
	short := NewShortPath(clock, sink)

	item := store.add(4, testEpoch.Add(10*time.Second))
	short.Schedule(context.Background(), "test.fire", item, store)
	clock.BlockUntil(1)

	if changed, err := store.MarkInactive(4); err != nil || !changed {
		t.Fatalf("cancel: changed=%v err=%v", changed, err)
	}
	clock.Advance(10 * time.Second)
	short.Wait()

	waitNoEvents(t, rec, 10*time.Millisecond)
}

func TestShortPathStopsOnShutdown(t *testing.T) {
	clock := NewFakeClock(testEpoch)
	sink := NewSink()
	rec := &recorder{}
	sink.Subscribe("test.fire", rec.handle)
	short := NewShortPath(clock, sink)

	ctx, cancel := context.WithCancel(context.Background())
	item := &testItem{id: 1, due: testEpoch.Add(time.Minute)}
	short.Schedule(ctx, "test.fire", item, nil)

	clock.BlockUntil(1)
	cancel()
	short.Wait()

	waitNoEvents(t, rec, 10*time.Millisecond)
}
