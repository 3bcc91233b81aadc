package sched

import (
	"context"
	"log"
	"sync"
)

// ShortPath fires items whose deadline is within the short threshold from an
// in-process timer, bypassing the scheduler worker. Its state is process
// memory only: unpersisted items scheduled here are lost on crash.
type ShortPath struct {
	clock Clock
	sink  *Sink
	wg    sync.WaitGroup
}

func NewShortPath(clock Clock, sink *Sink) *ShortPath {
	return &ShortPath{clock: clock, sink: sink}
}

// Schedule spawns a one-shot timer for item and emits an event of fireType
// once the deadline passes. When store is non-nil the item also has a durable
// record, which is marked inactive before the event is emitted; if the mark
// reports the item was already inactive, the fire is suppressed.
func (p *ShortPath) Schedule(ctx context.Context, fireType string, item Item, store Store) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.clock.SleepUntil(ctx, item.Deadline()); err != nil {
			return
		}
		if store != nil {
			changed, err := store.MarkInactive(item.ItemID())
			if err != nil {
				log.Printf("Short path: mark inactive %d failed: %v", item.ItemID(), err)
				return
			}
			if !changed {
				return
			}
		}
		p.sink.Emit(Event{Type: fireType, Time: p.clock.Now(), Data: item})
	}()
}

// Wait blocks until all outstanding timers have finished.
func (p *ShortPath) Wait() {
	p.wg.Wait()
}
