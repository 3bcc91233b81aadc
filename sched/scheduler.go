package sched

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

const (
	// DefaultHorizon is the maximum look-ahead. Items due farther out stay
	// dormant in the store until time moves them inside the window.
	DefaultHorizon = 40 * 24 * time.Hour
	// DefaultBackoffMax caps the retry delay after a transport error.
	DefaultBackoffMax = 30 * time.Second
	// DefaultRequeryInterval bounds how long an idle worker stays parked
	// before re-checking the store for items that drifted inside the horizon.
	DefaultRequeryInterval = time.Hour
)

// Item is the scheduler's view of a timed record.
type Item interface {
	ItemID() int64
	Deadline() time.Time
}

// Store is the durable half of a scheduler. Implementations must be safe for
// concurrent use by the worker and caller goroutines.
type Store interface {
	// EarliestActiveBefore returns the active item with the smallest
	// deadline not after the given instant, ties broken by ascending id.
	// It returns (nil, nil) when no such item exists.
	EarliestActiveBefore(deadline time.Time) (Item, error)
	// MarkInactive flips the item inactive. It reports whether this call
	// performed the transition; marking an already-inactive item is a no-op
	// that returns (false, nil). A missing row yields ErrNotFound.
	MarkInactive(id int64) (bool, error)
}

// Config carries the scheduler tunables. Zero values take the defaults.
type Config struct {
	Horizon         time.Duration
	BackoffMax      time.Duration
	RequeryInterval time.Duration
}

// Scheduler runs a single worker that repeatedly loads the earliest due item
// from its store, sleeps until the deadline, marks the item inactive and
// emits a completion event. Inserting an item with an earlier deadline than
// the one being waited on rewakes the worker so it reloads from the store.
type Scheduler struct {
	name     string
	store    Store
	clock    Clock
	sink     *Sink
	fireType string

	horizon    time.Duration
	backoffMax time.Duration
	requery    time.Duration

	haveData chan struct{}

	mu          sync.Mutex
	next        Item
	sleepCancel context.CancelFunc

	wg sync.WaitGroup
}

// NewScheduler creates a scheduler that publishes fired items as events of
// fireType. The name only appears in logs.
func NewScheduler(name string, store Store, clock Clock, sink *Sink, fireType string, cfg Config) *Scheduler {
	if cfg.Horizon <= 0 {
		cfg.Horizon = DefaultHorizon
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = DefaultBackoffMax
	}
	if cfg.RequeryInterval <= 0 {
		cfg.RequeryInterval = DefaultRequeryInterval
	}
	return &Scheduler{
		name:       name,
		store:      store,
		clock:      clock,
		sink:       sink,
		fireType:   fireType,
		horizon:    cfg.Horizon,
		backoffMax: cfg.BackoffMax,
		requery:    cfg.RequeryInterval,
		haveData:   make(chan struct{}, 1),
	}
}

// Start launches the worker. It exits when ctx is cancelled, leaving any
// in-flight item active so it fires again after a restart.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Wait blocks until the worker has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Signal tells the worker that a new item with the given deadline was
// persisted. The store write must be flushed before calling Signal so the
// worker's reload observes the new row. Deadlines beyond the horizon are
// ignored; the periodic requery picks them up later.
func (s *Scheduler) Signal(deadline time.Time) {
	if deadline.Sub(s.clock.Now()) > s.horizon {
		return
	}
	select {
	case s.haveData <- struct{}{}:
	default:
	}
	s.mu.Lock()
	if s.next != nil && deadline.Before(s.next.Deadline()) && s.sleepCancel != nil {
		s.sleepCancel()
	}
	s.mu.Unlock()
}

// Wake forces the worker to reload from the store. Used after bulk
// cancellations, where the item being waited on may no longer be eligible.
func (s *Scheduler) Wake() {
	select {
	case s.haveData <- struct{}{}:
	default:
	}
	s.mu.Lock()
	if s.sleepCancel != nil {
		s.sleepCancel()
	}
	s.mu.Unlock()
}

// Invalidate rewakes the worker only if it is currently waiting on id.
func (s *Scheduler) Invalidate(id int64) {
	s.mu.Lock()
	if s.next != nil && s.next.ItemID() == id && s.sleepCancel != nil {
		s.sleepCancel()
	}
	s.mu.Unlock()
}

// NextDeadline reports the item the worker is currently waiting on.
func (s *Scheduler) NextDeadline() (int64, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next == nil {
		return 0, time.Time{}, false
	}
	return s.next.ItemID(), s.next.Deadline(), true
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	backoff := time.Second

	for {
		item, err := s.waitForActive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[%s] scheduler: load failed: %v, retrying in %s", s.name, err, backoff)
			if s.sleepBackoff(ctx, &backoff) != nil {
				return
			}
			continue
		}
		backoff = time.Second

		sleepCtx, cancel := context.WithCancel(ctx)
		s.mu.Lock()
		s.next = item
		s.sleepCancel = cancel
		s.mu.Unlock()

		var sleepErr error
		if deadline := item.Deadline(); deadline.After(s.clock.Now()) {
			sleepErr = s.clock.SleepUntil(sleepCtx, deadline)
		}

		s.mu.Lock()
		s.next = nil
		s.sleepCancel = nil
		s.mu.Unlock()
		cancel()

		if sleepErr != nil {
			if ctx.Err() != nil {
				return
			}
			// Rewake: an earlier item preempted this one. The in-memory view
			// is not authoritative, so reload from the store.
			continue
		}

		changed, err := s.store.MarkInactive(item.ItemID())
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			log.Printf("[%s] scheduler: mark inactive %d failed: %v, retrying in %s", s.name, item.ItemID(), err, backoff)
			if s.sleepBackoff(ctx, &backoff) != nil {
				return
			}
			continue
		}
		if !changed {
			// Cancelled between load and fire.
			continue
		}

		s.sink.Emit(Event{Type: s.fireType, Time: s.clock.Now(), Data: item})
	}
}

// waitForActive blocks until the store holds an active item inside the
// horizon and returns the earliest one.
func (s *Scheduler) waitForActive(ctx context.Context) (Item, error) {
	for {
		item, err := s.store.EarliestActiveBefore(s.clock.Now().Add(s.horizon))
		if err != nil {
			return nil, err
		}
		if item != nil {
			return item, nil
		}
		if err := s.park(ctx); err != nil {
			return nil, err
		}
	}
}

// park blocks until new data is signalled or the requery interval elapses.
func (s *Scheduler) park(ctx context.Context) error {
	sleepCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.haveData:
			cancel()
		case <-sleepCtx.Done():
		}
	}()
	err := s.clock.SleepUntil(sleepCtx, s.clock.Now().Add(s.requery))
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

func (s *Scheduler) sleepBackoff(ctx context.Context, backoff *time.Duration) error {
	err := s.clock.SleepUntil(ctx, s.clock.Now().Add(*backoff))
	next := *backoff * 2
	if next > s.backoffMax {
		next = s.backoffMax
	}
	*backoff = next
	return err
}
