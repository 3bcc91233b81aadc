package sched

import (
	"context"
	"sort"
	"sync"
	"time"
)

// FakeClock is a Clock driven by virtual time. Tests create one at a fixed
// instant and move it forward with Advance; sleepers whose deadline has been
// reached are released in deadline order.
type FakeClock struct {
	mu       sync.Mutex
	now      time.Time
	sleepers []*fakeSleeper
	blockers []*fakeBlocker
}

type fakeSleeper struct {
	until time.Time
	ch    chan struct{}
}

type fakeBlocker struct {
	count int
	ch    chan struct{}
}

// NewFakeClock returns a FakeClock frozen at start (normalised to UTC).
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start.UTC()}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) SleepUntil(ctx context.Context, t time.Time) error {
	c.mu.Lock()
	if !t.After(c.now) {
		c.mu.Unlock()
		return ctx.Err()
	}
	s := &fakeSleeper{until: t.UTC(), ch: make(chan struct{})}
	c.sleepers = append(c.sleepers, s)
	c.notifyBlockers()
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		c.mu.Lock()
		c.removeSleeper(s)
		c.mu.Unlock()
		return ctx.Err()
	case <-s.ch:
		return nil
	}
}

// Advance moves virtual time forward by d and releases every sleeper whose
// deadline has been reached, earliest first.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)

	due := c.sleepers[:0:0]
	remaining := c.sleepers[:0]
	for _, s := range c.sleepers {
		if !s.until.After(c.now) {
			due = append(due, s)
		} else {
			remaining = append(remaining, s)
		}
	}
	c.sleepers = remaining
	sort.Slice(due, func(i, j int) bool { return due[i].until.Before(due[j].until) })
	for _, s := range due {
		close(s.ch)
	}
}

// BlockUntil waits until at least n goroutines are parked in SleepUntil.
// It lets tests synchronise with the scheduler worker before advancing time.
func (c *FakeClock) BlockUntil(n int) {
	for {
		c.mu.Lock()
		if len(c.sleepers) >= n {
			c.mu.Unlock()
			return
		}
		b := &fakeBlocker{count: n, ch: make(chan struct{})}
		c.blockers = append(c.blockers, b)
		c.mu.Unlock()
		<-b.ch
	}
}

// Sleepers reports how many goroutines are currently parked.
func (c *FakeClock) Sleepers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sleepers)
}

func (c *FakeClock) notifyBlockers() {
	remaining := c.blockers[:0]
	for _, b := range c.blockers {
		if len(c.sleepers) >= b.count {
			close(b.ch)
		} else {
			remaining = append(remaining, b)
		}
	}
	c.blockers = remaining
}

func (c *FakeClock) removeSleeper(target *fakeSleeper) {
	remaining := c.sleepers[:0]
	for _, s := range c.sleepers {
		if s != target {
			remaining = append(remaining, s)
		}
	}
	c.sleepers = remaining
}
