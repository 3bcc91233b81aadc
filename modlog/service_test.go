package modlog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"warden-bot/model"
	"warden-bot/sched"
)

var testEpoch = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

type memStore struct {
	mu      sync.Mutex
	rows    map[int64]*model.ModlogCase
	inserts int
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[int64]*model.ModlogCase)}
}

func (m *memStore) Insert(c *model.ModlogCase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[c.ID]; ok {
		return sched.ErrConflict
	}
	cp := *c
	m.rows[c.ID] = &cp
	m.inserts++
	return nil
}

func (m *memStore) Get(id int64) (*model.ModlogCase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return nil, sched.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) MarkInactive(id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return false, sched.ErrNotFound
	}
	if !c.Active {
		return false, nil
	}
	c.Active = false
	c.Expired = true
	return true, nil
}

func (m *memStore) EarliestActiveBefore(deadline time.Time) (sched.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *model.ModlogCase
	for _, c := range m.rows {
		if !c.Active || !c.ExpiresAt.Valid || c.ExpiresAt.Time.After(deadline) {
			continue
		}
		if best == nil || c.ExpiresAt.Time.Before(best.ExpiresAt.Time) ||
			(c.ExpiresAt.Time.Equal(best.ExpiresAt.Time) && c.ID < best.ID) {
			best = c
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (m *memStore) UpdateReason(id int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return sched.ErrNotFound
	}
	c.Reason = reason
	return nil
}

func (m *memStore) ExpireBans(guildID, targetID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, c := range m.rows {
		if c.Active && c.Action == model.ActionBan && c.GuildID == guildID && c.TargetID == targetID {
			c.Active = false
			c.Expired = true
			n++
		}
	}
	return n, nil
}

func (m *memStore) get(id int64) *model.ModlogCase {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.rows[id]
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

type recorder struct {
	mu     sync.Mutex
	events []sched.Event
}

func (r *recorder) handlerFor(s *sched.Sink, types ...string) {
	for _, typ := range types {
		s.Subscribe(typ, func(e sched.Event) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, e)
			return nil
		})
	}
}

func (r *recorder) snapshot() []sched.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sched.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) ofType(typ string) []sched.Event {
	var out []sched.Event
	for _, e := range r.snapshot() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func waitEvents(t *testing.T, r *recorder, typ string, n int) []sched.Event {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if events := r.ofType(typ); len(events) >= n {
			return events
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %s events, got %d", n, typ, len(r.ofType(typ)))
	return nil
}

func waitWaitingOn(t *testing.T, svc *Service, id int64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if got, _, ok := svc.NextDeadline(); ok && got == id {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for scheduler to wait on case %d", id)
}

func setupService(t *testing.T, store Store) (*Service, *sched.FakeClock, *recorder) {
	t.Helper()
	clock := sched.NewFakeClock(testEpoch)
	sink := sched.NewSink()
	rec := &recorder{}
	rec.handlerFor(sink, EventOpened, EventEdited, EventExpired)

	svc := New(store, clock, sink, Options{ShortThreshold: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)
	t.Cleanup(func() {
		cancel()
		svc.Wait()
	})
	return svc, clock, rec
}

func TestOpenWithoutExpiryIsRecordedNotScheduled(t *testing.T) {
	store := newMemStore()
	svc, clock, rec := setupService(t, store)

	c, err := svc.Open("1", model.ActionKick, "100", "99", "spam", nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if c.Active || c.ExpiresAt.Valid {
		t.Fatalf("no-expiry case scheduled: %+v", c)
	}

	opened := waitEvents(t, rec, EventOpened, 1)
	if opened[0].Data.(*model.ModlogCase).ID != c.ID {
		t.Fatal("opened event carries wrong case")
	}

	clock.BlockUntil(1)
	clock.Advance(40 * 24 * time.Hour)
	time.Sleep(20 * time.Millisecond)
	if got := rec.ofType(EventExpired); len(got) != 0 {
		t.Fatal("no-expiry case expired")
	}
}

func TestTimedCaseExpiresAtDeadline(t *testing.T) {
	store := newMemStore()
	svc, clock, rec := setupService(t, store)

	due := testEpoch.Add(time.Hour)
	c, err := svc.Open("1", model.ActionMute, "100", "99", "spam", &due)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	waitEvents(t, rec, EventOpened, 1)
	waitWaitingOn(t, svc, c.ID)

	clock.Advance(time.Hour)
	expired := waitEvents(t, rec, EventExpired, 1)
	got := expired[0].Data.(*model.ModlogCase)
	if got.ID != c.ID || got.Action != model.ActionMute {
		t.Fatalf("expired event = %+v", got)
	}
	row := store.get(c.ID)
	if row.Active || !row.Expired {
		t.Fatalf("store not updated after expiry: %+v", row)
	}
}

func TestShortExpiryMarksStoreBeforeEmit(t *testing.T) {
	store := newMemStore()
	clock := sched.NewFakeClock(testEpoch)
	sink := sched.NewSink()

	activeAtEmit := make(chan bool, 1)
	sink.Subscribe(EventExpired, func(e sched.Event) error {
		row := store.get(e.Data.(sched.Item).ItemID())
		activeAtEmit <- row != nil && row.Active
		return nil
	})

	svc := New(store, clock, sink, Options{ShortThreshold: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)
	t.Cleanup(func() {
		cancel()
		svc.Wait()
	})

	due := testEpoch.Add(30 * time.Second)
	if _, err := svc.Open("1", model.ActionMute, "100", "99", "spam", &due); err != nil {
		t.Fatalf("open: %v", err)
	}

	clock.BlockUntil(2) // parked worker plus the short-path timer
	clock.Advance(30 * time.Second)

	select {
	case active := <-activeAtEmit:
		if active {
			t.Fatal("case still active in store when expiry was emitted")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for short-path expiry")
	}
}

func TestOpenRejectsPastExpiry(t *testing.T) {
	store := newMemStore()
	svc, _, _ := setupService(t, store)

	past := testEpoch.Add(-time.Second)
	_, err := svc.Open("1", model.ActionBan, "100", "99", "spam", &past)
	var verr *sched.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
}

func TestEditReasonEmitsEdited(t *testing.T) {
	store := newMemStore()
	svc, _, rec := setupService(t, store)

	due := testEpoch.Add(time.Hour)
	c, err := svc.Open("1", model.ActionBan, "100", "99", "spam", &due)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	edited, err := svc.EditReason(c.ID, "raiding")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.Reason != "raiding" {
		t.Fatalf("reason = %q, want raiding", edited.Reason)
	}
	events := waitEvents(t, rec, EventEdited, 1)
	if events[0].Data.(*model.ModlogCase).Reason != "raiding" {
		t.Fatal("edited event carries stale reason")
	}

	if _, err := svc.EditReason(42, "x"); !errors.Is(err, sched.ErrNotFound) {
		t.Fatalf("edit missing error = %v, want ErrNotFound", err)
	}
}

func TestExpireUnwindsEarly(t *testing.T) {
	store := newMemStore()
	svc, clock, rec := setupService(t, store)

	due := testEpoch.Add(time.Hour)
	c, err := svc.Open("1", model.ActionMute, "100", "99", "spam", &due)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	waitWaitingOn(t, svc, c.ID)

	if err := svc.Expire(c.ID); err != nil {
		t.Fatalf("expire: %v", err)
	}
	expired := waitEvents(t, rec, EventExpired, 1)
	got := expired[0].Data.(*model.ModlogCase)
	if got.Active || !got.Expired {
		t.Fatalf("expired event payload = %+v", got)
	}

	// Already expired and missing cases both come back as not found.
	if err := svc.Expire(c.ID); !errors.Is(err, sched.ErrNotFound) {
		t.Fatalf("second expire error = %v, want ErrNotFound", err)
	}
	if err := svc.Expire(42); !errors.Is(err, sched.ErrNotFound) {
		t.Fatalf("expire missing error = %v, want ErrNotFound", err)
	}

	// The deadline passing must not re-fire the case.
	clock.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	if got := rec.ofType(EventExpired); len(got) != 1 {
		t.Fatalf("case expired twice: %d events", len(got))
	}
}

func TestUnbanExpiresBanCaseSilently(t *testing.T) {
	store := newMemStore()
	svc, clock, rec := setupService(t, store)

	due := testEpoch.Add(time.Hour)
	ban, err := svc.Open("1", model.ActionBan, "100", "99", "spam", &due)
	if err != nil {
		t.Fatalf("open ban: %v", err)
	}
	mute, err := svc.Open("1", model.ActionMute, "100", "99", "spam", &due)
	if err != nil {
		t.Fatalf("open mute: %v", err)
	}
	waitEvents(t, rec, EventOpened, 2)

	n, err := svc.HandleUnban("1", "99")
	if err != nil {
		t.Fatalf("unban: %v", err)
	}
	if n != 1 {
		t.Fatalf("unban expired %d cases, want 1", n)
	}
	if row := store.get(ban.ID); row.Active {
		t.Fatal("ban case still active after unban")
	}
	if row := store.get(mute.ID); !row.Active {
		t.Fatal("mute case expired by unban")
	}

	// The manual unwind is silent; only the surviving mute fires later.
	waitWaitingOn(t, svc, mute.ID)
	clock.Advance(time.Hour)
	expired := waitEvents(t, rec, EventExpired, 1)
	if expired[0].Data.(*model.ModlogCase).ID != mute.ID {
		t.Fatal("wrong case expired after unban")
	}
	if len(rec.ofType(EventExpired)) != 1 {
		t.Fatal("unban emitted an expiry event")
	}
}
