package modlog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"warden-bot/model"
	"warden-bot/sched"
	"warden-bot/utils"
)

// Events published through the sink. The event data is the *model.ModlogCase.
const (
	EventOpened  = "modlog.case.opened"
	EventEdited  = "modlog.case.edited"
	EventExpired = "modlog.case.expired"
)

// Store is the persistence the modlog service needs. CaseStore in
// utils/database implements it.
type Store interface {
	Insert(c *model.ModlogCase) error
	Get(id int64) (*model.ModlogCase, error)
	MarkInactive(id int64) (bool, error)
	EarliestActiveBefore(deadline time.Time) (sched.Item, error)
	UpdateReason(id int64, reason string) error
	ExpireBans(guildID, targetID string) (int64, error)
}

// Options tunes the service. Zero values take the defaults.
type Options struct {
	ShortThreshold time.Duration
	Scheduler      sched.Config
}

// Service wraps the scheduler and store with moderation-case operations.
// Unlike reminders, cases are always persisted; the short path only carries
// the timer, marking the durable row before emitting.
type Service struct {
	store  Store
	clock  sched.Clock
	sink   *sched.Sink
	short  *sched.ShortPath
	worker *sched.Scheduler

	shortThreshold time.Duration

	ctx context.Context
}

func New(store Store, clock sched.Clock, sink *sched.Sink, opt Options) *Service {
	if opt.ShortThreshold <= 0 {
		opt.ShortThreshold = time.Minute
	}
	return &Service{
		store:          store,
		clock:          clock,
		sink:           sink,
		short:          sched.NewShortPath(clock, sink),
		worker:         sched.NewScheduler("modlog", store, clock, sink, EventExpired, opt.Scheduler),
		shortThreshold: opt.ShortThreshold,
	}
}

// Start launches the scheduler worker.
func (s *Service) Start(ctx context.Context) {
	s.ctx = ctx
	s.worker.Start(ctx)
}

// Wait blocks until the worker and all short-path timers have finished.
func (s *Service) Wait() {
	s.worker.Wait()
	s.short.Wait()
}

// NextDeadline reports what the worker is currently waiting on.
func (s *Service) NextDeadline() (int64, time.Time, bool) {
	return s.worker.NextDeadline()
}

// Open records a moderation case and emits case.opened immediately,
// independent of scheduling. A case without an expiry is stored inactive and
// never enters the scheduler.
func (s *Service) Open(guildID string, action model.CaseAction, moderatorID, targetID, reason string, expiresAt *time.Time) (*model.ModlogCase, error) {
	now := s.clock.Now()

	c := &model.ModlogCase{
		ID:        utils.GenerateID(),
		CreatedAt: now,
		GuildID:   guildID,
		Action:    action,
		UserID:    moderatorID,
		TargetID:  targetID,
		Reason:    reason,
	}
	if expiresAt != nil {
		when := expiresAt.UTC()
		if !when.After(now) {
			return nil, &sched.ValidationError{Field: "expiry", Reason: "must be in the future"}
		}
		c.ExpiresAt = sql.NullTime{Time: when, Valid: true}
		c.Active = true
	}

	if err := s.store.Insert(c); err != nil {
		if !errors.Is(err, sched.ErrConflict) {
			return nil, err
		}
		c.ID = utils.GenerateID()
		if err := s.store.Insert(c); err != nil {
			return nil, err
		}
	}

	s.sink.Emit(sched.Event{Type: EventOpened, Time: now, Data: c})

	if c.Active {
		if delta := c.ExpiresAt.Time.Sub(now); delta <= s.shortThreshold {
			s.short.Schedule(s.ctx, EventExpired, c, s.store)
		} else {
			s.worker.Signal(c.ExpiresAt.Time)
		}
	}
	return c, nil
}

// EditReason replaces a case's reason and re-emits it as case.edited.
func (s *Service) EditReason(id int64, reason string) (*model.ModlogCase, error) {
	if err := s.store.UpdateReason(id, reason); err != nil {
		return nil, err
	}
	c, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	s.sink.Emit(sched.Event{Type: EventEdited, Time: s.clock.Now(), Data: c})
	return c, nil
}

// Get returns the case with the given id.
func (s *Service) Get(id int64) (*model.ModlogCase, error) {
	return s.store.Get(id)
}

// Expire marks a case inactive ahead of its deadline and emits case.expired
// so subscribers unwind the action. Expiring an inactive case is ErrNotFound.
func (s *Service) Expire(id int64) error {
	c, err := s.store.Get(id)
	if err != nil {
		return err
	}
	changed, err := s.store.MarkInactive(id)
	if err != nil {
		return err
	}
	if !changed {
		return sched.ErrNotFound
	}
	s.worker.Invalidate(id)

	c.Active = false
	c.Expired = true
	s.sink.Emit(sched.Event{Type: EventExpired, Time: s.clock.Now(), Data: c})
	return nil
}

// HandleUnban expires all active ban cases for the guild/target pair. The
// cancelled cases are not re-emitted; the worker is woken so it drops any
// wait on one of them.
func (s *Service) HandleUnban(guildID, targetID string) (int64, error) {
	n, err := s.store.ExpireBans(guildID, targetID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.worker.Wake()
	}
	return n, nil
}
