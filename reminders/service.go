package reminders

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"warden-bot/model"
	"warden-bot/sched"
	"warden-bot/utils"
)

// EventFire is emitted through the sink when a reminder comes due. The event
// data is the *model.Reminder.
const EventFire = "reminder.fire"

// MaxTextLength bounds the reminder text after trimming.
const MaxTextLength = 2000

// Store is the persistence the reminder service needs. ReminderStore in
// utils/database implements it.
type Store interface {
	Insert(r *model.Reminder) error
	Get(id int64) (*model.Reminder, error)
	MarkInactive(id int64) (bool, error)
	EarliestActiveBefore(deadline time.Time) (sched.Item, error)
	ListActiveFor(userID string) ([]model.Reminder, error)
	CancelAllFor(userID string) (int64, error)
}

// Options tunes the service. Zero values take the defaults.
type Options struct {
	ShortThreshold time.Duration
	MaxHorizon     time.Duration
	Scheduler      sched.Config
}

// Service wraps the scheduler and store with the user-facing reminder
// operations. Reminders due within the short threshold never touch the
// store: the user just issued the command and losing one on crash is
// acceptable.
type Service struct {
	store  Store
	clock  sched.Clock
	sink   *sched.Sink
	short  *sched.ShortPath
	worker *sched.Scheduler

	shortThreshold time.Duration
	maxHorizon     time.Duration

	ctx context.Context
}

func New(store Store, clock sched.Clock, sink *sched.Sink, opt Options) *Service {
	if opt.ShortThreshold <= 0 {
		opt.ShortThreshold = time.Minute
	}
	if opt.MaxHorizon <= 0 {
		opt.MaxHorizon = 5 * 365 * 24 * time.Hour
	}
	return &Service{
		store:          store,
		clock:          clock,
		sink:           sink,
		short:          sched.NewShortPath(clock, sink),
		worker:         sched.NewScheduler("reminders", store, clock, sink, EventFire, opt.Scheduler),
		shortThreshold: opt.ShortThreshold,
		maxHorizon:     opt.MaxHorizon,
	}
}

// Start launches the scheduler worker. Persisted reminders, including any
// already past due after a restart, load and fire from here.
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

// Create validates and schedules a reminder. Short deadlines fire from
// process memory; everything else is persisted before the scheduler is
// signalled.
func (s *Service) Create(userID, channelID, guildID, text string, when time.Time) (*model.Reminder, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &sched.ValidationError{Field: "text", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return nil, &sched.ValidationError{Field: "text", Reason: "must be at most 2000 characters"}
	}

	now := s.clock.Now()
	when = when.UTC()
	if !when.After(now) {
		return nil, &sched.ValidationError{Field: "time", Reason: "must be in the future"}
	}
	if when.Sub(now) > s.maxHorizon {
		return nil, &sched.ValidationError{Field: "time", Reason: "is too far in the future"}
	}

	r := &model.Reminder{
		ID:        utils.GenerateID(),
		CreatedAt: now,
		ExpiresAt: when,
		Active:    true,
		UserID:    userID,
		ChannelID: channelID,
		GuildID:   guildID,
		Text:      text,
	}

	if when.Sub(now) <= s.shortThreshold {
		s.short.Schedule(s.ctx, EventFire, r, nil)
		return r, nil
	}

	if err := s.store.Insert(r); err != nil {
		if !errors.Is(err, sched.ErrConflict) {
			return nil, err
		}
		r.ID = utils.GenerateID()
		if err := s.store.Insert(r); err != nil {
			return nil, err
		}
	}
	s.worker.Signal(r.ExpiresAt)
	return r, nil
}

// List returns the user's active reminders ordered by expiry.
func (s *Service) List(userID string) ([]model.Reminder, error) {
	return s.store.ListActiveFor(userID)
}

// Cancel marks the reminder inactive. Only the owner may cancel; anything
// else, including an already-fired reminder, comes back as ErrNotFound.
func (s *Service) Cancel(userID string, id int64) error {
	r, err := s.store.Get(id)
	if err != nil {
		return err
	}
	if r.UserID != userID {
		return sched.ErrNotFound
	}
	changed, err := s.store.MarkInactive(id)
	if err != nil {
		return err
	}
	if !changed {
		return sched.ErrNotFound
	}
	s.worker.Invalidate(id)
	return nil
}

// CancelAll marks all of the user's active reminders inactive and returns
// the number affected.
func (s *Service) CancelAll(userID string) (int64, error) {
	n, err := s.store.CancelAllFor(userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.worker.Wake()
	}
	return n, nil
}
