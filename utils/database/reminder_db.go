package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"warden-bot/model"
	"warden-bot/sched"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

// InitRemindersDB opens the reminders database and ensures the table and
// its indexes exist.
func InitRemindersDB(dbPath string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to reminders database: %w", err)
	}

	schema := `
    CREATE TABLE IF NOT EXISTS reminders (
        id INTEGER PRIMARY KEY,
        created_at DATETIME NOT NULL,
        expires_at DATETIME NOT NULL,
        active BOOLEAN NOT NULL DEFAULT 1,
        user_id TEXT NOT NULL,
        channel_id TEXT NOT NULL,
        guild_id TEXT NOT NULL DEFAULT '',
        text TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_reminders_active_expires ON reminders (active, expires_at);
    CREATE INDEX IF NOT EXISTS idx_reminders_user_active ON reminders (user_id, active);`

	if _, err = db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create reminders table: %w", err)
	}

	return db, nil
}

// ReminderStore persists reminders. It implements the scheduler's store
// contract and is safe for concurrent use.
type ReminderStore struct {
	db *sqlx.DB
}

func NewReminderStore(db *sqlx.DB) *ReminderStore {
	return &ReminderStore{db: db}
}

// Insert appends a new reminder. A colliding id yields sched.ErrConflict.
func (s *ReminderStore) Insert(r *model.Reminder) error {
	query := `INSERT INTO reminders (id, created_at, expires_at, active, user_id, channel_id, guild_id, text)
              VALUES (:id, :created_at, :expires_at, :active, :user_id, :channel_id, :guild_id, :text)`
	if _, err := s.db.NamedExec(query, r); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return sched.ErrConflict
		}
		return &sched.TransportError{Op: "insert reminder", Err: err}
	}
	return nil
}

// EarliestActiveBefore returns the active reminder with the smallest
// expires_at not after deadline, ties broken by ascending id. It returns
// (nil, nil) when no reminder qualifies.
func (s *ReminderStore) EarliestActiveBefore(deadline time.Time) (sched.Item, error) {
	var r model.Reminder
	query := `SELECT * FROM reminders WHERE active = 1 AND expires_at <= ?
              ORDER BY expires_at ASC, id ASC LIMIT 1`
	err := s.db.Get(&r, query, deadline.UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &sched.TransportError{Op: "load earliest reminder", Err: err}
	}
	return &r, nil
}

// MarkInactive flips the reminder inactive and reports whether this call
// performed the transition. Marking an already-inactive reminder is a no-op.
func (s *ReminderStore) MarkInactive(id int64) (bool, error) {
	res, err := s.db.Exec(`UPDATE reminders SET active = 0 WHERE id = ? AND active = 1`, id)
	if err != nil {
		return false, &sched.TransportError{Op: "mark reminder inactive", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &sched.TransportError{Op: "mark reminder inactive", Err: err}
	}
	if n > 0 {
		return true, nil
	}

	var count int
	if err := s.db.Get(&count, `SELECT COUNT(*) FROM reminders WHERE id = ?`, id); err != nil {
		return false, &sched.TransportError{Op: "mark reminder inactive", Err: err}
	}
	if count == 0 {
		return false, sched.ErrNotFound
	}
	return false, nil
}

// Get returns the reminder with the given id.
func (s *ReminderStore) Get(id int64) (*model.Reminder, error) {
	var r model.Reminder
	err := s.db.Get(&r, `SELECT * FROM reminders WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sched.ErrNotFound
	}
	if err != nil {
		return nil, &sched.TransportError{Op: "get reminder", Err: err}
	}
	return &r, nil
}

// ListActiveFor returns the user's active reminders ordered by expiry.
func (s *ReminderStore) ListActiveFor(userID string) ([]model.Reminder, error) {
	var out []model.Reminder
	query := `SELECT * FROM reminders WHERE user_id = ? AND active = 1
              ORDER BY expires_at ASC, id ASC`
	if err := s.db.Select(&out, query, userID); err != nil {
		return nil, &sched.TransportError{Op: "list reminders", Err: err}
	}
	return out, nil
}

// CancelAllFor marks all of the user's active reminders inactive and returns
// the number affected.
func (s *ReminderStore) CancelAllFor(userID string) (int64, error) {
	res, err := s.db.Exec(`UPDATE reminders SET active = 0 WHERE user_id = ? AND active = 1`, userID)
	if err != nil {
		return 0, &sched.TransportError{Op: "cancel all reminders", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &sched.TransportError{Op: "cancel all reminders", Err: err}
	}
	return n, nil
}

// PurgeInactiveBefore deletes inactive reminders that expired before cutoff.
func (s *ReminderStore) PurgeInactiveBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM reminders WHERE active = 0 AND expires_at <= ?`, cutoff.UTC())
	if err != nil {
		return 0, &sched.TransportError{Op: "purge reminders", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &sched.TransportError{Op: "purge reminders", Err: err}
	}
	return n, nil
}
