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

// InitModlogDB opens the moderation-case database and ensures the table and
// its indexes exist.
func InitModlogDB(dbPath string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to modlog database: %w", err)
	}

	schema := `
    CREATE TABLE IF NOT EXISTS modlog_cases (
        id INTEGER PRIMARY KEY,
        created_at DATETIME NOT NULL,
        guild_id TEXT NOT NULL,
        action INTEGER NOT NULL,
        user_id TEXT NOT NULL,
        target_id TEXT NOT NULL,
        reason TEXT NOT NULL DEFAULT '',
        expires_at DATETIME,
        active BOOLEAN NOT NULL DEFAULT 0,
        expired BOOLEAN NOT NULL DEFAULT 0
    );
    CREATE INDEX IF NOT EXISTS idx_cases_active_expires ON modlog_cases (active, expires_at);
    CREATE INDEX IF NOT EXISTS idx_cases_guild ON modlog_cases (guild_id);
    CREATE INDEX IF NOT EXISTS idx_cases_guild_target_active ON modlog_cases (guild_id, target_id, active);`

	if _, err = db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create modlog_cases table: %w", err)
	}

	return db, nil
}

// CaseStore persists moderation cases. It implements the scheduler's store
// contract for cases that carry an expiry.
type CaseStore struct {
	db *sqlx.DB
}

func NewCaseStore(db *sqlx.DB) *CaseStore {
	return &CaseStore{db: db}
}

// Insert appends a new case. A colliding id yields sched.ErrConflict.
func (s *CaseStore) Insert(c *model.ModlogCase) error {
	query := `INSERT INTO modlog_cases (id, created_at, guild_id, action, user_id, target_id, reason, expires_at, active, expired)
              VALUES (:id, :created_at, :guild_id, :action, :user_id, :target_id, :reason, :expires_at, :active, :expired)`
	if _, err := s.db.NamedExec(query, c); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return sched.ErrConflict
		}
		return &sched.TransportError{Op: "insert case", Err: err}
	}
	return nil
}

// EarliestActiveBefore returns the active case with the smallest expires_at
// not after deadline, ties broken by ascending id. Cases without an expiry
// are stored inactive and never show up here.
func (s *CaseStore) EarliestActiveBefore(deadline time.Time) (sched.Item, error) {
	var c model.ModlogCase
	query := `SELECT * FROM modlog_cases WHERE active = 1 AND expires_at IS NOT NULL AND expires_at <= ?
              ORDER BY expires_at ASC, id ASC LIMIT 1`
	err := s.db.Get(&c, query, deadline.UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &sched.TransportError{Op: "load earliest case", Err: err}
	}
	return &c, nil
}

// MarkInactive flips the case inactive, mirroring the legacy expired column,
// and reports whether this call performed the transition.
func (s *CaseStore) MarkInactive(id int64) (bool, error) {
	res, err := s.db.Exec(`UPDATE modlog_cases SET active = 0, expired = 1 WHERE id = ? AND active = 1`, id)
	if err != nil {
		return false, &sched.TransportError{Op: "mark case inactive", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &sched.TransportError{Op: "mark case inactive", Err: err}
	}
	if n > 0 {
		return true, nil
	}

	var count int
	if err := s.db.Get(&count, `SELECT COUNT(*) FROM modlog_cases WHERE id = ?`, id); err != nil {
		return false, &sched.TransportError{Op: "mark case inactive", Err: err}
	}
	if count == 0 {
		return false, sched.ErrNotFound
	}
	return false, nil
}

// Get returns the case with the given id.
func (s *CaseStore) Get(id int64) (*model.ModlogCase, error) {
	var c model.ModlogCase
	err := s.db.Get(&c, `SELECT * FROM modlog_cases WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sched.ErrNotFound
	}
	if err != nil {
		return nil, &sched.TransportError{Op: "get case", Err: err}
	}
	return &c, nil
}

// UpdateReason replaces the case's reason.
func (s *CaseStore) UpdateReason(id int64, reason string) error {
	res, err := s.db.Exec(`UPDATE modlog_cases SET reason = ? WHERE id = ?`, reason, id)
	if err != nil {
		return &sched.TransportError{Op: "update case reason", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &sched.TransportError{Op: "update case reason", Err: err}
	}
	if n == 0 {
		return sched.ErrNotFound
	}
	return nil
}

// ExpireBans marks all active ban cases for the guild/target pair inactive
// and returns the number affected. Called when the platform reports an
// unban, so at most one unexpired ban per pair remains invariant.
func (s *CaseStore) ExpireBans(guildID, targetID string) (int64, error) {
	query := `UPDATE modlog_cases SET active = 0, expired = 1
              WHERE guild_id = ? AND target_id = ? AND action = ? AND active = 1`
	res, err := s.db.Exec(query, guildID, targetID, model.ActionBan)
	if err != nil {
		return 0, &sched.TransportError{Op: "expire bans", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &sched.TransportError{Op: "expire bans", Err: err}
	}
	return n, nil
}

// ActionCount is one row of the per-action case tally.
type ActionCount struct {
	Action model.CaseAction `db:"action"`
	Count  int64            `db:"count"`
}

// CountByActionSince tallies cases opened since the given instant.
func (s *CaseStore) CountByActionSince(since time.Time) ([]ActionCount, error) {
	var out []ActionCount
	query := `SELECT action, COUNT(*) AS count FROM modlog_cases
              WHERE created_at >= ? GROUP BY action ORDER BY action ASC`
	if err := s.db.Select(&out, query, since.UTC()); err != nil {
		return nil, &sched.TransportError{Op: "count cases", Err: err}
	}
	return out, nil
}

// PurgeInactiveBefore deletes inactive cases created before cutoff.
func (s *CaseStore) PurgeInactiveBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM modlog_cases WHERE active = 0 AND created_at <= ?`, cutoff.UTC())
	if err != nil {
		return 0, &sched.TransportError{Op: "purge cases", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &sched.TransportError{Op: "purge cases", Err: err}
	}
	return n, nil
}
