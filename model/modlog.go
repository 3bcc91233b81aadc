package model

import (
	"database/sql"
	"time"
)

// CaseAction enumerates the moderation actions recorded in the modlog.
type CaseAction int8

const (
	ActionKick CaseAction = iota
	ActionBan
	ActionUnban
	ActionBulkDelete
	ActionMute
	ActionUnmute
)

func (a CaseAction) String() string {
	switch a {
	case ActionKick:
		return "kick"
	case ActionBan:
		return "ban"
	case ActionUnban:
		return "unban"
	case ActionBulkDelete:
		return "bulk_delete"
	case ActionMute:
		return "mute"
	case ActionUnmute:
		return "unmute"
	}
	return "unknown"
}

// ModlogCase is a moderation case row in the modlog_cases table. UserID is
// the moderator, TargetID the subject. ExpiresAt is null for actions with no
// natural expiry; such cases are stored inactive and never scheduled.
//
// Expired mirrors the inverse of Active. It is written for external readers
// of the table and never read back by the bot.
type ModlogCase struct {
	ID        int64        `db:"id"`
	CreatedAt time.Time    `db:"created_at"`
	GuildID   string       `db:"guild_id"`
	Action    CaseAction   `db:"action"`
	UserID    string       `db:"user_id"`
	TargetID  string       `db:"target_id"`
	Reason    string       `db:"reason"`
	ExpiresAt sql.NullTime `db:"expires_at"`
	Active    bool         `db:"active"`
	Expired   bool         `db:"expired"`
}

func (c *ModlogCase) ItemID() int64 {
	return c.ID
}

func (c *ModlogCase) Deadline() time.Time {
	return c.ExpiresAt.Time
}
