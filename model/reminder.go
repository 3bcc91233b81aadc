package model

import "time"

// Reminder is a user-created reminder row in the reminders table. GuildID is
// empty for reminders created in direct messages.
type Reminder struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
	Active    bool      `db:"active"`
	UserID    string    `db:"user_id"`
	ChannelID string    `db:"channel_id"`
	GuildID   string    `db:"guild_id"`
	Text      string    `db:"text"`
}

func (r *Reminder) ItemID() int64 {
	return r.ID
}

func (r *Reminder) Deadline() time.Time {
	return r.ExpiresAt
}
