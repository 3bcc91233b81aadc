package database

import (
	"fmt"
	"strings"

	"warden-bot/model"

	"github.com/jmoiron/sqlx"
)

// InitGuildsDB opens the guild settings database and ensures the table
// exists.
func InitGuildsDB(dbPath string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to guilds database: %w", err)
	}

	schema := `
    CREATE TABLE IF NOT EXISTS guild_settings (
        guild_id TEXT NOT NULL PRIMARY KEY,
        name TEXT NOT NULL DEFAULT '',
        admin_role_ids TEXT NOT NULL DEFAULT '',
        modlog_channel_id TEXT NOT NULL DEFAULT '',
        muted_role_id TEXT NOT NULL DEFAULT ''
    );`

	if _, err = db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create guild_settings table: %w", err)
	}

	return db, nil
}

// LoadGuildSettings loads every guild's settings keyed by guild id.
func LoadGuildSettings(db *sqlx.DB) (map[string]model.GuildSettings, error) {
	rows, err := db.Query(`SELECT guild_id, name, admin_role_ids, modlog_channel_id, muted_role_id FROM guild_settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]model.GuildSettings)
	for rows.Next() {
		var gs model.GuildSettings
		var adminRoles string
		if err := rows.Scan(&gs.GuildID, &gs.Name, &adminRoles, &gs.ModlogChannelID, &gs.MutedRoleID); err != nil {
			return nil, err
		}
		if adminRoles != "" {
			gs.AdminRoleIDs = strings.Split(adminRoles, ",")
		}
		out[gs.GuildID] = gs
	}
	return out, rows.Err()
}

// UpsertGuildSettings writes the guild's settings row.
func UpsertGuildSettings(db *sqlx.DB, gs model.GuildSettings) error {
	query := `INSERT INTO guild_settings (guild_id, name, admin_role_ids, modlog_channel_id, muted_role_id)
              VALUES (?, ?, ?, ?, ?)
              ON CONFLICT(guild_id) DO UPDATE SET
                  name = excluded.name,
                  admin_role_ids = excluded.admin_role_ids,
                  modlog_channel_id = excluded.modlog_channel_id,
                  muted_role_id = excluded.muted_role_id`
	_, err := db.Exec(query, gs.GuildID, gs.Name, strings.Join(gs.AdminRoleIDs, ","), gs.ModlogChannelID, gs.MutedRoleID)
	return err
}

// SetModlogChannel points the guild's modlog at the given channel.
func SetModlogChannel(db *sqlx.DB, guildID, channelID string) error {
	query := `INSERT INTO guild_settings (guild_id, modlog_channel_id) VALUES (?, ?)
              ON CONFLICT(guild_id) DO UPDATE SET modlog_channel_id = excluded.modlog_channel_id`
	_, err := db.Exec(query, guildID, channelID)
	return err
}

// ClearModlogChannel removes the guild's modlog channel configuration.
// Posting stays suppressed until an admin reconfigures it.
func ClearModlogChannel(db *sqlx.DB, guildID string) error {
	_, err := db.Exec(`UPDATE guild_settings SET modlog_channel_id = '' WHERE guild_id = ?`, guildID)
	return err
}
