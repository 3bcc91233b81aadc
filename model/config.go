package model

import "time"

// GuildSettings is the per-guild configuration held in the guilds database.
// An empty ModlogChannelID suppresses modlog posting for the guild.
type GuildSettings struct {
	GuildID         string
	Name            string
	AdminRoleIDs    []string
	ModlogChannelID string
	MutedRoleID     string
}

// TuningConfig carries the timed-event engine tunables from config.yaml.
type TuningConfig struct {
	ShortThreshold     time.Duration
	Horizon            time.Duration
	MaxReminderHorizon time.Duration
	BackoffMax         time.Duration
	PurgeRetention     time.Duration
	PurgeSchedule      string
	ReportSchedule     string
}

// Config stores the application configuration.
type Config struct {
	BotToken          string
	AppID             string
	LogChannelID      string
	DeveloperUserIDs  []string
	SuperAdminRoleIDs []string
	DataDir           string
	Tuning            TuningConfig
	GuildSettings     map[string]GuildSettings
}
