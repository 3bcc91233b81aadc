package config

import (
	"log"
	"os"
	"strings"
	"time"

	"warden-bot/model"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load loads the configuration from environment variables and config.yaml.
// Secrets come from the environment (optionally via a .env file); the
// scheduler tunables and maintenance schedules come from viper with defaults
// matching the engine's.
func Load() (*model.Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: .env file not found, relying on environment variables")
	}

	token := os.Getenv("BOT_TOKEN")
	if token == "" {
		log.Fatal("Error: BOT_TOKEN environment variable not set")
	}

	appID := os.Getenv("APP_ID")
	if appID == "" {
		log.Fatal("Error: APP_ID environment variable not set")
	}

	logChannelID := os.Getenv("LOG_CHANNEL_ID")
	if logChannelID == "" {
		log.Println("Warning: LOG_CHANNEL_ID not set, channel logging will be disabled")
	}

	cfg := &model.Config{
		BotToken:          token,
		AppID:             appID,
		LogChannelID:      logChannelID,
		DeveloperUserIDs:  splitIDs(os.Getenv("DEVELOPER_USER_IDS")),
		SuperAdminRoleIDs: splitIDs(os.Getenv("SUPER_ADMIN_ROLE_IDS")),
		GuildSettings:     make(map[string]model.GuildSettings),
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("data")

	v.SetDefault("data_dir", "data")
	v.SetDefault("scheduler.short_threshold", time.Minute)
	v.SetDefault("scheduler.horizon", 40*24*time.Hour)
	v.SetDefault("scheduler.max_reminder_horizon", 5*365*24*time.Hour)
	v.SetDefault("scheduler.backoff_max", 30*time.Second)
	v.SetDefault("maintenance.purge_retention", 90*24*time.Hour)
	v.SetDefault("maintenance.purge_schedule", "0 5 * * *")
	v.SetDefault("maintenance.report_schedule", "0 21 * * *")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		log.Println("Warning: config.yaml not found, using defaults")
	}

	cfg.DataDir = v.GetString("data_dir")
	cfg.Tuning = model.TuningConfig{
		ShortThreshold:     v.GetDuration("scheduler.short_threshold"),
		Horizon:            v.GetDuration("scheduler.horizon"),
		MaxReminderHorizon: v.GetDuration("scheduler.max_reminder_horizon"),
		BackoffMax:         v.GetDuration("scheduler.backoff_max"),
		PurgeRetention:     v.GetDuration("maintenance.purge_retention"),
		PurgeSchedule:      v.GetString("maintenance.purge_schedule"),
		ReportSchedule:     v.GetString("maintenance.report_schedule"),
	}

	return cfg, nil
}

func splitIDs(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
