package main

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"warden-bot/bot"
	"warden-bot/config"
	"warden-bot/handlers"
	"warden-bot/modlog"
	"warden-bot/reminders"
	"warden-bot/sched"
	"warden-bot/utils/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	if err := os.MkdirAll(cfg.DataDir, os.ModePerm); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	guildsDB, err := database.InitGuildsDB(filepath.Join(cfg.DataDir, "guilds.db"))
	if err != nil {
		log.Fatalf("Error initializing guilds database: %v", err)
	}
	remindersDB, err := database.InitRemindersDB(filepath.Join(cfg.DataDir, "reminders.db"))
	if err != nil {
		log.Fatalf("Error initializing reminders database: %v", err)
	}
	modlogDB, err := database.InitModlogDB(filepath.Join(cfg.DataDir, "modlog.db"))
	if err != nil {
		log.Fatalf("Error initializing modlog database: %v", err)
	}

	settings, err := database.LoadGuildSettings(guildsDB)
	if err != nil {
		log.Fatalf("Error loading guild settings: %v", err)
	}
	cfg.GuildSettings = settings

	reminderStore := database.NewReminderStore(remindersDB)
	caseStore := database.NewCaseStore(modlogDB)

	clock := sched.NewClock()
	sink := sched.NewSink()

	schedCfg := sched.Config{
		Horizon:    cfg.Tuning.Horizon,
		BackoffMax: cfg.Tuning.BackoffMax,
	}
	rem := reminders.New(reminderStore, clock, sink, reminders.Options{
		ShortThreshold: cfg.Tuning.ShortThreshold,
		MaxHorizon:     cfg.Tuning.MaxReminderHorizon,
		Scheduler:      schedCfg,
	})
	ml := modlog.New(caseStore, clock, sink, modlog.Options{
		ShortThreshold: cfg.Tuning.ShortThreshold,
		Scheduler:      schedCfg,
	})

	b, err := bot.New(cfg, guildsDB, reminderStore, caseStore, rem, ml, sink)
	if err != nil {
		log.Fatalf("Error creating bot: %v", err)
	}

	handlers.Register(b)

	ctx, cancel := context.WithCancel(context.Background())
	rem.Start(ctx)
	ml.Start(ctx)

	b.Run()

	cancel()
	rem.Wait()
	ml.Wait()
	b.Close()
}
