package bot

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"warden-bot/utils"
)

// StartMaintenance schedules the daily purge and activity report.
func (b *Bot) StartMaintenance() error {
	cfg := b.GetConfig()
	c := cron.New()

	if _, err := c.AddFunc(cfg.Tuning.PurgeSchedule, b.purgeExpiredRows); err != nil {
		return fmt.Errorf("failed to schedule purge job: %w", err)
	}
	if _, err := c.AddFunc(cfg.Tuning.ReportSchedule, b.reportDailyActivity); err != nil {
		return fmt.Errorf("failed to schedule report job: %w", err)
	}

	c.Start()
	b.cron = c
	return nil
}

func (b *Bot) purgeExpiredRows() {
	cutoff := time.Now().UTC().Add(-b.GetConfig().Tuning.PurgeRetention)

	nReminders, err := b.ReminderStore.PurgeInactiveBefore(cutoff)
	if err != nil {
		log.Printf("Error purging reminders: %v", err)
	}
	nCases, err := b.CaseStore.PurgeInactiveBefore(cutoff)
	if err != nil {
		log.Printf("Error purging modlog cases: %v", err)
	}

	log.Printf("Purged %d reminders and %d cases older than %s", nReminders, nCases, cutoff.Format(time.DateOnly))
}

func (b *Bot) reportDailyActivity() {
	cfg := b.GetConfig()
	if cfg.LogChannelID == "" {
		return
	}

	counts, err := b.CaseStore.CountByActionSince(time.Now().UTC().Add(-24 * time.Hour))
	if err != nil {
		log.Printf("Error building daily report: %v", err)
		return
	}
	if len(counts) == 0 {
		return
	}

	var sb strings.Builder
	for _, c := range counts {
		fmt.Fprintf(&sb, "%s: %d\n", c.Action.String(), c.Count)
	}
	utils.LogInfo(b.Session, cfg.LogChannelID, "Maintenance", "Daily Report", sb.String())
}
