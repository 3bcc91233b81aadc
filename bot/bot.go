package bot

import (
	"log"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"

	"warden-bot/commands"
	"warden-bot/config"
	"warden-bot/model"
	"warden-bot/modlog"
	"warden-bot/reminders"
	"warden-bot/sched"
	"warden-bot/utils/database"
)

type Bot struct {
	Session            *discordgo.Session
	RegisteredCommands []*discordgo.ApplicationCommand
	config             atomic.Value // *model.Config
	CommandHandlers    map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate)

	GuildsDB      *sqlx.DB
	ReminderStore *database.ReminderStore
	CaseStore     *database.CaseStore

	Reminders *reminders.Service
	Modlog    *modlog.Service
	Sink      *sched.Sink

	cron *cron.Cron
	done chan struct{}
}

func (b *Bot) GetConfig() *model.Config {
	return b.config.Load().(*model.Config)
}

func (b *Bot) GetSession() *discordgo.Session {
	return b.Session
}

func New(cfg *model.Config, guildsDB *sqlx.DB, reminderStore *database.ReminderStore, caseStore *database.CaseStore, rem *reminders.Service, ml *modlog.Service, sink *sched.Sink) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildBans | discordgo.IntentsGuildMembers
	dg.StateEnabled = true

	b := &Bot{
		Session:       dg,
		GuildsDB:      guildsDB,
		ReminderStore: reminderStore,
		CaseStore:     caseStore,
		Reminders:     rem,
		Modlog:        ml,
		Sink:          sink,
		done:          make(chan struct{}),
	}
	b.config.Store(cfg)
	return b, nil
}

func (b *Bot) Close() {
	log.Println("Gracefully shutting down.")
	close(b.done)

	if b.cron != nil {
		b.cron.Stop()
	}
	b.Session.Close()
}

// GuildSettings returns the settings for the guild, zero-valued when the
// guild has never been configured.
func (b *Bot) GuildSettings(guildID string) model.GuildSettings {
	gs, ok := b.GetConfig().GuildSettings[guildID]
	if !ok {
		gs.GuildID = guildID
	}
	return gs
}

// UpdateGuildSettings persists the guild's settings and swaps them into the
// running config.
func (b *Bot) UpdateGuildSettings(gs model.GuildSettings) error {
	if err := database.UpsertGuildSettings(b.GuildsDB, gs); err != nil {
		return err
	}
	b.storeGuildSettings(gs)
	return nil
}

func (b *Bot) storeGuildSettings(gs model.GuildSettings) {
	old := b.GetConfig()
	cfg := *old
	cfg.GuildSettings = make(map[string]model.GuildSettings, len(old.GuildSettings)+1)
	for id, s := range old.GuildSettings {
		cfg.GuildSettings[id] = s
	}
	cfg.GuildSettings[gs.GuildID] = gs
	b.config.Store(&cfg)
}

// dropModlogChannel clears the guild's modlog channel after a delivery
// failure so the next case does not hit the same wall.
func (b *Bot) dropModlogChannel(guildID string) {
	if err := database.ClearModlogChannel(b.GuildsDB, guildID); err != nil {
		log.Printf("Error clearing modlog channel for guild %s: %v", guildID, err)
		return
	}
	gs := b.GuildSettings(guildID)
	gs.ModlogChannelID = ""
	b.storeGuildSettings(gs)
}

func (b *Bot) RefreshCommands() {
	cmds := commands.GenerateCommands()
	log.Printf("Registering %d commands...", len(cmds))
	registeredCmds, err := b.Session.ApplicationCommandBulkOverwrite(b.GetConfig().AppID, "", cmds)
	if err != nil {
		log.Printf("cannot update commands: %v", err)
		return
	}
	b.RegisteredCommands = registeredCmds
}

func (b *Bot) ReloadConfig() error {
	log.Println("Reloading configuration...")
	newCfg, err := config.Load()
	if err != nil {
		log.Printf("Error reloading config: %v", err)
		return err
	}

	settings, err := database.LoadGuildSettings(b.GuildsDB)
	if err != nil {
		log.Printf("Error loading guild settings during reload: %v", err)
		return err
	}
	newCfg.GuildSettings = settings

	b.config.Store(newCfg)
	log.Println("Configuration reloaded successfully.")

	b.RefreshCommands()
	return nil
}
