package bot

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"

	"warden-bot/model"
	"warden-bot/modlog"
	"warden-bot/reminders"
	"warden-bot/sched"
	"warden-bot/utils"
)

// RegisterNotifiers wires the engine's events to Discord deliveries.
func (b *Bot) RegisterNotifiers() {
	b.Sink.Subscribe(reminders.EventFire, b.deliverReminder)
	b.Sink.Subscribe(modlog.EventOpened, func(e sched.Event) error {
		return b.postCase("Case Opened", e.Data.(*model.ModlogCase))
	})
	b.Sink.Subscribe(modlog.EventEdited, func(e sched.Event) error {
		return b.postCase("Case Updated", e.Data.(*model.ModlogCase))
	})
	b.Sink.Subscribe(modlog.EventExpired, func(e sched.Event) error {
		c := e.Data.(*model.ModlogCase)
		b.unwindCase(c)
		return b.postCase("Case Expired", c)
	})
}

func (b *Bot) deliverReminder(e sched.Event) error {
	r := e.Data.(*model.Reminder)

	content := fmt.Sprintf("⏰ <@%s> Reminder: %s", r.UserID, r.Text)
	if r.ChannelID == "" {
		if err := utils.SendPrivateMessage(b.Session, r.UserID, content); err != nil {
			log.Printf("Error delivering reminder %d: %v", r.ID, err)
			return err
		}
		return nil
	}

	if _, err := b.Session.ChannelMessageSend(r.ChannelID, content); err != nil {
		if isChannelGone(err) {
			// The channel disappeared since the reminder was set. Nothing
			// sensible left to do with it.
			log.Printf("Dropping reminder %d: channel %s is gone", r.ID, r.ChannelID)
			return nil
		}
		log.Printf("Error delivering reminder %d: %v", r.ID, err)
		return err
	}
	return nil
}

// unwindCase reverses the Discord-side action of a timed case once it
// expires. Failures are logged and otherwise ignored; a moderator may
// already have undone the action by hand.
func (b *Bot) unwindCase(c *model.ModlogCase) {
	switch c.Action {
	case model.ActionBan:
		if err := b.Session.GuildBanDelete(c.GuildID, c.TargetID); err != nil {
			log.Printf("Error lifting ban for case %d: %v", c.ID, err)
		}
	case model.ActionMute:
		gs := b.GuildSettings(c.GuildID)
		if gs.MutedRoleID == "" {
			log.Printf("Cannot unmute for case %d: guild %s has no muted role configured", c.ID, c.GuildID)
			return
		}
		if err := b.Session.GuildMemberRoleRemove(c.GuildID, c.TargetID, gs.MutedRoleID); err != nil {
			log.Printf("Error unmuting for case %d: %v", c.ID, err)
		}
	}
}

func (b *Bot) postCase(title string, c *model.ModlogCase) error {
	gs := b.GuildSettings(c.GuildID)
	if gs.ModlogChannelID == "" {
		return nil
	}

	_, err := b.Session.ChannelMessageSendEmbed(gs.ModlogChannelID, caseEmbed(title, c))
	if err != nil {
		if isChannelGone(err) {
			log.Printf("Modlog channel %s for guild %s is gone, clearing it", gs.ModlogChannelID, c.GuildID)
			b.dropModlogChannel(c.GuildID)
			return nil
		}
		log.Printf("Error posting case %d to modlog: %v", c.ID, err)
		return err
	}
	return nil
}

func caseEmbed(title string, c *model.ModlogCase) *discordgo.MessageEmbed {
	colors := map[model.CaseAction]int{
		model.ActionBan:        0xED4245,
		model.ActionUnban:      0x57F287,
		model.ActionMute:       0xFEE75C,
		model.ActionUnmute:     0x57F287,
		model.ActionKick:       0xE67E22,
		model.ActionBulkDelete: 0x95A5A6,
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Action", Value: c.Action.String(), Inline: true},
		{Name: "Target", Value: fmt.Sprintf("<@%s>", c.TargetID), Inline: true},
		{Name: "Moderator", Value: fmt.Sprintf("<@%s>", c.UserID), Inline: true},
		{Name: "Reason", Value: c.Reason},
	}
	if c.ExpiresAt.Valid {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   "Expires",
			Value:  fmt.Sprintf("<t:%d:R>", c.ExpiresAt.Time.Unix()),
			Inline: true,
		})
	}

	return &discordgo.MessageEmbed{
		Title:  fmt.Sprintf("%s · #%d", title, c.ID),
		Color:  colors[c.Action],
		Fields: fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Case %d", c.ID),
		},
		Timestamp: c.CreatedAt.Format(time.RFC3339),
	}
}

func isChannelGone(err error) bool {
	var rerr *discordgo.RESTError
	if !errors.As(err, &rerr) || rerr.Message == nil {
		return false
	}
	switch rerr.Message.Code {
	case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeMissingAccess, discordgo.ErrCodeMissingPermissions:
		return true
	}
	return false
}
