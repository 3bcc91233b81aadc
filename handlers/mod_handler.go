package handlers

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"warden-bot/bot"
	"warden-bot/model"
	"warden-bot/sched"
	"warden-bot/utils"
)

func HandleModInteraction(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	sub := i.ApplicationCommandData().Options[0]

	var target *discordgo.User
	var reason, duration string
	for _, opt := range sub.Options {
		switch opt.Name {
		case "user":
			target = opt.UserValue(s)
		case "reason":
			reason = opt.StringValue()
		case "duration":
			duration = opt.StringValue()
		}
	}
	if target == nil {
		utils.SendErrorResponse(s, i, "Could not resolve the target user.")
		return
	}

	moderatorID := interactionUserID(i)
	if moderatorID == target.ID {
		utils.SendErrorResponse(s, i, "You cannot moderate yourself.")
		return
	}
	if !utils.CheckAndSetModActionLock(moderatorID, target.ID) {
		utils.SendErrorResponse(s, i, "An action against this user is already in progress.")
		return
	}

	var expiresAt *time.Time
	if duration != "" {
		d, err := utils.ParseDuration(duration)
		if err != nil || d <= 0 {
			utils.SendErrorResponse(s, i, fmt.Sprintf("Could not parse `%s` as a duration.", duration))
			return
		}
		t := time.Now().UTC().Add(d)
		expiresAt = &t
	}

	var action model.CaseAction
	var err error
	switch sub.Name {
	case "ban":
		action = model.ActionBan
		err = s.GuildBanCreateWithReason(i.GuildID, target.ID, reason, 0)
	case "mute":
		action = model.ActionMute
		if expiresAt == nil {
			utils.SendErrorResponse(s, i, "A mute needs a duration.")
			return
		}
		gs := b.GuildSettings(i.GuildID)
		if gs.MutedRoleID == "" {
			utils.SendErrorResponse(s, i, "This guild has no muted role configured.")
			return
		}
		err = s.GuildMemberRoleAdd(i.GuildID, target.ID, gs.MutedRoleID)
	case "kick":
		action = model.ActionKick
		err = s.GuildMemberDeleteWithReason(i.GuildID, target.ID, reason)
	default:
		return
	}
	if err != nil {
		log.Printf("Error executing %s against %s: %v", sub.Name, target.ID, err)
		utils.SendErrorResponse(s, i, fmt.Sprintf("Discord refused the %s: %v", sub.Name, err))
		return
	}

	c, err := b.Modlog.Open(i.GuildID, action, moderatorID, target.ID, reason, expiresAt)
	if err != nil {
		log.Printf("Error recording %s case against %s: %v", sub.Name, target.ID, err)
		utils.SendErrorResponse(s, i, "The action went through but recording the case failed.")
		return
	}

	msg := fmt.Sprintf("%s <@%s> · case `%d`", actionPastTense(action), target.ID, c.ID)
	if c.ExpiresAt.Valid {
		msg += fmt.Sprintf(" · expires <t:%d:R>", c.ExpiresAt.Time.Unix())
	}
	utils.SendPublicResponse(s, i, msg)
}

func actionPastTense(a model.CaseAction) string {
	switch a {
	case model.ActionBan:
		return "Banned"
	case model.ActionMute:
		return "Muted"
	case model.ActionKick:
		return "Kicked"
	default:
		return a.String()
	}
}

func HandleCaseInteraction(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	sub := i.ApplicationCommandData().Options[0]

	var idStr, reason string
	for _, opt := range sub.Options {
		switch opt.Name {
		case "id":
			idStr = opt.StringValue()
		case "reason":
			reason = opt.StringValue()
		}
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		utils.SendErrorResponse(s, i, "That is not a valid case ID.")
		return
	}

	switch sub.Name {
	case "view":
		c, err := b.Modlog.Get(id)
		if err != nil {
			utils.SendErrorResponse(s, i, "No case has that ID.")
			return
		}
		if c.GuildID != i.GuildID {
			utils.SendErrorResponse(s, i, "No case has that ID.")
			return
		}
		utils.SendEmbedResponse(s, i, caseDetailEmbed(c))
	case "reason":
		c, err := b.Modlog.Get(id)
		if err != nil || c.GuildID != i.GuildID {
			utils.SendErrorResponse(s, i, "No case has that ID.")
			return
		}
		if _, err := b.Modlog.EditReason(id, reason); err != nil {
			log.Printf("Error editing reason of case %d: %v", id, err)
			utils.SendErrorResponse(s, i, "Could not update the case, please try again.")
			return
		}
		utils.SendSimpleResponse(s, i, fmt.Sprintf("Case `%d` updated.", id))
	case "expire":
		c, err := b.Modlog.Get(id)
		if err != nil || c.GuildID != i.GuildID {
			utils.SendErrorResponse(s, i, "No case has that ID.")
			return
		}
		if err := b.Modlog.Expire(id); err != nil {
			if errors.Is(err, sched.ErrNotFound) {
				utils.SendErrorResponse(s, i, "That case is not active.")
				return
			}
			log.Printf("Error expiring case %d: %v", id, err)
			utils.SendErrorResponse(s, i, "Could not expire the case, please try again.")
			return
		}
		utils.SendSimpleResponse(s, i, fmt.Sprintf("Case `%d` expired.", id))
	}
}

func caseDetailEmbed(c *model.ModlogCase) *discordgo.MessageEmbed {
	status := "active"
	if !c.Active {
		status = "closed"
		if c.Expired {
			status = "expired"
		}
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Action", Value: c.Action.String(), Inline: true},
		{Name: "Status", Value: status, Inline: true},
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
		Title:     fmt.Sprintf("Case %d", c.ID),
		Color:     0x5865F2,
		Fields:    fields,
		Timestamp: c.CreatedAt.Format(time.RFC3339),
	}
}

func HandleModlogInteraction(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	sub := i.ApplicationCommandData().Options[0]
	gs := b.GuildSettings(i.GuildID)

	switch sub.Name {
	case "set":
		ch := sub.Options[0].ChannelValue(s)
		if ch == nil {
			utils.SendErrorResponse(s, i, "Could not resolve that channel.")
			return
		}
		gs.ModlogChannelID = ch.ID
		if err := b.UpdateGuildSettings(gs); err != nil {
			log.Printf("Error saving modlog channel for guild %s: %v", i.GuildID, err)
			utils.SendErrorResponse(s, i, "Could not save the setting, please try again.")
			return
		}
		utils.SendSimpleResponse(s, i, fmt.Sprintf("Modlog cases will be posted to <#%s>.", ch.ID))
	case "clear":
		gs.ModlogChannelID = ""
		if err := b.UpdateGuildSettings(gs); err != nil {
			log.Printf("Error clearing modlog channel for guild %s: %v", i.GuildID, err)
			utils.SendErrorResponse(s, i, "Could not save the setting, please try again.")
			return
		}
		utils.SendSimpleResponse(s, i, "Modlog posting disabled.")
	}
}
