package handlers

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"warden-bot/bot"
	"warden-bot/sched"
	"warden-bot/utils"
)

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func HandleRemindInteraction(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	sub := i.ApplicationCommandData().Options[0]
	switch sub.Name {
	case "set":
		handleRemindSet(s, i, b, sub.Options)
	case "list":
		handleRemindList(s, i, b)
	case "cancel":
		handleRemindCancel(s, i, b, sub.Options)
	case "clear":
		handleRemindClear(s, i, b)
	}
}

func handleRemindSet(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot, opts []*discordgo.ApplicationCommandInteractionDataOption) {
	var in, text string
	for _, opt := range opts {
		switch opt.Name {
		case "in":
			in = opt.StringValue()
		case "text":
			text = opt.StringValue()
		}
	}

	d, err := utils.ParseDuration(in)
	if err != nil || d <= 0 {
		utils.SendErrorResponse(s, i, fmt.Sprintf("Could not parse `%s` as a duration. Try something like `10m`, `2h30m` or `3d`.", in))
		return
	}

	r, err := b.Reminders.Create(interactionUserID(i), i.ChannelID, i.GuildID, text, time.Now().UTC().Add(d))
	if err != nil {
		var verr *sched.ValidationError
		if errors.As(err, &verr) {
			utils.SendErrorResponse(s, i, fmt.Sprintf("The %s %s.", verr.Field, verr.Reason))
			return
		}
		log.Printf("Error creating reminder: %v", err)
		utils.SendErrorResponse(s, i, "Could not save your reminder, please try again.")
		return
	}

	utils.SendSimpleResponse(s, i, fmt.Sprintf("⏰ I'll remind you <t:%d:R> (ID `%d`).", r.ExpiresAt.Unix(), r.ID))
}

func handleRemindList(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	list, err := b.Reminders.List(interactionUserID(i))
	if err != nil {
		log.Printf("Error listing reminders: %v", err)
		utils.SendErrorResponse(s, i, "Could not load your reminders.")
		return
	}
	if len(list) == 0 {
		utils.SendSimpleResponse(s, i, "You have no pending reminders.")
		return
	}

	var sb strings.Builder
	for _, r := range list {
		text := r.Text
		if len(text) > 80 {
			text = text[:80] + "…"
		}
		fmt.Fprintf(&sb, "`%d` · <t:%d:R> · %s\n", r.ID, r.ExpiresAt.Unix(), text)
	}
	utils.SendSimpleResponse(s, i, sb.String())
}

func handleRemindCancel(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot, opts []*discordgo.ApplicationCommandInteractionDataOption) {
	id, err := strconv.ParseInt(opts[0].StringValue(), 10, 64)
	if err != nil {
		utils.SendErrorResponse(s, i, "That is not a valid reminder ID.")
		return
	}

	if err := b.Reminders.Cancel(interactionUserID(i), id); err != nil {
		if errors.Is(err, sched.ErrNotFound) {
			utils.SendErrorResponse(s, i, "No pending reminder of yours has that ID.")
			return
		}
		log.Printf("Error cancelling reminder %d: %v", id, err)
		utils.SendErrorResponse(s, i, "Could not cancel the reminder, please try again.")
		return
	}
	utils.SendSimpleResponse(s, i, fmt.Sprintf("Reminder `%d` cancelled.", id))
}

func handleRemindClear(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	n, err := b.Reminders.CancelAll(interactionUserID(i))
	if err != nil {
		log.Printf("Error clearing reminders: %v", err)
		utils.SendErrorResponse(s, i, "Could not clear your reminders, please try again.")
		return
	}
	utils.SendSimpleResponse(s, i, fmt.Sprintf("Cancelled %d reminder(s).", n))
}
