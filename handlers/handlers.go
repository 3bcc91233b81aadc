package handlers

import (
	"log"

	"github.com/bwmarrin/discordgo"

	"warden-bot/bot"
	"warden-bot/utils"
)

func Register(b *bot.Bot) {
	b.CommandHandlers = commandHandlers(b)
	addHandlers(b)
}

func commandHandlers(b *bot.Bot) map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate) {
	return map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate){
		"remind": func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			HandleRemindInteraction(s, i, b)
		},
		"mod": func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			if !requireModerator(s, i, b) {
				return
			}
			HandleModInteraction(s, i, b)
		},
		"case": func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			if !requireModerator(s, i, b) {
				return
			}
			HandleCaseInteraction(s, i, b)
		},
		"modlog": func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			if !requireModerator(s, i, b) {
				return
			}
			HandleModlogInteraction(s, i, b)
		},
		"status": func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			SystemInfoHandler(s, i, b)
		},
		"reload": func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			if permissionLevel(i, b) != utils.DeveloperPermission {
				utils.SendErrorResponse(s, i, "You do not have permission to use this command.")
				return
			}
			HandleReloadInteraction(s, i, b)
		},
	}
}

func addHandlers(b *bot.Bot) {
	b.Session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Printf("Logged in as: %v#%v", s.State.User.Username, s.State.User.Discriminator)
	})
	b.Session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type != discordgo.InteractionApplicationCommand {
			return
		}
		if h, ok := b.CommandHandlers[i.ApplicationCommandData().Name]; ok {
			h(s, i)
		}
	})
	b.Session.AddHandler(func(s *discordgo.Session, e *discordgo.GuildBanRemove) {
		n, err := b.Modlog.HandleUnban(e.GuildID, e.User.ID)
		if err != nil {
			log.Printf("Error expiring ban cases after unban of %s in guild %s: %v", e.User.ID, e.GuildID, err)
			return
		}
		if n > 0 {
			log.Printf("Unban of %s in guild %s closed %d ban case(s)", e.User.ID, e.GuildID, n)
		}
	})
}

func permissionLevel(i *discordgo.InteractionCreate, b *bot.Bot) string {
	cfg := b.GetConfig()
	gs := b.GuildSettings(i.GuildID)

	var roleIDs []string
	userID := ""
	if i.Member != nil {
		roleIDs = i.Member.Roles
		userID = i.Member.User.ID
	} else if i.User != nil {
		userID = i.User.ID
	}
	return utils.CheckPermission(roleIDs, userID, gs.AdminRoleIDs, cfg.DeveloperUserIDs, cfg.SuperAdminRoleIDs)
}

func requireModerator(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) bool {
	if utils.IsModerator(permissionLevel(i, b)) {
		return true
	}
	utils.SendErrorResponse(s, i, "You do not have permission to use this command.")
	return false
}
