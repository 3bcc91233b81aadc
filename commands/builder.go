package commands

import (
	"github.com/bwmarrin/discordgo"

	"warden-bot/commands/defs"
)

// GenerateCommands returns the full command set registered per guild.
func GenerateCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		defs.Remind,
		defs.Mod,
		defs.Case,
		defs.Modlog,
		defs.Status,
		defs.Reload,
	}
}
