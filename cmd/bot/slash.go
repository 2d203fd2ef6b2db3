package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/Jacobbrewer1/hound/pkg/commands"
	"github.com/Jacobbrewer1/hound/pkg/custom"
	"github.com/Jacobbrewer1/hound/pkg/discord"
	"github.com/Jacobbrewer1/hound/pkg/entities"
	"github.com/Jacobbrewer1/hound/pkg/moderation"
	"github.com/Jacobbrewer1/hound/pkg/tickets"
)

var (
	// moderatePerm is the default permission of the moderation commands.
	moderatePerm int64 = discordgo.PermissionModerateMembers

	// banPerm is the default permission of ban and unban.
	banPerm int64 = discordgo.PermissionBanMembers

	// kickPerm is the default permission of kick.
	kickPerm int64 = discordgo.PermissionKickMembers

	// maxTimeoutMinutes is the longest timeout Discord accepts, 28 days.
	maxTimeoutMinutes = float64(28 * 24 * 60)
)

var ticketCmd = &discordgo.ApplicationCommand{
	Name:        "ticket",
	Description: "Manage support tickets",
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "open",
			Description: "Open a new ticket",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "subject",
					Description: "What do you need help with?",
					Required:    false,
					MaxLength:   1000,
				},
			},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "claim",
			Description: "Claim this ticket",
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "unclaim",
			Description: "Release your claim on this ticket",
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "close",
			Description: "Close this ticket",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "reason",
					Description: "Why the ticket is being closed",
					Required:    false,
				},
			},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "add",
			Description: "Add a user to this ticket",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "The user to add",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "reason",
					Description: "Why the user is being added",
					Required:    false,
				},
			},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "nodelay",
			Description: "Keep this ticket channel after it closes",
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "panel",
			Description: "Post the open ticket panel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "channel",
					Description:  "Where to post the panel",
					Required:     true,
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
				},
			},
		},
	},
}

func userOption(description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        "user",
		Description: description,
		Required:    true,
	}
}

func reasonOption(required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "reason",
		Description: "The reason for this action",
		Required:    required,
	}
}

var warnCmd = &discordgo.ApplicationCommand{
	Name:                     "warn",
	Description:              "Warn a member",
	DefaultMemberPermissions: &moderatePerm,
	Options: []*discordgo.ApplicationCommandOption{
		userOption("The member to warn"),
		reasonOption(true),
	},
}

var warningsCmd = &discordgo.ApplicationCommand{
	Name:                     "warnings",
	Description:              "List the warnings of a member",
	DefaultMemberPermissions: &moderatePerm,
	Options: []*discordgo.ApplicationCommandOption{
		userOption("The member to look up"),
	},
}

var timeoutCmd = &discordgo.ApplicationCommand{
	Name:                     "timeout",
	Description:              "Time out a member",
	DefaultMemberPermissions: &moderatePerm,
	Options: []*discordgo.ApplicationCommandOption{
		userOption("The member to time out"),
		{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "minutes",
			Description: "How long the timeout lasts",
			Required:    true,
			MinValue:    func() *float64 { v := 1.0; return &v }(),
			MaxValue:    maxTimeoutMinutes,
		},
		reasonOption(false),
	},
}

var banCmd = &discordgo.ApplicationCommand{
	Name:                     "ban",
	Description:              "Ban a member",
	DefaultMemberPermissions: &banPerm,
	Options: []*discordgo.ApplicationCommandOption{
		userOption("The member to ban"),
		reasonOption(false),
		{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "hours",
			Description: "Lift the ban after this many hours, permanent when unset",
			Required:    false,
		},
	},
}

var kickCmd = &discordgo.ApplicationCommand{
	Name:                     "kick",
	Description:              "Kick a member",
	DefaultMemberPermissions: &kickPerm,
	Options: []*discordgo.ApplicationCommandOption{
		userOption("The member to kick"),
		reasonOption(false),
	},
}

var unbanCmd = &discordgo.ApplicationCommand{
	Name:                     "unban",
	Description:              "Lift a ban",
	DefaultMemberPermissions: &banPerm,
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "user",
			Description: "The ID of the banned user",
			Required:    true,
		},
		reasonOption(false),
	},
}

var rollCmd = &discordgo.ApplicationCommand{
	Name:        "roll",
	Description: "Roll dice",
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "dice",
			Description: "Dice notation such as 2d6+1",
			Required:    false,
		},
	},
}

var pingCmd = &discordgo.ApplicationCommand{
	Name:        "ping",
	Description: "Check that the bot is alive",
}

// slashDescriptors returns the slash commands served by the bot.
func (a *App) slashDescriptors() []commands.Descriptor {
	return []commands.Descriptor{
		{Name: ticketCmd.Name, Kind: commands.KindSlash, Description: ticketCmd.Description, Usage: "/ticket <open|claim|unclaim|close|add|nodelay|panel>", Definition: ticketCmd, Handler: a.ticketCommand},
		{Name: warnCmd.Name, Kind: commands.KindSlash, Description: warnCmd.Description, Usage: "/warn <user> <reason>", Definition: warnCmd, Handler: a.warnCommand},
		{Name: warningsCmd.Name, Kind: commands.KindSlash, Description: warningsCmd.Description, Usage: "/warnings <user>", Definition: warningsCmd, Handler: a.warningsCommand},
		{Name: timeoutCmd.Name, Kind: commands.KindSlash, Description: timeoutCmd.Description, Usage: "/timeout <user> <minutes> [reason]", Definition: timeoutCmd, Handler: a.punishCommand(entities.PunishmentMute, time.Minute, "minutes")},
		{Name: banCmd.Name, Kind: commands.KindSlash, Description: banCmd.Description, Usage: "/ban <user> [reason] [hours]", Definition: banCmd, Handler: a.punishCommand(entities.PunishmentBan, time.Hour, "hours")},
		{Name: kickCmd.Name, Kind: commands.KindSlash, Description: kickCmd.Description, Usage: "/kick <user> [reason]", Definition: kickCmd, Handler: a.punishCommand(entities.PunishmentKick, 0, "")},
		{Name: unbanCmd.Name, Kind: commands.KindSlash, Description: unbanCmd.Description, Usage: "/unban <user> [reason]", Definition: unbanCmd, Handler: a.unbanCommand},
		{Name: rollCmd.Name, Kind: commands.KindSlash, Description: rollCmd.Description, Usage: "/roll [dice]", Definition: rollCmd, Handler: a.builtinCommand("roll")},
		{Name: pingCmd.Name, Kind: commands.KindSlash, Description: pingCmd.Description, Usage: "/ping", Definition: pingCmd, Handler: a.builtinCommand("ping")},
	}
}

// builtinCommand serves a slash command with the builtin of the same name.
func (a *App) builtinCommand(name string) commands.Handler {
	return func(ctx context.Context, inv commands.Invocation) (*commands.Reply, error) {
		d, ok := a.svc.Commands.Resolve(inv.GuildID, name, commands.KindBuiltin)
		if !ok {
			return nil, fmt.Errorf("%w: %s", commands.ErrUnknownCommand, name)
		}
		return d.Handler(ctx, inv)
	}
}

func invocationActor(inv commands.Invocation) tickets.Actor {
	return tickets.Actor{
		ID:       inv.UserID,
		Username: inv.Username,
		Roles:    inv.Roles,
	}
}

func ephemeral(format string, args ...any) *commands.Reply {
	return &commands.Reply{Content: fmt.Sprintf(format, args...), Ephemeral: true}
}

func (a *App) ticketCommand(ctx context.Context, inv commands.Invocation) (*commands.Reply, error) {
	act := invocationActor(inv)

	switch inv.Options[subcommandOption] {
	case "open":
		t, err := a.svc.Tickets.CreateTicket(ctx, tickets.CreateRequest{
			GuildID:  inv.GuildID,
			UserID:   inv.UserID,
			Username: inv.Username,
			Subject:  inv.Options["subject"],
		})
		if err != nil {
			return nil, err
		}
		return ephemeral("Your ticket has been created: <#%s>", t.ChannelID), nil
	case "claim":
		if _, err := a.svc.Tickets.Claim(ctx, inv.ChannelID, act); err != nil {
			return nil, err
		}
		return &commands.Reply{Content: fmt.Sprintf("This ticket has been claimed by <@%s>.", inv.UserID)}, nil
	case "unclaim":
		if _, err := a.svc.Tickets.Unclaim(ctx, inv.ChannelID, act); err != nil {
			return nil, err
		}
		return &commands.Reply{Content: fmt.Sprintf("<@%s> has unclaimed this ticket.", inv.UserID)}, nil
	case "close":
		reason := inv.Options["reason"]
		if reason == "" {
			reason = fmt.Sprintf("Closed by %s", inv.Username)
		}
		t, err := a.svc.Tickets.Close(ctx, inv.ChannelID, act, reason)
		if err != nil {
			return nil, err
		}
		if t.NoCloseDelay {
			return ephemeral("Ticket closed."), nil
		}
		return ephemeral("Ticket closed. This channel will be deleted in %d seconds.", int(tickets.CloseDelay.Seconds())), nil
	case "add":
		userID, err := a.svc.Tickets.AddUser(ctx, inv.ChannelID, act, inv.Options["user"], inv.Options["reason"])
		if err != nil {
			return nil, err
		}
		return &commands.Reply{Content: fmt.Sprintf("<@%s> has been added to the ticket.", userID)}, nil
	case "nodelay":
		if err := a.svc.Tickets.RemoveCloseDelay(ctx, inv.ChannelID, act); err != nil {
			return nil, err
		}
		return ephemeral("This channel will not be deleted automatically."), nil
	case "panel":
		if !discord.HasPermission(inv.Permissions, discordgo.PermissionManageServer) {
			return nil, tickets.ErrForbidden
		}
		channelID := inv.Options["channel"]
		if _, err := a.svc.Tickets.DeployPanel(ctx, inv.GuildID, channelID); err != nil {
			return nil, err
		}
		return ephemeral("The ticket panel has been posted in <#%s>.", channelID), nil
	default:
		return nil, commands.Usagef("Unknown ticket command.")
	}
}

// requirePermission fails with a forbidden error when the member lacks perm.
func requirePermission(inv commands.Invocation, perm int64) error {
	if !discord.HasPermission(inv.Permissions, perm) {
		return tickets.ErrForbidden
	}
	return nil
}

func (a *App) warnCommand(ctx context.Context, inv commands.Invocation) (*commands.Reply, error) {
	if err := requirePermission(inv, moderatePerm); err != nil {
		return nil, err
	}
	userID := inv.Options["user"]

	w, p, err := a.svc.Moderation.Warn(ctx, inv.GuildID, userID, inv.UserID, inv.Options["reason"])
	if err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("⚠️ <@%s> has been warned: %s (%d active)", userID, w.Reason, a.svc.Moderation.ActiveWarnings(inv.GuildID, userID))
	if p != nil {
		msg += fmt.Sprintf("\nEscalated to **%s**", p.Type)
		if p.Duration > 0 {
			msg += " for " + custom.HumanDuration(p.Duration)
		}
	}
	return &commands.Reply{Content: msg}, nil
}

func (a *App) warningsCommand(_ context.Context, inv commands.Invocation) (*commands.Reply, error) {
	if err := requirePermission(inv, moderatePerm); err != nil {
		return nil, err
	}
	userID := inv.Options["user"]

	list := a.svc.Moderation.Warnings(inv.GuildID, userID)
	embed := &discordgo.MessageEmbed{
		Title: "Warnings",
		Color: 0xffa500,
	}
	if len(list) == 0 {
		embed.Description = fmt.Sprintf("<@%s> has no warnings.", userID)
		return &commands.Reply{Embed: embed, Ephemeral: true}, nil
	}

	active := 0
	for _, w := range list {
		status := "Removed"
		if w.Active {
			status = "Active"
			active++
		}
		if len(embed.Fields) < 25 {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:  fmt.Sprintf("%s • %s", status, time.Time(w.CreatedAt).Format(time.DateOnly)),
				Value: fmt.Sprintf("%s\nBy <@%s> • `%s`", w.Reason, w.ModeratorID, w.ID),
			})
		}
	}
	embed.Description = fmt.Sprintf("<@%s> has %d active of %d total warnings.", userID, active, len(list))
	return &commands.Reply{Embed: embed, Ephemeral: true}, nil
}

// punishCommand handles timeout, ban and kick. The duration option is multiplied by unit.
func (a *App) punishCommand(typ entities.PunishmentType, unit time.Duration, durationOption string) commands.Handler {
	perm := moderatePerm
	switch typ {
	case entities.PunishmentBan:
		perm = banPerm
	case entities.PunishmentKick:
		perm = kickPerm
	}

	return func(ctx context.Context, inv commands.Invocation) (*commands.Reply, error) {
		if err := requirePermission(inv, perm); err != nil {
			return nil, err
		}

		req := moderation.PunishRequest{
			GuildID:     inv.GuildID,
			UserID:      inv.Options["user"],
			ModeratorID: inv.UserID,
			Type:        typ,
			Reason:      inv.Options["reason"],
		}
		if durationOption != "" {
			if raw := inv.Options[durationOption]; raw != "" {
				n, err := strconv.Atoi(raw)
				if err != nil || n < 0 {
					return nil, commands.Usagef("%s must be a positive number.", durationOption)
				}
				req.Duration = time.Duration(n) * unit
			}
		}

		p, err := a.svc.Moderation.Punish(ctx, req)
		if err != nil {
			return nil, err
		}

		msg := fmt.Sprintf("%s applied to <@%s>: %s", strings.ToUpper(string(p.Type[:1]))+string(p.Type[1:]), p.UserID, p.Reason)
		if p.Duration > 0 {
			msg += " (" + custom.HumanDuration(p.Duration) + ")"
		}
		return &commands.Reply{Content: msg}, nil
	}
}

func (a *App) unbanCommand(ctx context.Context, inv commands.Invocation) (*commands.Reply, error) {
	if err := requirePermission(inv, banPerm); err != nil {
		return nil, err
	}
	userID := strings.Trim(inv.Options["user"], "<@!>")
	if err := a.svc.Moderation.Unban(ctx, inv.GuildID, userID, inv.UserID, inv.Options["reason"]); err != nil {
		return nil, err
	}
	return &commands.Reply{Content: fmt.Sprintf("<@%s> has been unbanned.", userID)}, nil
}
