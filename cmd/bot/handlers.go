package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/Jacobbrewer1/hound/pkg/commands"
	"github.com/Jacobbrewer1/hound/pkg/dashboard"
	"github.com/Jacobbrewer1/hound/pkg/events"
	"github.com/Jacobbrewer1/hound/pkg/logging"
	"github.com/Jacobbrewer1/hound/pkg/messages"
	"github.com/Jacobbrewer1/hound/pkg/moderation"
)

// eventTimeout bounds the work done for a single gateway event.
const eventTimeout = 30 * time.Second

func (a *App) registerDiscordHandlers() {
	a.s.AddHandler(a.readyHandler())
	a.s.AddHandler(a.guildJoinedHandler())
	a.s.AddHandler(a.guildLeaveHandler())
	a.s.AddHandler(a.interactionHandler())
	a.s.AddHandler(a.messageCreateHandler())
	a.s.AddHandler(a.reactionAddHandler())
	a.s.AddHandler(a.reactionRemoveHandler())
	a.s.AddHandler(a.memberAddHandler())
	a.s.AddHandler(a.channelDeleteHandler())
}

func (a *App) readyHandler() func(s *discordgo.Session, r *discordgo.Ready) {
	return func(_ *discordgo.Session, r *discordgo.Ready) {
		a.l.Info(fmt.Sprintf("Logged in as %s#%s", r.User.Username, r.User.Discriminator))

		a.statusMut.Lock()
		a.status.Online = true
		a.status.User = r.User.Username
		a.status.Guilds = len(r.Guilds)
		a.statusMut.Unlock()

		TotalDiscordGuilds.Set(float64(len(r.Guilds)))
		a.emitStatus()
	}
}

func (a *App) guildJoinedHandler() func(s *discordgo.Session, g *discordgo.GuildCreate) {
	return func(_ *discordgo.Session, g *discordgo.GuildCreate) {
		a.l.Info(fmt.Sprintf("Joined guild %s", g.Name), slog.String(logging.KeyGuild, g.ID))

		a.statusMut.Lock()
		known := a.guilds[g.ID]
		a.guilds[g.ID] = true
		a.status.Guilds = len(a.guilds)
		a.statusMut.Unlock()

		// Guild create is also sent for every guild on connect.
		if !known {
			TotalDiscordGuilds.Set(float64(a.botStatus().Guilds))
			a.registerGuildCommands(g.ID)
		}
		a.emitStatus()
	}
}

func (a *App) guildLeaveHandler() func(s *discordgo.Session, g *discordgo.GuildDelete) {
	return func(_ *discordgo.Session, g *discordgo.GuildDelete) {
		// Unavailable guilds are outages, not removals.
		if g.Unavailable {
			return
		}
		a.l.Info("Left guild", slog.String(logging.KeyGuild, g.ID))

		a.statusMut.Lock()
		delete(a.guilds, g.ID)
		a.status.Guilds = len(a.guilds)
		a.statusMut.Unlock()

		TotalDiscordGuilds.Set(float64(a.botStatus().Guilds))
		a.emitStatus()
	}
}

// botStatus reports the connection state for the dashboard.
func (a *App) botStatus() dashboard.BotStatus {
	a.statusMut.RLock()
	defer a.statusMut.RUnlock()
	return a.status
}

func (a *App) emitStatus() {
	status := a.botStatus()
	a.hub.Emit(events.BotStatus, &status)
}

// isBotUser reports whether the user is the bot itself.
func (a *App) isBotUser(userID string) bool {
	return a.s.State != nil && a.s.State.User != nil && a.s.State.User.ID == userID
}

func (a *App) messageCreateHandler() func(s *discordgo.Session, m *discordgo.MessageCreate) {
	return func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		// Ignore direct messages, bots and webhooks.
		if m.GuildID == "" || m.Author == nil || m.Author.Bot || m.WebhookID != "" {
			return
		}

		ctx, cancel := context.WithTimeout(a.ctx, eventTimeout)
		defer cancel()

		var memberRoles []string
		if m.Member != nil {
			memberRoles = m.Member.Roles
		}

		v, err := a.svc.Moderation.HandleMessage(ctx, moderation.Message{
			GuildID:   m.GuildID,
			ChannelID: m.ChannelID,
			MessageID: m.ID,
			UserID:    m.Author.ID,
			Content:   m.Content,
			Roles:     memberRoles,
		})
		if err != nil {
			a.l.Error("Error running auto moderation",
				slog.String(logging.KeyGuild, m.GuildID),
				slog.String(logging.KeyError, err.Error()),
			)
		}
		// The message has been removed.
		if v != nil {
			return
		}

		name, args, ok := commands.ParsePrefix(a.cfg.Prefix, m.Content)
		if !ok {
			return
		}

		var perms int64
		if m.Member != nil {
			perms = m.Member.Permissions
		}
		inv := commands.Invocation{
			GuildID:     m.GuildID,
			ChannelID:   m.ChannelID,
			UserID:      m.Author.ID,
			Username:    m.Author.Username,
			Roles:       memberRoles,
			Permissions: perms,
			Name:        name,
			Args:        args,
		}

		start := time.Now()
		reply, err := a.svc.Commands.Dispatch(ctx, inv, commands.KindBuiltin)
		DiscordCommandDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

		switch {
		case errors.Is(err, commands.ErrUnknownCommand):
			reply = &commands.Reply{Content: fmt.Sprintf(messages.ErrUserUnknownCommand, a.cfg.Prefix)}
		case errors.Is(err, commands.ErrCooldown):
			// Replying to every throttled message would be spam of its own.
			return
		case err != nil:
			msg, ok := a.userMessage(m.GuildID, err)
			if !ok {
				a.l.Error("Error running command",
					slog.String("command", name),
					slog.String(logging.KeyGuild, m.GuildID),
					slog.String(logging.KeyError, err.Error()),
				)
				msg = messages.ErrUserErrorProcessing
			}
			reply = &commands.Reply{Content: msg}
		}
		if reply == nil {
			return
		}

		send := &discordgo.MessageSend{
			Content:    reply.Content,
			Components: reply.Components,
			Reference:  m.Reference(),
		}
		if reply.Embed != nil {
			send.Embeds = []*discordgo.MessageEmbed{reply.Embed}
		}
		if _, err := a.s.ChannelMessageSendComplex(m.ChannelID, send); err != nil {
			a.l.Error("Error replying to command", slog.String(logging.KeyError, err.Error()))
		}
	}
}

func (a *App) reactionAddHandler() func(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	return func(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
		if r.GuildID == "" || a.isBotUser(r.UserID) {
			return
		}
		ctx, cancel := context.WithTimeout(a.ctx, eventTimeout)
		defer cancel()
		a.svc.Roles.HandleReactionAdd(ctx, r.GuildID, r.MessageID, r.UserID, r.Emoji.APIName())
	}
}

func (a *App) reactionRemoveHandler() func(s *discordgo.Session, r *discordgo.MessageReactionRemove) {
	return func(_ *discordgo.Session, r *discordgo.MessageReactionRemove) {
		if r.GuildID == "" || a.isBotUser(r.UserID) {
			return
		}
		ctx, cancel := context.WithTimeout(a.ctx, eventTimeout)
		defer cancel()
		a.svc.Roles.HandleReactionRemove(ctx, r.GuildID, r.MessageID, r.UserID, r.Emoji.APIName())
	}
}

func (a *App) memberAddHandler() func(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	return func(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
		if m.User == nil || m.User.Bot {
			return
		}
		ctx, cancel := context.WithTimeout(a.ctx, eventTimeout)
		defer cancel()

		raid, err := a.svc.Moderation.HandleMemberJoin(ctx, m.GuildID, m.User.ID)
		if err != nil {
			a.l.Error("Error checking member join",
				slog.String(logging.KeyGuild, m.GuildID),
				slog.String(logging.KeyError, err.Error()),
			)
		}
		// Raiders are not given the join roles.
		if raid {
			return
		}
		a.svc.Roles.HandleMemberJoin(ctx, m.GuildID, m.User.ID)
	}
}

// channelDeleteHandler drops tickets whose channel was deleted by hand.
func (a *App) channelDeleteHandler() func(s *discordgo.Session, c *discordgo.ChannelDelete) {
	return func(_ *discordgo.Session, c *discordgo.ChannelDelete) {
		if c.Channel == nil {
			return
		}
		ctx, cancel := context.WithTimeout(a.ctx, eventTimeout)
		defer cancel()
		if err := a.svc.Tickets.HandleChannelDeleted(ctx, c.ID); err != nil {
			a.l.Error("Error handling deleted channel",
				slog.String(logging.KeyChannel, c.ID),
				slog.String(logging.KeyError, err.Error()),
			)
		}
	}
}

func (a *App) eventListener() {
	for e := range a.eventNotifier {
		switch t := e.(type) {
		case *discordgo.Event:
			if t.Type != "" {
				TotalDiscordEvents.WithLabelValues(t.Type).Inc()
			} else {
				// If there is no type, then use the operation name.
				TotalDiscordEvents.WithLabelValues(strings.ToUpper(t.Operation.String())).Inc()
			}
		default:
			a.l.Error("Unknown event type", slog.String("type", fmt.Sprintf("%T", e)))
			TotalDiscordEvents.WithLabelValues("UNKNOWN").Inc()
		}
	}
}
