package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/Jacobbrewer1/hound/pkg/commands"
	"github.com/Jacobbrewer1/hound/pkg/logging"
	"github.com/Jacobbrewer1/hound/pkg/messages"
	"github.com/Jacobbrewer1/hound/pkg/moderation"
	"github.com/Jacobbrewer1/hound/pkg/roles"
	"github.com/Jacobbrewer1/hound/pkg/tickets"
)

// userMessage returns the reply shown for errors caused by the member rather than by the
// bot. Other errors return false and are logged by the caller.
func (a *App) userMessage(guildID string, err error) (string, bool) {
	var claimed *tickets.AlreadyClaimedError
	switch {
	case errors.As(err, &claimed):
		return fmt.Sprintf(messages.ErrUserAlreadyClaimed, claimed.ClaimedBy), true
	case errors.Is(err, tickets.ErrDisabled):
		return messages.ErrUserTicketsDisabled, true
	case errors.Is(err, tickets.ErrTicketLimit):
		return fmt.Sprintf(messages.ErrUserTicketLimit, a.svc.Tickets.Config(guildID).MaxTicketsPerUser), true
	case errors.Is(err, tickets.ErrNotClaimant):
		return messages.ErrUserNotClaimant, true
	case errors.Is(err, tickets.ErrNotTicket):
		return messages.ErrUserNotTicket, true
	case errors.Is(err, tickets.ErrForbidden):
		return messages.ErrUserNoPermission, true
	case errors.Is(err, tickets.ErrUserNotFound):
		return messages.ErrUserTargetNotFound, true
	case errors.Is(err, tickets.ErrCategoryNotFound):
		return messages.ErrUserCategoryMissing, true
	case errors.Is(err, tickets.ErrTypeNotFound),
		errors.Is(err, tickets.ErrInvalid),
		errors.Is(err, roles.ErrSetupNotFound),
		errors.Is(err, moderation.ErrInvalid),
		errors.Is(err, moderation.ErrNotFound),
		errors.Is(err, commands.ErrUsage),
		errors.Is(err, commands.ErrInvalid),
		errors.Is(err, commands.ErrDuplicate):
		return err.Error(), true
	case errors.Is(err, commands.ErrCooldown):
		return messages.ErrUserCooldown, true
	}
	return "", false
}

// replyError answers an interaction with the user facing form of err.
func (a *App) replyError(i *discordgo.InteractionCreate, err error) {
	msg, ok := a.userMessage(i.GuildID, err)
	if !ok {
		a.l.Error("Error handling interaction",
			slog.String(logging.KeyGuild, i.GuildID),
			slog.String(logging.KeyError, err.Error()),
		)
		msg = messages.ErrUserErrorProcessing
	}
	a.respondEphemeral(i, msg)
}

func (a *App) respondEphemeral(i *discordgo.InteractionCreate, content string) {
	a.respond(i, &commands.Reply{Content: content, Ephemeral: true})
}

func (a *App) respond(i *discordgo.InteractionCreate, reply *commands.Reply) {
	data := &discordgo.InteractionResponseData{
		Content:    reply.Content,
		Components: reply.Components,
	}
	if reply.Embed != nil {
		data.Embeds = []*discordgo.MessageEmbed{reply.Embed}
	}
	if reply.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}

	if err := a.s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}); err != nil {
		a.l.Error("Error responding to interaction", slog.String(logging.KeyError, err.Error()))
	}
}

// deferEphemeral acknowledges an interaction whose work may outlast the response window.
// The answer is sent with followUp.
func (a *App) deferEphemeral(i *discordgo.InteractionCreate) bool {
	if err := a.s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}); err != nil {
		a.l.Error("Error deferring interaction", slog.String(logging.KeyError, err.Error()))
		return false
	}
	return true
}

func (a *App) followUp(i *discordgo.InteractionCreate, content string) {
	if _, err := a.s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: content,
	}); err != nil {
		a.l.Error("Error sending follow up", slog.String(logging.KeyError, err.Error()))
	}
}

// followUpError is replyError for deferred interactions.
func (a *App) followUpError(i *discordgo.InteractionCreate, err error) {
	msg, ok := a.userMessage(i.GuildID, err)
	if !ok {
		a.l.Error("Error handling interaction",
			slog.String(logging.KeyGuild, i.GuildID),
			slog.String(logging.KeyError, err.Error()),
		)
		msg = messages.ErrUserErrorProcessing
	}
	a.followUp(i, msg)
}

// actor describes the member behind an interaction.
func actor(i *discordgo.InteractionCreate) tickets.Actor {
	return tickets.Actor{
		ID:       i.Member.User.ID,
		Username: i.Member.User.Username,
		Roles:    i.Member.Roles,
	}
}
