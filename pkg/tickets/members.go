package tickets

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/Jacobbrewer1/hound/pkg/custom"
	"github.com/Jacobbrewer1/hound/pkg/discord"
	"github.com/Jacobbrewer1/hound/pkg/logging"
)

var (
	mentionRegex   = regexp.MustCompile(`^<@!?(\d+)>$`)
	snowflakeRegex = regexp.MustCompile(`^\d{15,21}$`)
)

// AddUser grants a member access to the ticket. The target is resolved as a mention, then a
// user ID, then a case insensitive username or display name.
func (s *Service) AddUser(ctx context.Context, ref string, actor Actor, target, reason string) (string, error) {
	t, ok := s.lookup(ref)
	if !ok {
		return "", ErrNotTicket
	}

	unlock := s.locks.Lock(t.ChannelID)
	defer unlock()

	t, ok = s.lookup(t.ChannelID)
	if !ok {
		return "", ErrNotTicket
	}

	cfg := s.Config(t.GuildID)
	if err := s.authorizeOwnerOrStaff(cfg, t, actor); err != nil {
		return "", err
	}

	// Resolve the member.
	userID, err := s.resolveMember(t.GuildID, target)
	if err != nil {
		return "", err
	}

	// Ensure that the member cannot already see the ticket.
	perms, err := s.client.UserChannelPermissions(userID, t.ChannelID)
	if err != nil {
		return "", fmt.Errorf("error getting channel permissions: %w", err)
	}
	if discord.HasPermission(perms, discordgo.PermissionViewChannel) || t.HasAccess(userID) {
		return userID, fmt.Errorf("%w: %s", ErrAlreadyAdded, userID)
	}

	if err := s.client.ChannelPermissionSet(t.ChannelID, userID, discordgo.PermissionOverwriteTypeMember, discord.PermissionTicketAccess, 0); err != nil {
		return "", fmt.Errorf("error granting ticket access: %w", err)
	}

	next := t.Clone()
	next.AddedUsers = append(next.AddedUsers, userID)
	next.LastActivity = custom.Datetime(s.now().UTC())
	s.put(next)
	s.persistAndLog(ctx)

	s.l.Info("User added to ticket",
		slog.String(logging.KeyTicket, next.ID),
		slog.String(logging.KeyUser, userID),
	)

	notice := fmt.Sprintf("<@%s> has been added to the ticket by <@%s>.", userID, actor.ID)
	if reason != "" {
		notice += fmt.Sprintf("\nReason: %s", reason)
	}
	if _, err := s.client.MessageSend(next.ChannelID, &discordgo.MessageSend{Content: notice}); err != nil {
		s.l.Error("Error announcing added user", slog.String(logging.KeyError, err.Error()))
	}

	s.logToChannel(cfg, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "User Added",
			Description: fmt.Sprintf("<@%s> added <@%s> to <#%s>", actor.ID, userID, next.ChannelID),
			Color:       colorClaimed,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Reason", Value: orDash(reason)},
			},
		}},
	})

	return userID, nil
}

// resolveMember turns a mention, ID or name into a member ID.
func (s *Service) resolveMember(guildID, target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", ErrUserNotFound
	}

	if m := mentionRegex.FindStringSubmatch(target); m != nil {
		return s.memberByID(guildID, m[1])
	}

	if snowflakeRegex.MatchString(target) {
		return s.memberByID(guildID, target)
	}

	members, err := s.client.Members(guildID)
	if err != nil {
		return "", fmt.Errorf("error listing members: %w", err)
	}

	name := strings.TrimPrefix(target, "@")
	for _, m := range members {
		if m.User == nil {
			continue
		}
		if strings.EqualFold(m.User.Username, name) || (m.Nick != "" && strings.EqualFold(m.Nick, name)) {
			return m.User.ID, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrUserNotFound, target)
}

func (s *Service) memberByID(guildID, userID string) (string, error) {
	if _, err := s.client.Member(guildID, userID); err != nil {
		if discord.IsNotFound(err) {
			return "", fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return "", fmt.Errorf("error getting member: %w", err)
	}
	return userID, nil
}
