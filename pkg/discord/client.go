// Package discord narrows the discordgo session to the calls the engines make, so the
// engines can be driven by a fake in tests.
package discord

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Jacobbrewer1/discordgo"
)

// PermissionTicketAccess is the permission set granted to a member added to a ticket.
const PermissionTicketAccess = discordgo.PermissionViewChannel |
	discordgo.PermissionSendMessages |
	discordgo.PermissionReadMessageHistory |
	discordgo.PermissionAttachFiles |
	discordgo.PermissionEmbedLinks

// Client is the subset of the Discord API used by the bot.
type Client interface {
	// Channel gets a channel by ID.
	Channel(channelID string) (*discordgo.Channel, error)

	// GuildChannels lists the channels of a guild.
	GuildChannels(guildID string) ([]*discordgo.Channel, error)

	// ChannelCreate creates a guild channel.
	ChannelCreate(guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error)

	// ChannelEdit edits a channel.
	ChannelEdit(channelID string, data *discordgo.ChannelEdit) (*discordgo.Channel, error)

	// ChannelDelete deletes a channel.
	ChannelDelete(channelID string) error

	// ChannelPermissionSet sets a permission overwrite on a channel.
	ChannelPermissionSet(channelID, targetID string, targetType discordgo.PermissionOverwriteType, allow, deny int64) error

	// UserChannelPermissions computes the effective permissions of a user in a channel.
	UserChannelPermissions(userID, channelID string) (int64, error)

	// MessageSend sends a message.
	MessageSend(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error)

	// MessageEdit edits a message.
	MessageEdit(data *discordgo.MessageEdit) (*discordgo.Message, error)

	// MessageDelete deletes a message.
	MessageDelete(channelID, messageID string) error

	// ReactionAdd reacts to a message as the bot.
	ReactionAdd(channelID, messageID, emoji string) error

	// Messages returns up to limit of the most recent messages in a channel, newest first.
	Messages(channelID string, limit int) ([]*discordgo.Message, error)

	// Member gets a guild member.
	Member(guildID, userID string) (*discordgo.Member, error)

	// Members lists every member of a guild.
	Members(guildID string) ([]*discordgo.Member, error)

	// RoleAdd grants a role to a member.
	RoleAdd(guildID, userID, roleID string) error

	// RoleRemove revokes a role from a member.
	RoleRemove(guildID, userID, roleID string) error

	// Timeout times a member out until the given time. A nil time removes the timeout.
	Timeout(guildID, userID string, until *time.Time) error

	// Ban bans a user.
	Ban(guildID, userID, reason string) error

	// Unban removes a ban.
	Unban(guildID, userID string) error

	// Kick removes a member from the guild.
	Kick(guildID, userID, reason string) error

	// DirectMessage sends a direct message to a user.
	DirectMessage(userID string, data *discordgo.MessageSend) error
}

type sessionClient struct {
	s *discordgo.Session
}

// NewClient wraps a discordgo session.
func NewClient(s *discordgo.Session) Client {
	return &sessionClient{s: s}
}

func (c *sessionClient) Channel(channelID string) (*discordgo.Channel, error) {
	return c.s.Channel(channelID)
}

func (c *sessionClient) GuildChannels(guildID string) ([]*discordgo.Channel, error) {
	return c.s.GuildChannels(guildID)
}

func (c *sessionClient) ChannelCreate(guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	return c.s.GuildChannelCreateComplex(guildID, data)
}

func (c *sessionClient) ChannelEdit(channelID string, data *discordgo.ChannelEdit) (*discordgo.Channel, error) {
	return c.s.ChannelEditComplex(channelID, data)
}

func (c *sessionClient) ChannelDelete(channelID string) error {
	_, err := c.s.ChannelDelete(channelID)
	return err
}

func (c *sessionClient) ChannelPermissionSet(channelID, targetID string, targetType discordgo.PermissionOverwriteType, allow, deny int64) error {
	return c.s.ChannelPermissionSet(channelID, targetID, targetType, allow, deny)
}

func (c *sessionClient) UserChannelPermissions(userID, channelID string) (int64, error) {
	return c.s.UserChannelPermissions(userID, channelID)
}

func (c *sessionClient) MessageSend(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error) {
	return c.s.ChannelMessageSendComplex(channelID, data)
}

func (c *sessionClient) MessageEdit(data *discordgo.MessageEdit) (*discordgo.Message, error) {
	return c.s.ChannelMessageEditComplex(data)
}

func (c *sessionClient) MessageDelete(channelID, messageID string) error {
	return c.s.ChannelMessageDelete(channelID, messageID)
}

func (c *sessionClient) ReactionAdd(channelID, messageID, emoji string) error {
	return c.s.MessageReactionAdd(channelID, messageID, emoji)
}

func (c *sessionClient) Messages(channelID string, limit int) ([]*discordgo.Message, error) {
	return c.s.ChannelMessages(channelID, limit, "", "", "")
}

func (c *sessionClient) Member(guildID, userID string) (*discordgo.Member, error) {
	// Try the state cache first, members are requested on every interaction.
	if c.s.State != nil {
		if m, err := c.s.State.Member(guildID, userID); err == nil {
			return m, nil
		}
	}
	return c.s.GuildMember(guildID, userID)
}

func (c *sessionClient) Members(guildID string) ([]*discordgo.Member, error) {
	const pageSize = 1000

	var (
		all   []*discordgo.Member
		after string
	)
	for {
		page, err := c.s.GuildMembers(guildID, after, pageSize)
		if err != nil {
			return nil, fmt.Errorf("error listing members: %w", err)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
		after = page[len(page)-1].User.ID
	}
}

func (c *sessionClient) RoleAdd(guildID, userID, roleID string) error {
	return c.s.GuildMemberRoleAdd(guildID, userID, roleID)
}

func (c *sessionClient) RoleRemove(guildID, userID, roleID string) error {
	return c.s.GuildMemberRoleRemove(guildID, userID, roleID)
}

func (c *sessionClient) Timeout(guildID, userID string, until *time.Time) error {
	return c.s.GuildMemberTimeout(guildID, userID, until)
}

func (c *sessionClient) Ban(guildID, userID, reason string) error {
	return c.s.GuildBanCreateWithReason(guildID, userID, reason, 0)
}

func (c *sessionClient) Unban(guildID, userID string) error {
	return c.s.GuildBanDelete(guildID, userID)
}

func (c *sessionClient) Kick(guildID, userID, reason string) error {
	return c.s.GuildMemberDeleteWithReason(guildID, userID, reason)
}

func (c *sessionClient) DirectMessage(userID string, data *discordgo.MessageSend) error {
	ch, err := c.s.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("error creating dm channel: %w", err)
	}
	if _, err := c.s.ChannelMessageSendComplex(ch.ID, data); err != nil {
		return fmt.Errorf("error sending dm: %w", err)
	}
	return nil
}

// IsNotFound reports whether err is a Discord 404 for an unknown resource.
func IsNotFound(err error) bool {
	er := new(discordgo.RESTError)
	if !errors.As(err, &er) {
		return false
	}
	if er.Response != nil && er.Response.StatusCode == http.StatusNotFound {
		return true
	}
	if er.Message == nil {
		return false
	}
	switch er.Message.Code {
	case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownMember,
		discordgo.ErrCodeUnknownBan, discordgo.ErrCodeUnknownRole:
		return true
	}
	return false
}

// HasPermission reports whether the permission bits contain perm. Administrators have every permission.
func HasPermission(perms, perm int64) bool {
	if perms&discordgo.PermissionAdministrator == discordgo.PermissionAdministrator {
		return true
	}
	return perms&perm == perm
}

// HasRole reports whether the member has the role.
func HasRole(m *discordgo.Member, roleID string) bool {
	if m == nil {
		return false
	}
	for _, r := range m.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}
