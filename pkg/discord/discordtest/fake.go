// Package discordtest provides an in-memory discord.Client for tests.
package discordtest

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/Jacobbrewer1/hound/pkg/discord"
)

// ErrNotFound mimics a Discord 404.
var ErrNotFound = &discordgo.RESTError{
	Response: &http.Response{StatusCode: http.StatusNotFound},
	Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownChannel, Message: "Unknown Channel"},
}

// Edit is a recorded channel edit.
type Edit struct {
	ChannelID string
	Data      *discordgo.ChannelEdit
}

// Client is a fake discord.Client. All fields are guarded by the mutex; use the accessor
// methods from tests that run goroutines.
type Client struct {
	mut sync.Mutex

	nextID int

	Channels     map[string]*discordgo.Channel
	Deleted      []string
	ChannelEdits []Edit

	// Overwrites holds permission overwrites by channel then target.
	Overwrites map[string]map[string]int64

	// BasePermissions are the permissions a user has in every channel, e.g. manage channels.
	BasePermissions map[string]int64

	GuildMembers map[string]map[string]*discordgo.Member

	Sent            map[string][]*discordgo.MessageSend
	Edited          []*discordgo.MessageEdit
	DeletedMessages []string
	History         map[string][]*discordgo.Message
	Reactions       []string

	Timeouts map[string]*time.Time
	Bans     map[string]string
	Unbans   []string
	Kicks    []string
	DMs      map[string][]*discordgo.MessageSend

	// Error injection.
	ChannelCreateErr error
	DMErr            error
	RoleErr          error

	// CreateDelay slows channel creation to widen race windows in tests.
	CreateDelay time.Duration
}

var _ discord.Client = (*Client)(nil)

// New creates an empty fake.
func New() *Client {
	return &Client{
		Channels:        make(map[string]*discordgo.Channel),
		Overwrites:      make(map[string]map[string]int64),
		BasePermissions: make(map[string]int64),
		GuildMembers:    make(map[string]map[string]*discordgo.Member),
		Sent:            make(map[string][]*discordgo.MessageSend),
		History:         make(map[string][]*discordgo.Message),
		Timeouts:        make(map[string]*time.Time),
		Bans:            make(map[string]string),
		DMs:             make(map[string][]*discordgo.MessageSend),
	}
}

func (c *Client) id(prefix string) string {
	c.nextID++
	return fmt.Sprintf("%s%d", prefix, c.nextID)
}

// AddChannel registers an existing channel.
func (c *Client) AddChannel(ch *discordgo.Channel) {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.Channels[ch.ID] = ch
}

// AddMember registers a guild member.
func (c *Client) AddMember(guildID string, m *discordgo.Member) {
	c.mut.Lock()
	defer c.mut.Unlock()
	if c.GuildMembers[guildID] == nil {
		c.GuildMembers[guildID] = make(map[string]*discordgo.Member)
	}
	m.GuildID = guildID
	c.GuildMembers[guildID][m.User.ID] = m
}

// MemberRoles returns a copy of the member's roles.
func (c *Client) MemberRoles(guildID, userID string) []string {
	c.mut.Lock()
	defer c.mut.Unlock()
	m, ok := c.GuildMembers[guildID][userID]
	if !ok {
		return nil
	}
	return append([]string(nil), m.Roles...)
}

// SentTo returns the messages sent to a channel.
func (c *Client) SentTo(channelID string) []*discordgo.MessageSend {
	c.mut.Lock()
	defer c.mut.Unlock()
	return append([]*discordgo.MessageSend(nil), c.Sent[channelID]...)
}

// CreatedChannels returns the channels that exist.
func (c *Client) CreatedChannels() []*discordgo.Channel {
	c.mut.Lock()
	defer c.mut.Unlock()
	out := make([]*discordgo.Channel, 0, len(c.Channels))
	for _, ch := range c.Channels {
		out = append(out, ch)
	}
	return out
}

// DeletedChannels returns the deleted channel IDs.
func (c *Client) DeletedChannels() []string {
	c.mut.Lock()
	defer c.mut.Unlock()
	return append([]string(nil), c.Deleted...)
}

func (c *Client) Channel(channelID string) (*discordgo.Channel, error) {
	c.mut.Lock()
	defer c.mut.Unlock()
	ch, ok := c.Channels[channelID]
	if !ok {
		return nil, ErrNotFound
	}
	return ch, nil
}

func (c *Client) GuildChannels(guildID string) ([]*discordgo.Channel, error) {
	c.mut.Lock()
	defer c.mut.Unlock()
	var out []*discordgo.Channel
	for _, ch := range c.Channels {
		if ch.GuildID == guildID {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (c *Client) ChannelCreate(guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	if c.CreateDelay > 0 {
		time.Sleep(c.CreateDelay)
	}

	c.mut.Lock()
	defer c.mut.Unlock()
	if c.ChannelCreateErr != nil {
		return nil, c.ChannelCreateErr
	}

	ch := &discordgo.Channel{
		ID:                   c.id("channel-"),
		GuildID:              guildID,
		Name:                 data.Name,
		Topic:                data.Topic,
		Type:                 data.Type,
		ParentID:             data.ParentID,
		PermissionOverwrites: data.PermissionOverwrites,
	}
	c.Channels[ch.ID] = ch

	c.Overwrites[ch.ID] = make(map[string]int64)
	for _, o := range data.PermissionOverwrites {
		c.Overwrites[ch.ID][o.ID] = o.Allow
	}
	return ch, nil
}

func (c *Client) ChannelEdit(channelID string, data *discordgo.ChannelEdit) (*discordgo.Channel, error) {
	c.mut.Lock()
	defer c.mut.Unlock()
	ch, ok := c.Channels[channelID]
	if !ok {
		return nil, ErrNotFound
	}
	c.ChannelEdits = append(c.ChannelEdits, Edit{ChannelID: channelID, Data: data})
	if data.RateLimitPerUser != nil {
		ch.RateLimitPerUser = *data.RateLimitPerUser
	}
	return ch, nil
}

func (c *Client) ChannelDelete(channelID string) error {
	c.mut.Lock()
	defer c.mut.Unlock()
	if _, ok := c.Channels[channelID]; !ok {
		return ErrNotFound
	}
	delete(c.Channels, channelID)
	c.Deleted = append(c.Deleted, channelID)
	return nil
}

func (c *Client) ChannelPermissionSet(channelID, targetID string, _ discordgo.PermissionOverwriteType, allow, _ int64) error {
	c.mut.Lock()
	defer c.mut.Unlock()
	if _, ok := c.Channels[channelID]; !ok {
		return ErrNotFound
	}
	if c.Overwrites[channelID] == nil {
		c.Overwrites[channelID] = make(map[string]int64)
	}
	c.Overwrites[channelID][targetID] = allow
	return nil
}

// UserChannelPermissions combines the base permissions of the user with the member and role
// overwrites of the channel.
func (c *Client) UserChannelPermissions(userID, channelID string) (int64, error) {
	c.mut.Lock()
	defer c.mut.Unlock()
	ch, ok := c.Channels[channelID]
	if !ok {
		return 0, ErrNotFound
	}

	perms := c.BasePermissions[userID]
	perms |= c.Overwrites[channelID][userID]
	if m, ok := c.GuildMembers[ch.GuildID][userID]; ok {
		for _, r := range m.Roles {
			perms |= c.Overwrites[channelID][r]
		}
	}
	return perms, nil
}

func (c *Client) MessageSend(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error) {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.Sent[channelID] = append(c.Sent[channelID], data)
	return &discordgo.Message{ID: c.id("message-"), ChannelID: channelID, Content: data.Content, Embeds: data.Embeds}, nil
}

func (c *Client) MessageEdit(data *discordgo.MessageEdit) (*discordgo.Message, error) {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.Edited = append(c.Edited, data)
	return &discordgo.Message{ID: data.ID, ChannelID: data.Channel}, nil
}

func (c *Client) MessageDelete(channelID, messageID string) error {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.DeletedMessages = append(c.DeletedMessages, channelID+"/"+messageID)
	return nil
}

func (c *Client) ReactionAdd(channelID, messageID, emoji string) error {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.Reactions = append(c.Reactions, channelID+"/"+messageID+"/"+emoji)
	return nil
}

func (c *Client) Messages(channelID string, limit int) ([]*discordgo.Message, error) {
	c.mut.Lock()
	defer c.mut.Unlock()
	msgs := c.History[channelID]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return append([]*discordgo.Message(nil), msgs...), nil
}

func (c *Client) Member(guildID, userID string) (*discordgo.Member, error) {
	c.mut.Lock()
	defer c.mut.Unlock()
	m, ok := c.GuildMembers[guildID][userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	cp.Roles = append([]string(nil), m.Roles...)
	return &cp, nil
}

func (c *Client) Members(guildID string) ([]*discordgo.Member, error) {
	c.mut.Lock()
	defer c.mut.Unlock()
	out := make([]*discordgo.Member, 0, len(c.GuildMembers[guildID]))
	for _, m := range c.GuildMembers[guildID] {
		out = append(out, m)
	}
	return out, nil
}

func (c *Client) RoleAdd(guildID, userID, roleID string) error {
	c.mut.Lock()
	defer c.mut.Unlock()
	if c.RoleErr != nil {
		return c.RoleErr
	}
	m, ok := c.GuildMembers[guildID][userID]
	if !ok {
		return ErrNotFound
	}
	if !discord.HasRole(m, roleID) {
		m.Roles = append(m.Roles, roleID)
	}
	return nil
}

func (c *Client) RoleRemove(guildID, userID, roleID string) error {
	c.mut.Lock()
	defer c.mut.Unlock()
	if c.RoleErr != nil {
		return c.RoleErr
	}
	m, ok := c.GuildMembers[guildID][userID]
	if !ok {
		return ErrNotFound
	}
	roles := m.Roles[:0]
	for _, r := range m.Roles {
		if r != roleID {
			roles = append(roles, r)
		}
	}
	m.Roles = roles
	return nil
}

func (c *Client) Timeout(guildID, userID string, until *time.Time) error {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.Timeouts[guildID+"/"+userID] = until
	return nil
}

// TimeoutOf returns the timeout applied to a member.
func (c *Client) TimeoutOf(guildID, userID string) (*time.Time, bool) {
	c.mut.Lock()
	defer c.mut.Unlock()
	t, ok := c.Timeouts[guildID+"/"+userID]
	return t, ok
}

func (c *Client) Ban(guildID, userID, reason string) error {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.Bans[guildID+"/"+userID] = reason
	return nil
}

func (c *Client) Unban(guildID, userID string) error {
	c.mut.Lock()
	defer c.mut.Unlock()
	key := guildID + "/" + userID
	if _, ok := c.Bans[key]; !ok {
		return ErrNotFound
	}
	delete(c.Bans, key)
	c.Unbans = append(c.Unbans, key)
	return nil
}

func (c *Client) Kick(guildID, userID, _ string) error {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.Kicks = append(c.Kicks, guildID+"/"+userID)
	return nil
}

func (c *Client) DirectMessage(userID string, data *discordgo.MessageSend) error {
	c.mut.Lock()
	defer c.mut.Unlock()
	if c.DMErr != nil {
		return c.DMErr
	}
	c.DMs[userID] = append(c.DMs[userID], data)
	return nil
}

// ErrForbidden mimics a Discord 403, for example a user with closed DMs.
var ErrForbidden = errors.New("HTTP 403 Forbidden")
