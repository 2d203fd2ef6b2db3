package entities

import (
	"fmt"

	"github.com/Jacobbrewer1/hound/pkg/custom"
)

// ReactionRoleBinding binds a reaction on a message to a role.
type ReactionRoleBinding struct {
	MessageID  string `json:"messageId" bson:"message_id"`
	Emoji      string `json:"emoji" bson:"emoji"`
	RoleID     string `json:"roleId" bson:"role_id"`
	GuildID    string `json:"guildId" bson:"guild_id"`
	ChannelID  string `json:"channelId" bson:"channel_id"`
	UsageCount int    `json:"usageCount" bson:"usage_count"`
}

// ReactionRoleKey is the key of a reaction role binding.
func ReactionRoleKey(messageID, emoji string) string {
	return fmt.Sprintf("%s:%s", messageID, emoji)
}

// Key returns the binding key.
func (b *ReactionRoleBinding) Key() string {
	return ReactionRoleKey(b.MessageID, b.Emoji)
}

// ButtonStyle is the style of a role button.
type ButtonStyle string

const (
	ButtonStylePrimary   ButtonStyle = "primary"
	ButtonStyleSecondary ButtonStyle = "secondary"
	ButtonStyleSuccess   ButtonStyle = "success"
	ButtonStyleDanger    ButtonStyle = "danger"
)

// RoleButton is a single button on a button role message.
type RoleButton struct {
	RoleID string      `json:"roleId" bson:"role_id"`
	Label  string      `json:"label" bson:"label"`
	Emoji  string      `json:"emoji" bson:"emoji"`
	Style  ButtonStyle `json:"style" bson:"style"`
}

// EmbedData is the embed shown above the role buttons.
type EmbedData struct {
	Title       string `json:"title" bson:"title"`
	Description string `json:"description" bson:"description"`
	Color       int    `json:"color" bson:"color"`
}

// RoleUsage counts how often a role was toggled through a setup.
type RoleUsage struct {
	Added   int `json:"added" bson:"added"`
	Removed int `json:"removed" bson:"removed"`
}

// ButtonRoleSetup is a deployed (or deployable) message with role buttons.
type ButtonRoleSetup struct {
	ID         string               `json:"id" bson:"id"`
	EmbedData  EmbedData            `json:"embedData" bson:"embed_data"`
	Buttons    []RoleButton         `json:"buttons" bson:"buttons"`
	GuildID    string               `json:"guildId" bson:"guild_id"`
	ChannelID  string               `json:"channelId" bson:"channel_id"`
	MessageID  string               `json:"messageId" bson:"message_id"`
	UsageStats map[string]RoleUsage `json:"usageStats" bson:"usage_stats"`
	CreatedAt  custom.Datetime      `json:"createdAt" bson:"created_at"`
}

// Clone returns a deep copy of the setup.
func (s *ButtonRoleSetup) Clone() *ButtonRoleSetup {
	if s == nil {
		return nil
	}
	c := *s
	c.Buttons = append([]RoleButton(nil), s.Buttons...)
	c.UsageStats = make(map[string]RoleUsage, len(s.UsageStats))
	for k, v := range s.UsageStats {
		c.UsageStats[k] = v
	}
	return &c
}

// RoleLogConfig controls the role audit log of a guild.
type RoleLogConfig struct {
	Enabled          bool   `json:"enabled" bson:"enabled"`
	ChannelID        string `json:"channelId" bson:"channel_id"`
	LogRoleAdded     bool   `json:"logRoleAdded" bson:"log_role_added"`
	LogRoleRemoved   bool   `json:"logRoleRemoved" bson:"log_role_removed"`
	LogButtonRoles   bool   `json:"logButtonRoles" bson:"log_button_roles"`
	LogReactionRoles bool   `json:"logReactionRoles" bson:"log_reaction_roles"`
}

// AutomationTrigger is the event an automation rule reacts to.
type AutomationTrigger string

// AutomationTriggerMemberJoin fires when a member joins the guild.
const AutomationTriggerMemberJoin AutomationTrigger = "member_join"

// AutomationRule grants a role when its trigger fires.
type AutomationRule struct {
	ID      string            `json:"id" bson:"id"`
	GuildID string            `json:"guildId" bson:"guild_id"`
	Trigger AutomationTrigger `json:"trigger" bson:"trigger"`
	RoleID  string            `json:"roleId" bson:"role_id"`
	Enabled bool              `json:"enabled" bson:"enabled"`
}
