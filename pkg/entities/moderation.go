package entities

import (
	"time"

	"github.com/Jacobbrewer1/hound/pkg/custom"
)

// SystemModeratorID is the moderator ID recorded for automatic actions.
const SystemModeratorID = "system"

// Warning is a warning issued to a user. Warnings are never deleted, only deactivated.
type Warning struct {
	ID          string          `json:"id" bson:"id"`
	GuildID     string          `json:"guildId" bson:"guild_id"`
	UserID      string          `json:"userId" bson:"user_id"`
	ModeratorID string          `json:"moderatorId" bson:"moderator_id"`
	Reason      string          `json:"reason" bson:"reason"`
	CreatedAt   custom.Datetime `json:"createdAt" bson:"created_at"`
	Active      bool            `json:"active" bson:"active"`
	RemovedAt   custom.Datetime `json:"removedAt,omitempty" bson:"removed_at,omitempty"`
	RemovedBy   string          `json:"removedBy,omitempty" bson:"removed_by,omitempty"`
}

// PunishmentType is the kind of punishment applied.
type PunishmentType string

const (
	PunishmentMute PunishmentType = "mute"
	PunishmentKick PunishmentType = "kick"
	PunishmentBan  PunishmentType = "ban"

	// PunishmentUnban is only used as a moderation log action.
	PunishmentUnban PunishmentType = "unban"
)

// Punishment is a punishment applied to a user. Like warnings, punishments are soft-deleted.
type Punishment struct {
	ID          string          `json:"id" bson:"id"`
	GuildID     string          `json:"guildId" bson:"guild_id"`
	UserID      string          `json:"userId" bson:"user_id"`
	ModeratorID string          `json:"moderatorId" bson:"moderator_id"`
	Type        PunishmentType  `json:"type" bson:"type"`
	Reason      string          `json:"reason" bson:"reason"`
	Duration    time.Duration   `json:"duration" bson:"duration"`
	ExpiresAt   custom.Datetime `json:"expiresAt,omitempty" bson:"expires_at,omitempty"`
	Auto        bool            `json:"auto" bson:"auto"`
	CreatedAt   custom.Datetime `json:"createdAt" bson:"created_at"`
	Active      bool            `json:"active" bson:"active"`
	RemovedAt   custom.Datetime `json:"removedAt,omitempty" bson:"removed_at,omitempty"`
	RemovedBy   string          `json:"removedBy,omitempty" bson:"removed_by,omitempty"`
}

// ModerationLog is an entry in the moderation audit trail.
type ModerationLog struct {
	ID          string          `json:"id" bson:"id"`
	GuildID     string          `json:"guildId" bson:"guild_id"`
	Action      string          `json:"action" bson:"action"`
	UserID      string          `json:"userId" bson:"user_id"`
	ModeratorID string          `json:"moderatorId" bson:"moderator_id"`
	Reason      string          `json:"reason" bson:"reason"`
	CreatedAt   custom.Datetime `json:"createdAt" bson:"created_at"`
}

// SpamConfig configures the spam detector.
type SpamConfig struct {
	Enabled        bool `json:"enabled" bson:"enabled"`
	MaxMessages    int  `json:"maxMessages" bson:"max_messages"`
	WindowSeconds  int  `json:"windowSeconds" bson:"window_seconds"`
	TimeoutMinutes int  `json:"timeoutMinutes" bson:"timeout_minutes"`
}

// ProfanityConfig configures the profanity detector.
type ProfanityConfig struct {
	Enabled bool     `json:"enabled" bson:"enabled"`
	Words   []string `json:"words" bson:"words"`
}

// LinkConfig configures the link detector.
type LinkConfig struct {
	Enabled        bool     `json:"enabled" bson:"enabled"`
	AllowedDomains []string `json:"allowedDomains" bson:"allowed_domains"`
}

// CapsConfig configures the caps detector.
type CapsConfig struct {
	Enabled   bool `json:"enabled" bson:"enabled"`
	MinLength int  `json:"minLength" bson:"min_length"`
	Percent   int  `json:"percent" bson:"percent"`
}

// RaidConfig configures raid detection.
type RaidConfig struct {
	Enabled       bool `json:"enabled" bson:"enabled"`
	JoinThreshold int  `json:"joinThreshold" bson:"join_threshold"`
	SlowmodeSecs  int  `json:"slowmodeSeconds" bson:"slowmode_seconds"`
}

// AutoModConfig is the per guild auto moderation configuration.
type AutoModConfig struct {
	Enabled      bool            `json:"enabled" bson:"enabled"`
	Spam         SpamConfig      `json:"spam" bson:"spam"`
	Profanity    ProfanityConfig `json:"profanity" bson:"profanity"`
	Links        LinkConfig      `json:"links" bson:"links"`
	Caps         CapsConfig      `json:"caps" bson:"caps"`
	Raid         RaidConfig      `json:"raid" bson:"raid"`
	LogChannelID string          `json:"logChannelId" bson:"log_channel_id"`
	ExemptRoles  []string        `json:"exemptRoles" bson:"exempt_roles"`
}

// DefaultAutoModConfig returns the auto moderation defaults.
func DefaultAutoModConfig() *AutoModConfig {
	return &AutoModConfig{
		Enabled: false,
		Spam: SpamConfig{
			Enabled:        true,
			MaxMessages:    5,
			WindowSeconds:  5,
			TimeoutMinutes: 5,
		},
		Profanity: ProfanityConfig{Enabled: false, Words: []string{}},
		Links:     LinkConfig{Enabled: false, AllowedDomains: []string{}},
		Caps:      CapsConfig{Enabled: false, MinLength: 10, Percent: 70},
		Raid:      RaidConfig{Enabled: false, JoinThreshold: 10, SlowmodeSecs: 30},
	}
}
