package entities

import "github.com/Jacobbrewer1/hound/pkg/custom"

// CommandStats counts command usage.
type CommandStats struct {
	TotalCommands int             `json:"totalCommands" bson:"total_commands"`
	Commands      map[string]int  `json:"commands" bson:"commands"`
	LastUsed      custom.Datetime `json:"lastUsed,omitempty" bson:"last_used,omitempty"`
}

// CustomCommand is a guild defined prefix command that replies with fixed text.
type CustomCommand struct {
	Name      string          `json:"name" bson:"name"`
	GuildID   string          `json:"guildId" bson:"guild_id"`
	Response  string          `json:"response" bson:"response"`
	CreatedBy string          `json:"createdBy" bson:"created_by"`
	CreatedAt custom.Datetime `json:"createdAt" bson:"created_at"`
	Uses      int             `json:"uses" bson:"uses"`
}
