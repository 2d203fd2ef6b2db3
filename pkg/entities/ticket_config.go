package entities

// QuestionType is the input style of a ticket type question.
type QuestionType string

const (
	QuestionTypeShort     QuestionType = "short"
	QuestionTypeParagraph QuestionType = "paragraph"
)

// TicketQuestion is a question asked when a typed ticket is opened.
type TicketQuestion struct {
	Label       string       `json:"label" bson:"label"`
	Placeholder string       `json:"placeholder" bson:"placeholder"`
	Required    bool         `json:"required" bson:"required"`
	Type        QuestionType `json:"type" bson:"type"`
}

// TicketType is a configurable kind of ticket.
type TicketType struct {
	ID          string `json:"id" bson:"id"`
	Name        string `json:"name" bson:"name"`
	Description string `json:"description" bson:"description"`
	Emoji       string `json:"emoji" bson:"emoji"`
	Color       int    `json:"color" bson:"color"`

	// CategoryID overrides the guild ticket category for this type.
	CategoryID string `json:"categoryId,omitempty" bson:"category_id,omitempty"`

	// AutoAssignRoles are given access to tickets of this type on top of the support roles.
	AutoAssignRoles []string `json:"autoAssignRoles" bson:"auto_assign_roles"`

	Questions []TicketQuestion `json:"questions" bson:"questions"`
}

// TicketEmbed customises the ticket panel message.
type TicketEmbed struct {
	Title       string `json:"title" bson:"title"`
	Description string `json:"description" bson:"description"`
	Color       int    `json:"color" bson:"color"`
	ButtonLabel string `json:"buttonLabel" bson:"button_label"`
}

// TicketConfig is the per guild ticket configuration.
type TicketConfig struct {
	// Enabled is whether ticketing is enabled.
	Enabled bool `json:"enabled" bson:"enabled"`

	// CategoryID is the ID of the category that created tickets are put in.
	CategoryID string `json:"categoryId" bson:"category_id"`

	// SupportRoles are the roles that handle tickets.
	SupportRoles []string `json:"supportRoles" bson:"support_roles"`

	MaxTicketsPerUser int  `json:"maxTicketsPerUser" bson:"max_tickets_per_user"`
	RequireReason     bool `json:"requireReason" bson:"require_reason"`
	MentionSupport    bool `json:"mentionSupport" bson:"mention_support"`

	// LogChannelID is where ticket audit embeds and transcripts are posted.
	LogChannelID string `json:"logChannelId" bson:"log_channel_id"`

	TicketTypes []*TicketType `json:"ticketTypes" bson:"ticket_types"`
	Embed       TicketEmbed   `json:"embed" bson:"embed"`

	// PanelChannelID and PanelMessageID locate the deployed open ticket panel.
	PanelChannelID string `json:"panelChannelId,omitempty" bson:"panel_channel_id,omitempty"`
	PanelMessageID string `json:"panelMessageId,omitempty" bson:"panel_message_id,omitempty"`
}

// DefaultTicketConfig returns the configuration used for guilds that have not configured tickets.
func DefaultTicketConfig() *TicketConfig {
	return &TicketConfig{
		Enabled:           false,
		MaxTicketsPerUser: 1,
		MentionSupport:    true,
		TicketTypes:       []*TicketType{},
		SupportRoles:      []string{},
		Embed: TicketEmbed{
			Title:       "Support Tickets",
			Description: "Need help? Click a button below to open a ticket with our staff.",
			Color:       0x5865F2,
			ButtonLabel: "Open Ticket",
		},
	}
}

// TicketType returns the ticket type with the given ID.
func (c *TicketConfig) TicketType(id string) (*TicketType, bool) {
	for _, t := range c.TicketTypes {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// IsSupport reports whether any of the roles is a support role.
func (c *TicketConfig) IsSupport(roles []string) bool {
	for _, r := range roles {
		for _, s := range c.SupportRoles {
			if r == s {
				return true
			}
		}
	}
	return false
}

// Clone returns a deep copy of the configuration.
func (c *TicketConfig) Clone() *TicketConfig {
	if c == nil {
		return nil
	}
	cp := *c
	cp.SupportRoles = append([]string(nil), c.SupportRoles...)
	cp.TicketTypes = make([]*TicketType, 0, len(c.TicketTypes))
	for _, t := range c.TicketTypes {
		tc := *t
		tc.AutoAssignRoles = append([]string(nil), t.AutoAssignRoles...)
		tc.Questions = append([]TicketQuestion(nil), t.Questions...)
		cp.TicketTypes = append(cp.TicketTypes, &tc)
	}
	return &cp
}
