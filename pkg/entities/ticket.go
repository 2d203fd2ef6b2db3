package entities

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Jacobbrewer1/hound/pkg/custom"
)

// TicketStatus is the lifecycle state of a ticket record.
type TicketStatus string

const (
	// TicketStatusOpen is a ticket in the active collection.
	TicketStatusOpen TicketStatus = "open"

	// TicketStatusClosed is a ticket in the closed collection.
	TicketStatusClosed TicketStatus = "closed"
)

// GeneralTicketTypeName is the type name given to tickets created without a ticket type.
const GeneralTicketTypeName = "General Support"

// TicketResponse is an answer to a ticket type question.
type TicketResponse struct {
	Question string `json:"question" bson:"question"`
	Answer   string `json:"answer" bson:"answer"`
}

// Ticket is a private support conversation.
type Ticket struct {
	// ID is the unique identifier of the ticket.
	ID string `json:"id" bson:"id"`

	// Number is the per guild sequence number of the ticket.
	// This is used to name the channel with the users name, for example "0001-alice".
	Number int `json:"number" bson:"number"`

	// UserID is the ID of the user that created the ticket.
	UserID string `json:"userId" bson:"user_id"`

	// Username is the username of the user that created the ticket.
	Username string `json:"username" bson:"username"`

	// ChannelID is the ID of the channel that the ticket is in.
	ChannelID string `json:"channelId" bson:"channel_id"`

	// GuildID is the ID of the guild that the ticket is in.
	GuildID string `json:"guildId" bson:"guild_id"`

	Subject string `json:"subject" bson:"subject"`

	// TypeID is the ticket type, empty for general support tickets.
	TypeID   string `json:"typeId,omitempty" bson:"type_id,omitempty"`
	TypeName string `json:"typeName" bson:"type_name"`

	Responses []TicketResponse `json:"responses" bson:"responses"`

	CreatedAt    custom.Datetime `json:"createdAt" bson:"created_at"`
	LastActivity custom.Datetime `json:"lastActivity" bson:"last_activity"`

	Status   TicketStatus `json:"status" bson:"status"`
	Priority string       `json:"priority" bson:"priority"`

	Claimed   bool            `json:"claimed" bson:"claimed"`
	ClaimedBy string          `json:"claimedBy,omitempty" bson:"claimed_by,omitempty"`
	ClaimedAt custom.Datetime `json:"claimedAt,omitempty" bson:"claimed_at,omitempty"`

	// AddedUsers are the users granted access after creation.
	AddedUsers []string `json:"addedUsers" bson:"added_users"`

	// NoCloseDelay stops the channel from being deleted automatically when the ticket closes.
	NoCloseDelay bool `json:"noCloseDelay" bson:"no_close_delay"`

	// WelcomeMessageID is the ID of the message holding the ticket controls.
	WelcomeMessageID string `json:"welcomeMessageId,omitempty" bson:"welcome_message_id,omitempty"`

	ClosedAt    custom.Datetime `json:"closedAt,omitempty" bson:"closed_at,omitempty"`
	ClosedBy    string          `json:"closedBy,omitempty" bson:"closed_by,omitempty"`
	CloseReason string          `json:"closeReason,omitempty" bson:"close_reason,omitempty"`
	Duration    string          `json:"duration,omitempty" bson:"duration,omitempty"`
}

var channelNameRegex = regexp.MustCompile(`[^a-z0-9-]+`)

// Name returns the channel name of the ticket.
func (t *Ticket) Name() string {
	user := channelNameRegex.ReplaceAllString(strings.ToLower(t.Username), "")
	if user == "" {
		user = "user"
	}
	return fmt.Sprintf("%04d-%s", t.Number, user)
}

// HasAccess reports whether the user is the owner or has been added to the ticket.
func (t *Ticket) HasAccess(userID string) bool {
	if t.UserID == userID {
		return true
	}
	for _, id := range t.AddedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the ticket.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	c.Responses = append([]TicketResponse(nil), t.Responses...)
	c.AddedUsers = append([]string(nil), t.AddedUsers...)
	return &c
}
