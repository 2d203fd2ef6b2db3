package tickets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/Jacobbrewer1/hound/pkg/custom"
	"github.com/Jacobbrewer1/hound/pkg/discord"
	"github.com/Jacobbrewer1/hound/pkg/entities"
	"github.com/Jacobbrewer1/hound/pkg/events"
	"github.com/Jacobbrewer1/hound/pkg/logging"
	"github.com/google/uuid"
)

// CreateRequest is a request to open a ticket.
type CreateRequest struct {
	GuildID  string
	UserID   string
	Username string

	// TypeID selects a ticket type. Empty opens a general ticket.
	TypeID string

	Subject   string
	Responses []entities.TicketResponse
}

// CreateTicket opens a ticket channel for the user. Nothing is recorded if the channel
// cannot be created.
func (s *Service) CreateTicket(ctx context.Context, req CreateRequest) (*entities.Ticket, error) {
	l := s.l.With(
		slog.String(logging.KeyGuild, req.GuildID),
		slog.String(logging.KeyUser, req.UserID),
	)

	// Get the guild configuration.
	cfg := s.Config(req.GuildID)
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	// Get the ticket type. A type that no longer resolves, for example from a panel
	// deployed before the type was deleted, opens a general ticket.
	var tt *entities.TicketType
	if req.TypeID != "" {
		t, ok := cfg.TicketType(req.TypeID)
		if !ok {
			l.Warn("Ticket type not found, opening a general ticket", slog.String("type_id", req.TypeID))
		}
		tt = t
	}

	if cfg.RequireReason && tt == nil && strings.TrimSpace(req.Subject) == "" {
		return nil, fmt.Errorf("%w: a reason is required", ErrInvalid)
	}
	if tt != nil {
		if err := checkResponses(tt, req.Responses); err != nil {
			return nil, err
		}
	}

	// Reserve a slot against the user's cap.
	res, err := s.reserve(cfg, req.GuildID, req.UserID)
	if err != nil {
		return nil, err
	}
	defer s.release(res)

	// Ensure that the category exists.
	categoryID := cfg.CategoryID
	if tt != nil && tt.CategoryID != "" {
		categoryID = tt.CategoryID
	}
	if categoryID != "" {
		if _, err := s.client.Channel(categoryID); err != nil {
			if discord.IsNotFound(err) {
				return nil, fmt.Errorf("%w: %s", ErrCategoryNotFound, categoryID)
			}
			return nil, fmt.Errorf("error getting category: %w", err)
		}
	}

	now := custom.Datetime(s.now().UTC())
	ticket := &entities.Ticket{
		ID:           uuid.NewString(),
		Number:       res.number,
		UserID:       req.UserID,
		Username:     req.Username,
		GuildID:      req.GuildID,
		Subject:      req.Subject,
		TypeName:     entities.GeneralTicketTypeName,
		Responses:    append([]entities.TicketResponse{}, req.Responses...),
		CreatedAt:    now,
		LastActivity: now,
		Status:       entities.TicketStatusOpen,
		Priority:     "normal",
		AddedUsers:   []string{},
	}
	if tt != nil {
		ticket.TypeID = tt.ID
		ticket.TypeName = tt.Name
	}

	// Create the ticket channel only the staff and the creator can see.
	overwrites := []*discordgo.PermissionOverwrite{
		// Deny @everyone from seeing the ticket.
		{
			ID:   req.GuildID,
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: discordgo.PermissionViewChannel,
		},
		// The creator of the ticket can see the ticket.
		{
			ID:    req.UserID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: discord.PermissionTicketAccess,
			Deny:  discordgo.PermissionMentionEveryone,
		},
	}
	staffRoles := append([]string{}, cfg.SupportRoles...)
	if tt != nil {
		staffRoles = append(staffRoles, tt.AutoAssignRoles...)
	}
	for _, role := range dedupe(staffRoles) {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    role,
			Type:  discordgo.PermissionOverwriteTypeRole,
			Allow: discord.PermissionTicketAccess | discordgo.PermissionManageMessages,
		})
	}

	topic := fmt.Sprintf("Ticket created by %s", req.Username)
	if ticket.Subject != "" {
		topic = fmt.Sprintf("%s | %s", topic, ticket.Subject)
	}

	channel, err := s.client.ChannelCreate(req.GuildID, discordgo.GuildChannelCreateData{
		Name:                 ticket.Name(),
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                topic,
		ParentID:             categoryID,
		PermissionOverwrites: overwrites,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating ticket channel: %w", err)
	}
	ticket.ChannelID = channel.ID

	// Send the welcome message with the ticket controls.
	content := fmt.Sprintf("<@%s>", req.UserID)
	if cfg.MentionSupport {
		for _, role := range cfg.SupportRoles {
			content += fmt.Sprintf(" <@&%s>", role)
		}
	}
	msg, err := s.client.MessageSend(channel.ID, &discordgo.MessageSend{
		Content:    content,
		Embeds:     []*discordgo.MessageEmbed{welcomeEmbed(ticket, tt)},
		Components: welcomeComponents(),
	})
	if err != nil {
		// Remove the half made ticket so the user is not left with an unusable channel.
		if delErr := s.client.ChannelDelete(channel.ID); delErr != nil {
			l.Error("Error removing ticket channel after failed setup", slog.String(logging.KeyError, delErr.Error()))
		}
		return nil, fmt.Errorf("error sending welcome message: %w", err)
	}
	ticket.WelcomeMessageID = msg.ID

	// Commit the ticket.
	s.mut.Lock()
	s.active[ticket.ChannelID] = ticket
	s.releaseLocked(res)
	s.mut.Unlock()

	if err := s.persist(ctx); err != nil {
		l.Error("Error persisting new ticket", slog.String(logging.KeyError, err.Error()))
	}

	ticketsCreated.WithLabelValues(ticket.TypeName).Inc()
	l.Info("Ticket created",
		slog.String(logging.KeyTicket, ticket.ID),
		slog.String(logging.KeyChannel, ticket.ChannelID),
	)

	s.logToChannel(cfg, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "Ticket Created",
			Description: fmt.Sprintf("<@%s> opened <#%s>", ticket.UserID, ticket.ChannelID),
			Color:       colorOpen,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Ticket", Value: ticket.Name(), Inline: true},
				{Name: "Type", Value: ticket.TypeName, Inline: true},
				{Name: "Subject", Value: orDash(ticket.Subject)},
			},
		}},
	})

	s.emitter.Emit(events.TicketCreated, ticket.Clone())

	return ticket.Clone(), nil
}

// reservation holds a slot against a user's ticket cap while the ticket is being created.
type reservation struct {
	key    string
	number int
	done   bool
}

// reserve checks the user's cap counting tickets still being created, and takes the next
// ticket number.
func (s *Service) reserve(cfg *entities.TicketConfig, guildID, userID string) (*reservation, error) {
	key := guildID + ":" + userID

	s.mut.Lock()
	defer s.mut.Unlock()

	count := s.reserved[key]
	for _, t := range s.active {
		if t.GuildID == guildID && t.UserID == userID {
			count++
		}
	}

	limit := cfg.MaxTicketsPerUser
	if limit < 1 {
		limit = 1
	}
	if count >= limit {
		return nil, fmt.Errorf("%w: %d", ErrTicketLimit, limit)
	}

	s.reserved[key]++
	s.counters[guildID]++

	return &reservation{key: key, number: s.counters[guildID]}, nil
}

// release drops a reservation that was not committed.
func (s *Service) release(res *reservation) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.releaseLocked(res)
}

func (s *Service) releaseLocked(res *reservation) {
	if res.done {
		return
	}
	res.done = true
	s.reserved[res.key]--
	if s.reserved[res.key] <= 0 {
		delete(s.reserved, res.key)
	}
}

// checkResponses validates the answers against the type's required questions.
func checkResponses(tt *entities.TicketType, responses []entities.TicketResponse) error {
	answers := make(map[string]string, len(responses))
	for _, r := range responses {
		answers[r.Question] = r.Answer
	}
	for _, q := range tt.Questions {
		if q.Required && strings.TrimSpace(answers[q.Label]) == "" {
			return fmt.Errorf("%w: %q is required", ErrInvalid, q.Label)
		}
	}
	return nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
