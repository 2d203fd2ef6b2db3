package tickets

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/Jacobbrewer1/hound/pkg/entities"
)

// MaxTicketTypes is the number of types that fit on a panel next to the general button.
const MaxTicketTypes = 24

// ListTypes returns the guild's ticket types.
func (s *Service) ListTypes(guildID string) []*entities.TicketType {
	return s.Config(guildID).TicketTypes
}

// CreateType adds a ticket type. The ID is derived from the name.
func (s *Service) CreateType(ctx context.Context, guildID string, tt entities.TicketType) (*entities.TicketType, error) {
	if err := validateType(&tt); err != nil {
		return nil, err
	}

	s.mut.Lock()
	cfg := s.configLocked(guildID).Clone()
	if len(cfg.TicketTypes) >= MaxTicketTypes {
		s.mut.Unlock()
		return nil, fmt.Errorf("%w: at most %d ticket types", ErrInvalid, MaxTicketTypes)
	}

	tt.ID = uniqueTypeID(cfg.TicketTypes, tt.Name)
	created := tt
	cfg.TicketTypes = append(cfg.TicketTypes, &created)
	s.configs[guildID] = cfg
	s.mut.Unlock()

	if err := s.persist(ctx); err != nil {
		return nil, err
	}

	out := created
	return &out, nil
}

// UpdateType replaces a ticket type, keeping its ID.
func (s *Service) UpdateType(ctx context.Context, guildID, id string, tt entities.TicketType) (*entities.TicketType, error) {
	if err := validateType(&tt); err != nil {
		return nil, err
	}

	s.mut.Lock()
	cfg := s.configLocked(guildID).Clone()
	idx := -1
	for i, t := range cfg.TicketTypes {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mut.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTypeNotFound, id)
	}

	tt.ID = id
	updated := tt
	cfg.TicketTypes[idx] = &updated
	s.configs[guildID] = cfg
	s.mut.Unlock()

	if err := s.persist(ctx); err != nil {
		return nil, err
	}

	out := updated
	return &out, nil
}

// DeleteType removes a ticket type. Open tickets of the type keep their type name.
func (s *Service) DeleteType(ctx context.Context, guildID, id string) error {
	s.mut.Lock()
	cfg := s.configLocked(guildID).Clone()
	kept := make([]*entities.TicketType, 0, len(cfg.TicketTypes))
	for _, t := range cfg.TicketTypes {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(cfg.TicketTypes) {
		s.mut.Unlock()
		return fmt.Errorf("%w: %s", ErrTypeNotFound, id)
	}
	cfg.TicketTypes = kept
	s.configs[guildID] = cfg
	s.mut.Unlock()

	return s.persist(ctx)
}

func validateType(tt *entities.TicketType) error {
	tt.Name = strings.TrimSpace(tt.Name)
	if tt.Name == "" {
		return fmt.Errorf("%w: ticket type name is required", ErrInvalid)
	}
	if len(tt.Questions) > 5 {
		// A modal holds at most five inputs.
		return fmt.Errorf("%w: at most 5 questions", ErrInvalid)
	}
	for _, q := range tt.Questions {
		if strings.TrimSpace(q.Label) == "" {
			return fmt.Errorf("%w: question label is required", ErrInvalid)
		}
	}
	if tt.AutoAssignRoles == nil {
		tt.AutoAssignRoles = []string{}
	}
	if tt.Questions == nil {
		tt.Questions = []entities.TicketQuestion{}
	}
	return nil
}

// slugify lowercases the name, joins words with dashes and drops everything else that is
// not a letter or digit.
func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '_':
			dash = true
		}
	}
	if b.Len() == 0 {
		return "type"
	}
	return b.String()
}

// uniqueTypeID returns the slug of the name, suffixed with a number when it is taken.
func uniqueTypeID(existing []*entities.TicketType, name string) string {
	taken := make(map[string]struct{}, len(existing))
	for _, t := range existing {
		taken[t.ID] = struct{}{}
	}

	base := slugify(name)
	id := base
	for n := 2; ; n++ {
		if _, ok := taken[id]; !ok {
			return id
		}
		id = base + "-" + strconv.Itoa(n)
	}
}

// DeployPanel posts the open ticket panel to the channel and records where it is.
func (s *Service) DeployPanel(ctx context.Context, guildID, channelID string) (*discordgo.Message, error) {
	cfg := s.Config(guildID)

	msg, err := s.client.MessageSend(channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       cfg.Embed.Title,
			Description: cfg.Embed.Description,
			Color:       cfg.Embed.Color,
		}},
		Components: panelComponents(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("error sending ticket panel: %w", err)
	}

	s.mut.Lock()
	next := s.configLocked(guildID).Clone()
	next.PanelChannelID = channelID
	next.PanelMessageID = msg.ID
	s.configs[guildID] = next
	s.mut.Unlock()

	if err := s.persist(ctx); err != nil {
		return nil, err
	}
	return msg, nil
}
