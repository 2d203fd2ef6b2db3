package roles

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/Jacobbrewer1/hound/pkg/custom"
	"github.com/Jacobbrewer1/hound/pkg/discord"
	"github.com/Jacobbrewer1/hound/pkg/entities"
	"github.com/Jacobbrewer1/hound/pkg/logging"
	"github.com/google/uuid"
)

// ButtonPrefix starts the custom ID of every role button.
const ButtonPrefix = "btnrole"

// MaxButtons is the number of buttons that fit on one message.
const MaxButtons = 25

// ButtonCustomID builds the custom ID of a role button. It stays valid for the lifetime of
// the deployed message.
func ButtonCustomID(setupID string, index int, roleID string) string {
	return fmt.Sprintf("%s:%s:%d:%s", ButtonPrefix, setupID, index, roleID)
}

// IsButtonCustomID reports whether the custom ID belongs to a role button.
func IsButtonCustomID(customID string) bool {
	return strings.HasPrefix(customID, ButtonPrefix+":")
}

// parseButtonCustomID decodes "btnrole:<setupId>:<index>:<roleId>".
func parseButtonCustomID(customID string) (setupID string, index int, roleID string, err error) {
	parts := strings.Split(customID, ":")
	if len(parts) != 4 || parts[0] != ButtonPrefix || parts[1] == "" || parts[3] == "" {
		return "", 0, "", fmt.Errorf("%w: %q", ErrInvalidButton, customID)
	}
	index, err = strconv.Atoi(parts[2])
	if err != nil || index < 0 {
		return "", 0, "", fmt.Errorf("%w: %q", ErrInvalidButton, customID)
	}
	return parts[1], index, parts[3], nil
}

func validateSetup(setup *entities.ButtonRoleSetup) error {
	if setup.GuildID == "" {
		return fmt.Errorf("%w: guild is required", ErrInvalid)
	}
	if len(setup.Buttons) == 0 {
		return fmt.Errorf("%w: at least one button is required", ErrInvalid)
	}
	if len(setup.Buttons) > MaxButtons {
		return fmt.Errorf("%w: at most %d buttons", ErrInvalid, MaxButtons)
	}
	for i, b := range setup.Buttons {
		if b.RoleID == "" {
			return fmt.Errorf("%w: button %d has no role", ErrInvalid, i)
		}
		if strings.TrimSpace(b.Label) == "" && b.Emoji == "" {
			return fmt.Errorf("%w: button %d needs a label or emoji", ErrInvalid, i)
		}
		if b.Style == "" {
			setup.Buttons[i].Style = entities.ButtonStylePrimary
		}
	}
	return nil
}

// CreateSetup stores a new button role setup. It is not posted until Deploy.
func (s *Service) CreateSetup(ctx context.Context, setup entities.ButtonRoleSetup) (*entities.ButtonRoleSetup, error) {
	if err := validateSetup(&setup); err != nil {
		return nil, err
	}

	setup.ID = uuid.NewString()
	setup.ChannelID = ""
	setup.MessageID = ""
	setup.CreatedAt = custom.Datetime(s.now().UTC())
	setup.UsageStats = make(map[string]entities.RoleUsage)

	s.mut.Lock()
	s.setups[setup.ID] = setup.Clone()
	s.mut.Unlock()

	if err := s.persist(ctx); err != nil {
		return nil, err
	}
	return setup.Clone(), nil
}

// UpdateSetup replaces the embed and buttons of a setup. A deployed message is edited to
// match.
func (s *Service) UpdateSetup(ctx context.Context, guildID, id string, update entities.ButtonRoleSetup) (*entities.ButtonRoleSetup, error) {
	update.GuildID = guildID
	if err := validateSetup(&update); err != nil {
		return nil, err
	}

	s.mut.Lock()
	current, ok := s.setups[id]
	if !ok || current.GuildID != guildID {
		s.mut.Unlock()
		return nil, ErrSetupNotFound
	}
	next := current.Clone()
	next.EmbedData = update.EmbedData
	next.Buttons = append([]entities.RoleButton(nil), update.Buttons...)
	s.setups[id] = next
	s.mut.Unlock()

	if err := s.persist(ctx); err != nil {
		return nil, err
	}

	if next.MessageID != "" {
		if _, err := s.client.MessageEdit(&discordgo.MessageEdit{
			Channel:    next.ChannelID,
			ID:         next.MessageID,
			Embed:      setupEmbed(next),
			Components: setupComponents(next),
		}); err != nil {
			s.l.Error("Error updating deployed button roles", slog.String(logging.KeyError, err.Error()))
		}
	}

	return next.Clone(), nil
}

// DeleteSetup removes a setup and its deployed message.
func (s *Service) DeleteSetup(ctx context.Context, guildID, id string) error {
	s.mut.Lock()
	setup, ok := s.setups[id]
	if !ok || setup.GuildID != guildID {
		s.mut.Unlock()
		return ErrSetupNotFound
	}
	delete(s.setups, id)
	s.mut.Unlock()

	if setup.MessageID != "" {
		if err := s.client.MessageDelete(setup.ChannelID, setup.MessageID); err != nil && !discord.IsNotFound(err) {
			s.l.Error("Error deleting button roles message", slog.String(logging.KeyError, err.Error()))
		}
	}

	return s.persist(ctx)
}

// Setup returns a setup by ID.
func (s *Service) Setup(guildID, id string) (*entities.ButtonRoleSetup, bool) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	setup, ok := s.setups[id]
	if !ok || setup.GuildID != guildID {
		return nil, false
	}
	return setup.Clone(), true
}

// Setups lists the guild's setups, oldest first.
func (s *Service) Setups(guildID string) []*entities.ButtonRoleSetup {
	s.mut.RLock()
	defer s.mut.RUnlock()

	out := make([]*entities.ButtonRoleSetup, 0)
	for _, setup := range s.setups {
		if setup.GuildID == guildID {
			out = append(out, setup.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Time().Before(out[j].CreatedAt.Time())
	})
	return out
}

// Deploy posts the setup to a channel and records the message.
func (s *Service) Deploy(ctx context.Context, guildID, id, channelID string) (*entities.ButtonRoleSetup, error) {
	setup, ok := s.Setup(guildID, id)
	if !ok {
		return nil, ErrSetupNotFound
	}

	msg, err := s.client.MessageSend(channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{setupEmbed(setup)},
		Components: setupComponents(setup),
	})
	if err != nil {
		return nil, fmt.Errorf("error sending button roles: %w", err)
	}

	s.mut.Lock()
	current, ok := s.setups[id]
	if !ok {
		s.mut.Unlock()
		return nil, ErrSetupNotFound
	}
	next := current.Clone()
	next.ChannelID = channelID
	next.MessageID = msg.ID
	s.setups[id] = next
	s.mut.Unlock()

	if err := s.persist(ctx); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

// HandleButton toggles the role of a clicked role button and reports whether it was added.
func (s *Service) HandleButton(ctx context.Context, guildID, userID, customID string) (added bool, roleID string, err error) {
	setupID, index, roleID, err := parseButtonCustomID(customID)
	if err != nil {
		return false, "", err
	}

	setup, ok := s.Setup(guildID, setupID)
	if !ok {
		return false, "", ErrSetupNotFound
	}
	if index >= len(setup.Buttons) || setup.Buttons[index].RoleID != roleID {
		return false, "", fmt.Errorf("%w: button no longer matches the setup", ErrInvalidButton)
	}

	unlock := s.members.Lock(guildID + ":" + userID)
	defer unlock()

	added, err = s.toggle(guildID, userID, roleID)
	if err != nil {
		return false, "", err
	}

	s.mut.Lock()
	if current, ok := s.setups[setupID]; ok {
		next := current.Clone()
		usage := next.UsageStats[roleID]
		if added {
			usage.Added++
		} else {
			usage.Removed++
		}
		next.UsageStats[roleID] = usage
		s.setups[setupID] = next
	}
	s.mut.Unlock()

	if err := s.persist(ctx); err != nil {
		s.l.Error("Error persisting button role usage", slog.String(logging.KeyError, err.Error()))
	}

	s.audit(guildID, userID, roleID, SourceButton, added)
	return added, roleID, nil
}

func setupEmbed(setup *entities.ButtonRoleSetup) *discordgo.MessageEmbed {
	desc := setup.EmbedData.Description
	if desc == "" {
		desc = "Click a button below to get or remove a role."
	}
	color := setup.EmbedData.Color
	if color == 0 {
		color = 0x5865F2
	}
	return &discordgo.MessageEmbed{
		Title:       setup.EmbedData.Title,
		Description: desc,
		Color:       color,
	}
}

func buttonStyle(style entities.ButtonStyle) discordgo.ButtonStyle {
	switch style {
	case entities.ButtonStyleSecondary:
		return discordgo.SecondaryButton
	case entities.ButtonStyleSuccess:
		return discordgo.SuccessButton
	case entities.ButtonStyleDanger:
		return discordgo.DangerButton
	default:
		return discordgo.PrimaryButton
	}
}

// setupComponents lays the buttons out in rows of five.
func setupComponents(setup *entities.ButtonRoleSetup) []discordgo.MessageComponent {
	var (
		rows    []discordgo.MessageComponent
		current []discordgo.MessageComponent
	)
	for i, b := range setup.Buttons {
		btn := discordgo.Button{
			Label:    b.Label,
			Style:    buttonStyle(b.Style),
			CustomID: ButtonCustomID(setup.ID, i, b.RoleID),
		}
		if b.Emoji != "" {
			btn.Emoji = componentEmoji(b.Emoji)
		}
		current = append(current, btn)

		if len(current) == 5 || i == len(setup.Buttons)-1 {
			rows = append(rows, discordgo.ActionsRow{Components: current})
			current = nil
		}
	}
	return rows
}

// componentEmoji turns a unicode or "<:name:id>" emoji into a component emoji.
func componentEmoji(emoji string) discordgo.ComponentEmoji {
	if m := customEmojiRegex.FindStringSubmatch(emoji); m != nil {
		return discordgo.ComponentEmoji{
			Name:     m[1],
			ID:       m[2],
			Animated: strings.HasPrefix(emoji, "<a:"),
		}
	}
	return discordgo.ComponentEmoji{Name: emoji}
}
