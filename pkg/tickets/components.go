package tickets

import (
	"fmt"
	"strings"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/Jacobbrewer1/hound/pkg/entities"
)

const (
	// OpenTicketButtonID is the ID for the open general ticket button. Typed open buttons
	// append ":<typeID>".
	OpenTicketButtonID = "open_ticket_button"

	// ClaimTicketButtonID is the ID for the claim ticket button.
	ClaimTicketButtonID = "claim_ticket_button"

	// AddUserTicketButtonID is the ID for the add user button.
	AddUserTicketButtonID = "add_user_ticket_button"

	// CloseTicketButtonID is the ID for the close ticket button.
	CloseTicketButtonID = "close_ticket_button"
)

const (
	// ClaimEmoji is the emoji that will be used for the claim button. (Ticket)
	ClaimEmoji = "\U0001F3AB"

	// AddUserEmoji is the emoji that will be used for the add user button. (Bust)
	AddUserEmoji = "\U0001F464"

	// CloseEmoji is the emoji that will be used for the close button. (Padlock)
	CloseEmoji = "\U0001F510"

	// OpenEmoji is the emoji that will be used for the open ticket button. (Envelope with arrow)
	OpenEmoji = "\U0001F4E9"
)

// Embed colours.
const (
	colorOpen    = 0x00ff00
	colorClaimed = 0x5865F2
	colorClosed  = 0xff0000
)

// claimedByField is the name of the welcome embed field showing the claimant.
const claimedByField = "Claimed By"

// OpenTicketCustomID returns the custom ID of the open ticket button for a type. An empty
// type ID is a general ticket.
func OpenTicketCustomID(typeID string) string {
	if typeID == "" {
		return OpenTicketButtonID
	}
	return OpenTicketButtonID + ":" + typeID
}

// ParseOpenTicketCustomID returns the type ID of an open ticket button.
func ParseOpenTicketCustomID(customID string) (typeID string, ok bool) {
	if customID == OpenTicketButtonID {
		return "", true
	}
	typeID, ok = strings.CutPrefix(customID, OpenTicketButtonID+":")
	return typeID, ok && typeID != ""
}

// welcomeComponents are the controls posted in every new ticket.
func welcomeComponents() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    fmt.Sprintf("%s Claim", ClaimEmoji),
					Style:    discordgo.PrimaryButton,
					CustomID: ClaimTicketButtonID,
				},
				discordgo.Button{
					Label:    fmt.Sprintf("%s Add User", AddUserEmoji),
					Style:    discordgo.SecondaryButton,
					CustomID: AddUserTicketButtonID,
				},
				discordgo.Button{
					Label:    fmt.Sprintf("%s Close", CloseEmoji),
					Style:    discordgo.DangerButton,
					CustomID: CloseTicketButtonID,
				},
			},
		},
	}
}

// welcomeEmbed describes the ticket. It is rebuilt from the record whenever the claim changes.
func welcomeEmbed(t *entities.Ticket, tt *entities.TicketType) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Ticket #%04d - %s", t.Number, t.TypeName),
		Description: fmt.Sprintf("Welcome <@%s>, support will be with you shortly.\nPlease describe your issue in as much detail as you can.", t.UserID),
		Color:       colorOpen,
		Fields:      []*discordgo.MessageEmbedField{},
	}
	if tt != nil && tt.Color != 0 {
		embed.Color = tt.Color
	}

	if t.Subject != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Subject",
			Value: t.Subject,
		})
	}

	for _, r := range t.Responses {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  r.Question,
			Value: orDash(r.Answer),
		})
	}

	claimedBy := "Unclaimed"
	if t.Claimed {
		claimedBy = fmt.Sprintf("<@%s>", t.ClaimedBy)
		embed.Color = colorClaimed
	}
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:   claimedByField,
		Value:  claimedBy,
		Inline: true,
	})

	return embed
}

// panelComponents lays out the general button and one button per type, five to a row.
func panelComponents(cfg *entities.TicketConfig) []discordgo.MessageComponent {
	buttons := []discordgo.Button{{
		Label:    fmt.Sprintf("%s %s", OpenEmoji, cfg.Embed.ButtonLabel),
		Style:    discordgo.PrimaryButton,
		CustomID: OpenTicketCustomID(""),
	}}
	for _, t := range cfg.TicketTypes {
		b := discordgo.Button{
			Label:    t.Name,
			Style:    discordgo.SecondaryButton,
			CustomID: OpenTicketCustomID(t.ID),
		}
		if t.Emoji != "" {
			b.Emoji = discordgo.ComponentEmoji{Name: t.Emoji}
		}
		buttons = append(buttons, b)
	}

	// Discord allows 5 rows of 5 buttons.
	if len(buttons) > 25 {
		buttons = buttons[:25]
	}

	rows := make([]discordgo.MessageComponent, 0, (len(buttons)+4)/5)
	for i := 0; i < len(buttons); i += 5 {
		end := i + 5
		if end > len(buttons) {
			end = len(buttons)
		}
		row := discordgo.ActionsRow{}
		for _, b := range buttons[i:end] {
			row.Components = append(row.Components, b)
		}
		rows = append(rows, row)
	}
	return rows
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
