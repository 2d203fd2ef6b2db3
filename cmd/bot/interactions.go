package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/Jacobbrewer1/hound/pkg/commands"
	"github.com/Jacobbrewer1/hound/pkg/entities"
	"github.com/Jacobbrewer1/hound/pkg/logging"
	"github.com/Jacobbrewer1/hound/pkg/messages"
	"github.com/Jacobbrewer1/hound/pkg/roles"
	"github.com/Jacobbrewer1/hound/pkg/tickets"
)

const (
	// OpenTicketModalID is the custom ID prefix of the open ticket modal, followed by the
	// ticket type ID.
	OpenTicketModalID = "open_ticket_modal:"

	// AddUserModalID is the custom ID of the add user modal.
	AddUserModalID = "add_user_ticket_modal"

	// subjectInputID is the input holding a general ticket subject.
	subjectInputID = "subject"

	// questionInputID prefixes the inputs answering ticket type questions.
	questionInputID = "question_"

	addUserInputID   = "user"
	addReasonInputID = "reason"

	// interactionTimeout bounds the work done for a single interaction.
	interactionTimeout = 30 * time.Second
)

// subcommandOption is the option key the invoked sub command is stored under.
const subcommandOption = "subcommand"

func (a *App) interactionHandler() func(s *discordgo.Session, i *discordgo.InteractionCreate) {
	return func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		// Only guild interactions are handled.
		if i.GuildID == "" || i.Member == nil || i.Member.User == nil {
			return
		}

		ctx, cancel := context.WithTimeout(a.ctx, interactionTimeout)
		defer cancel()

		switch i.Type {
		case discordgo.InteractionApplicationCommand:
			a.handleSlashCommand(ctx, i)
		case discordgo.InteractionMessageComponent:
			a.handleComponent(ctx, i)
		case discordgo.InteractionModalSubmit:
			a.handleModal(ctx, i)
		}
	}
}

// invocation converts a slash command interaction. Sub command options are flattened, with
// the sub command name stored under subcommandOption.
func invocation(i *discordgo.InteractionCreate) commands.Invocation {
	data := i.ApplicationCommandData()
	inv := commands.Invocation{
		GuildID:     i.GuildID,
		ChannelID:   i.ChannelID,
		UserID:      i.Member.User.ID,
		Username:    i.Member.User.Username,
		Roles:       i.Member.Roles,
		Permissions: i.Member.Permissions,
		Name:        data.Name,
		Options:     make(map[string]string),
	}
	flattenOptions(inv.Options, data.Options)
	return inv
}

func flattenOptions(dst map[string]string, opts []*discordgo.ApplicationCommandInteractionDataOption) {
	for _, o := range opts {
		switch o.Type {
		case discordgo.ApplicationCommandOptionSubCommand, discordgo.ApplicationCommandOptionSubCommandGroup:
			dst[subcommandOption] = o.Name
			flattenOptions(dst, o.Options)
		default:
			dst[o.Name] = optionValue(o.Value)
		}
	}
}

// optionValue formats a raw option value. User, channel and role options arrive as IDs and
// numbers as float64.
func optionValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func (a *App) handleSlashCommand(ctx context.Context, i *discordgo.InteractionCreate) {
	inv := invocation(i)
	start := time.Now()
	defer func() {
		DiscordCommandDuration.WithLabelValues(inv.Name).Observe(time.Since(start).Seconds())
	}()

	reply, err := a.svc.Commands.Dispatch(ctx, inv, commands.KindSlash)
	if err != nil {
		a.replyError(i, err)
		return
	}
	if reply == nil {
		a.respondEphemeral(i, "Done.")
		return
	}
	a.respond(i, reply)
}

func (a *App) handleComponent(ctx context.Context, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID

	if typeID, ok := tickets.ParseOpenTicketCustomID(customID); ok {
		a.openTicketButton(ctx, i, typeID)
		return
	}
	if roles.IsButtonCustomID(customID) {
		a.roleButton(ctx, i, customID)
		return
	}

	switch customID {
	case tickets.ClaimTicketButtonID:
		a.claimTicketButton(ctx, i)
	case tickets.AddUserTicketButtonID:
		a.showAddUserModal(i)
	case tickets.CloseTicketButtonID:
		a.closeTicketButton(ctx, i)
	default:
		a.l.Debug("Unhandled component", slog.String("custom_id", customID))
	}
}

func (a *App) openTicketButton(ctx context.Context, i *discordgo.InteractionCreate, typeID string) {
	cfg := a.svc.Tickets.Config(i.GuildID)

	var tt *entities.TicketType
	if typeID != "" {
		var ok bool
		if tt, ok = cfg.TicketType(typeID); !ok {
			// The panel predates the removal of the type.
			a.l.Warn("Stale ticket type on panel button",
				slog.String(logging.KeyGuild, i.GuildID),
				slog.String("type_id", typeID),
			)
			typeID = ""
		}
	}

	if (tt != nil && len(tt.Questions) > 0) || (tt == nil && cfg.RequireReason) {
		a.showOpenTicketModal(i, typeID, tt)
		return
	}

	a.createTicket(ctx, i, tickets.CreateRequest{TypeID: typeID})
}

func (a *App) createTicket(ctx context.Context, i *discordgo.InteractionCreate, req tickets.CreateRequest) {
	// Creating the channel can take longer than the response window.
	if !a.deferEphemeral(i) {
		return
	}

	req.GuildID = i.GuildID
	req.UserID = i.Member.User.ID
	req.Username = i.Member.User.Username

	t, err := a.svc.Tickets.CreateTicket(ctx, req)
	if err != nil {
		a.followUpError(i, err)
		return
	}
	a.followUp(i, fmt.Sprintf("Your ticket has been created: <#%s>", t.ChannelID))
}

func (a *App) showOpenTicketModal(i *discordgo.InteractionCreate, typeID string, tt *entities.TicketType) {
	title := "Open a Ticket"
	var rows []discordgo.MessageComponent

	if tt == nil {
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{
				CustomID:    subjectInputID,
				Label:       "What do you need help with?",
				Style:       discordgo.TextInputParagraph,
				Placeholder: "Describe your issue",
				Required:    true,
				MaxLength:   1000,
			},
		}})
	} else {
		title = truncate(tt.Name, 45)
		for idx, q := range tt.Questions {
			style := discordgo.TextInputShort
			if q.Type == entities.QuestionTypeParagraph {
				style = discordgo.TextInputParagraph
			}
			rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.TextInput{
					CustomID:    questionInputID + strconv.Itoa(idx),
					Label:       truncate(q.Label, 45),
					Style:       style,
					Placeholder: truncate(q.Placeholder, 100),
					Required:    q.Required,
					MaxLength:   1000,
				},
			}})
		}
	}

	if err := a.s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   OpenTicketModalID + typeID,
			Title:      title,
			Components: rows,
		},
	}); err != nil {
		a.l.Error("Error showing ticket modal", slog.String(logging.KeyError, err.Error()))
	}
}

func (a *App) showAddUserModal(i *discordgo.InteractionCreate) {
	if _, ok := a.svc.Tickets.TicketByChannel(i.ChannelID); !ok {
		a.respondEphemeral(i, messages.ErrUserNotTicket)
		return
	}

	if err := a.s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: AddUserModalID,
			Title:    "Add User to Ticket",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    addUserInputID,
						Label:       "User",
						Style:       discordgo.TextInputShort,
						Placeholder: "Mention, user ID or username",
						Required:    true,
						MaxLength:   100,
					},
				}},
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:  addReasonInputID,
						Label:     "Reason",
						Style:     discordgo.TextInputShort,
						Required:  false,
						MaxLength: 200,
					},
				}},
			},
		},
	}); err != nil {
		a.l.Error("Error showing add user modal", slog.String(logging.KeyError, err.Error()))
	}
}

func (a *App) claimTicketButton(ctx context.Context, i *discordgo.InteractionCreate) {
	t, ok := a.svc.Tickets.TicketByChannel(i.ChannelID)
	if !ok {
		a.respondEphemeral(i, messages.ErrUserNotTicket)
		return
	}

	// The button toggles the claim for the member holding it.
	act := actor(i)
	if t.Claimed && t.ClaimedBy == act.ID {
		if _, err := a.svc.Tickets.Unclaim(ctx, i.ChannelID, act); err != nil {
			a.replyError(i, err)
			return
		}
		a.respondEphemeral(i, "You have unclaimed this ticket.")
		return
	}

	if _, err := a.svc.Tickets.Claim(ctx, i.ChannelID, act); err != nil {
		a.replyError(i, err)
		return
	}
	a.respondEphemeral(i, "You have claimed this ticket.")
}

func (a *App) closeTicketButton(ctx context.Context, i *discordgo.InteractionCreate) {
	if !a.deferEphemeral(i) {
		return
	}

	t, err := a.svc.Tickets.Close(ctx, i.ChannelID, actor(i), fmt.Sprintf("Closed by %s", i.Member.User.Username))
	if err != nil {
		a.followUpError(i, err)
		return
	}
	if t.NoCloseDelay {
		a.followUp(i, "Ticket closed.")
		return
	}
	a.followUp(i, fmt.Sprintf("Ticket closed. This channel will be deleted in %d seconds.", int(tickets.CloseDelay.Seconds())))
}

func (a *App) roleButton(ctx context.Context, i *discordgo.InteractionCreate, customID string) {
	added, roleID, err := a.svc.Roles.HandleButton(ctx, i.GuildID, i.Member.User.ID, customID)
	if err != nil {
		a.replyError(i, err)
		return
	}
	if added {
		a.respondEphemeral(i, fmt.Sprintf("✅ You now have <@&%s>.", roleID))
		return
	}
	a.respondEphemeral(i, fmt.Sprintf("❎ <@&%s> has been removed.", roleID))
}

// modalValues maps the input IDs of a submitted modal to their values.
func modalValues(data discordgo.ModalSubmitInteractionData) map[string]string {
	values := make(map[string]string)
	for _, c := range data.Components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, rc := range row.Components {
			if input, ok := rc.(*discordgo.TextInput); ok {
				values[input.CustomID] = strings.TrimSpace(input.Value)
			}
		}
	}
	return values
}

func (a *App) handleModal(ctx context.Context, i *discordgo.InteractionCreate) {
	data := i.ModalSubmitData()
	values := modalValues(data)

	if typeID, ok := strings.CutPrefix(data.CustomID, OpenTicketModalID); ok {
		a.createTicket(ctx, i, ticketRequest(a.svc.Tickets.Config(i.GuildID), typeID, values))
		return
	}

	switch data.CustomID {
	case AddUserModalID:
		userID, err := a.svc.Tickets.AddUser(ctx, i.ChannelID, actor(i), values[addUserInputID], values[addReasonInputID])
		switch {
		case errors.Is(err, tickets.ErrAlreadyAdded):
			a.respondEphemeral(i, fmt.Sprintf(messages.ErrUserAlreadyAdded, userID))
		case err != nil:
			a.replyError(i, err)
		default:
			a.respondEphemeral(i, fmt.Sprintf("<@%s> has been added to the ticket.", userID))
		}
	default:
		a.l.Debug("Unhandled modal", slog.String("custom_id", data.CustomID))
	}
}

// ticketRequest builds the create request from the open ticket modal.
func ticketRequest(cfg *entities.TicketConfig, typeID string, values map[string]string) tickets.CreateRequest {
	req := tickets.CreateRequest{
		TypeID:  typeID,
		Subject: values[subjectInputID],
	}
	for _, tt := range cfg.TicketTypes {
		if tt.ID != typeID {
			continue
		}
		for idx, q := range tt.Questions {
			req.Responses = append(req.Responses, entities.TicketResponse{
				Question: q.Label,
				Answer:   values[questionInputID+strconv.Itoa(idx)],
			})
		}
	}
	return req
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
