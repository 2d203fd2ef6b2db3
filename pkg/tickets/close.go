package tickets

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/Jacobbrewer1/hound/pkg/custom"
	"github.com/Jacobbrewer1/hound/pkg/discord"
	"github.com/Jacobbrewer1/hound/pkg/entities"
	"github.com/Jacobbrewer1/hound/pkg/events"
	"github.com/Jacobbrewer1/hound/pkg/logging"
	"github.com/Jacobbrewer1/hound/pkg/tasks"
)

// deleteChannelPayload is the payload of a ticket channel deletion task.
type deleteChannelPayload struct {
	TicketID  string `json:"ticketId"`
	ChannelID string `json:"channelId"`
}

// Close closes the ticket. The record moves to the closed tickets, a transcript is posted to
// the log channel and the channel is deleted after CloseDelay unless the delay was removed.
func (s *Service) Close(ctx context.Context, ref string, actor Actor, reason string) (*entities.Ticket, error) {
	t, ok := s.lookup(ref)
	if !ok {
		return nil, ErrNotTicket
	}

	unlock := s.locks.Lock(t.ChannelID)
	defer unlock()

	t, ok = s.lookup(t.ChannelID)
	if !ok {
		return nil, ErrNotTicket
	}

	cfg := s.Config(t.GuildID)
	if err := s.authorizeOwnerOrStaff(cfg, t, actor); err != nil {
		return nil, err
	}

	// Take the transcript before anything is removed.
	transcript, err := s.transcript(t)
	if err != nil {
		s.l.Error("Error building ticket transcript",
			slog.String(logging.KeyTicket, t.ID),
			slog.String(logging.KeyError, err.Error()),
		)
	}

	now := s.now().UTC()
	closed := t.Clone()
	closed.Status = entities.TicketStatusClosed
	closed.ClosedAt = custom.Datetime(now)
	closed.ClosedBy = actor.ID
	closed.CloseReason = reason
	closed.LastActivity = custom.Datetime(now)
	closed.Duration = custom.HumanDuration(now.Sub(t.CreatedAt.Time()))

	// Move the record in one step.
	s.mut.Lock()
	delete(s.active, closed.ChannelID)
	s.closed[closed.ID] = closed
	s.mut.Unlock()

	s.persistAndLog(ctx)
	ticketsClosed.Inc()

	s.l.Info("Ticket closed",
		slog.String(logging.KeyTicket, closed.ID),
		slog.String(logging.KeyUser, actor.ID),
	)

	closeEmbed := &discordgo.MessageEmbed{
		Title:       "Ticket Closed",
		Description: fmt.Sprintf("%s (<#%s>) was closed by <@%s>", closed.Name(), closed.ChannelID, actor.ID),
		Color:       colorClosed,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Opened By", Value: fmt.Sprintf("<@%s>", closed.UserID), Inline: true},
			{Name: "Type", Value: closed.TypeName, Inline: true},
			{Name: "Duration", Value: closed.Duration, Inline: true},
			{Name: "Reason", Value: orDash(reason)},
		},
	}
	if closed.Claimed {
		closeEmbed.Fields = append(closeEmbed.Fields, &discordgo.MessageEmbedField{
			Name: claimedByField, Value: fmt.Sprintf("<@%s>", closed.ClaimedBy), Inline: true,
		})
	}

	logMsg := &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{closeEmbed}}
	if transcript != nil {
		logMsg.Files = []*discordgo.File{{
			Name:        fmt.Sprintf("transcript-%s.txt", closed.Name()),
			ContentType: "text/plain",
			Reader:      bytes.NewReader(transcript),
		}}
	}
	s.logToChannel(cfg, logMsg)

	// DM the owner. Members with closed DMs are expected.
	if err := s.client.DirectMessage(closed.UserID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{closeEmbed},
	}); err != nil {
		s.l.Debug("Could not DM ticket owner", slog.String(logging.KeyError, err.Error()))
	}

	s.emitter.Emit(events.TicketClosed, closed.Clone())

	// Schedule the deletion of the channel.
	notice := "This ticket has been closed. The channel will be kept."
	if !closed.NoCloseDelay {
		notice = fmt.Sprintf("This ticket has been closed. The channel will be deleted in %d seconds.", int(CloseDelay/time.Second))
		if _, err := s.tasks.Schedule(ctx, tasks.KindDeleteTicketChannel, CloseDelay, &deleteChannelPayload{
			TicketID:  closed.ID,
			ChannelID: closed.ChannelID,
		}); err != nil {
			s.l.Error("Error scheduling ticket channel deletion", slog.String(logging.KeyError, err.Error()))
		}
	}
	if _, err := s.client.MessageSend(closed.ChannelID, &discordgo.MessageSend{Content: notice}); err != nil {
		s.l.Error("Error sending close notice", slog.String(logging.KeyError, err.Error()))
	}

	return closed.Clone(), nil
}

// RemoveCloseDelay keeps the channel of the ticket when it closes. It also applies to a
// ticket that has closed and is waiting for deletion.
func (s *Service) RemoveCloseDelay(ctx context.Context, ref string, actor Actor) error {
	// Closed tickets still waiting for deletion.
	if closed, ok := s.closedByRef(ref); ok {
		cfg := s.Config(closed.GuildID)
		staff, err := s.isStaff(cfg, actor, closed.ChannelID)
		if err != nil {
			return err
		}
		if !staff {
			return ErrForbidden
		}

		s.mut.Lock()
		next := closed.Clone()
		next.NoCloseDelay = true
		s.closed[next.ID] = next
		s.mut.Unlock()

		return s.persist(ctx)
	}

	t, ok := s.lookup(ref)
	if !ok {
		return ErrNotTicket
	}

	unlock := s.locks.Lock(t.ChannelID)
	defer unlock()

	t, ok = s.lookup(t.ChannelID)
	if !ok {
		return ErrNotTicket
	}

	cfg := s.Config(t.GuildID)
	staff, err := s.isStaff(cfg, actor, t.ChannelID)
	if err != nil {
		return err
	}
	if !staff {
		return ErrForbidden
	}

	next := t.Clone()
	next.NoCloseDelay = true
	s.put(next)

	s.l.Info("Ticket close delay removed", slog.String(logging.KeyTicket, next.ID))
	return s.persist(ctx)
}

// closedByRef finds a closed ticket by ticket ID or by channel ID when the channel still exists.
func (s *Service) closedByRef(ref string) (*entities.Ticket, bool) {
	s.mut.RLock()
	defer s.mut.RUnlock()

	if t, ok := s.closed[ref]; ok {
		return t, true
	}
	for _, t := range s.closed {
		if t.ChannelID == ref {
			if _, reused := s.active[ref]; reused {
				return nil, false
			}
			return t, true
		}
	}
	return nil, false
}

// HandleDeleteChannel is the task handler deleting a closed ticket's channel. A channel that
// is already gone counts as deleted.
func (s *Service) HandleDeleteChannel(_ context.Context, task *tasks.Task) error {
	payload := new(deleteChannelPayload)
	if err := task.Decode(payload); err != nil {
		return err
	}

	s.mut.RLock()
	closed, ok := s.closed[payload.TicketID]
	s.mut.RUnlock()
	if ok && closed.NoCloseDelay {
		s.l.Info("Ticket channel kept", slog.String(logging.KeyTicket, payload.TicketID))
		return nil
	}

	if err := s.client.ChannelDelete(payload.ChannelID); err != nil {
		if discord.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("error deleting ticket channel: %w", err)
	}

	s.l.Info("Ticket channel deleted",
		slog.String(logging.KeyTicket, payload.TicketID),
		slog.String(logging.KeyChannel, payload.ChannelID),
	)
	return nil
}

// transcript renders the most recent messages of the ticket oldest first.
func (s *Service) transcript(t *entities.Ticket) ([]byte, error) {
	msgs, err := s.client.Messages(t.ChannelID, TranscriptLimit)
	if err != nil {
		return nil, fmt.Errorf("error getting messages: %w", err)
	}

	buf := new(bytes.Buffer)
	fmt.Fprintf(buf, "Transcript of %s (%s)\n", t.Name(), t.TypeName)
	fmt.Fprintf(buf, "Opened by %s (%s) at %s\n\n", t.Username, t.UserID, t.CreatedAt)

	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		author := "unknown"
		if m.Author != nil {
			author = m.Author.Username
		}
		content := m.Content
		for _, e := range m.Embeds {
			if e.Title != "" {
				content = strings.TrimSpace(content + " [embed: " + e.Title + "]")
			}
		}
		fmt.Fprintf(buf, "[%s] %s: %s\n", m.Timestamp.UTC().Format(time.RFC3339), author, content)
	}
	return buf.Bytes(), nil
}

// HandleChannelDeleted closes the active ticket of a channel that was deleted outside the bot.
// Nothing is posted since the channel is gone.
func (s *Service) HandleChannelDeleted(ctx context.Context, channelID string) error {
	unlock := s.locks.Lock(channelID)
	defer unlock()

	s.mut.Lock()
	t, ok := s.active[channelID]
	if !ok {
		s.mut.Unlock()
		return nil
	}
	now := s.now().UTC()
	closed := t.Clone()
	closed.Status = entities.TicketStatusClosed
	closed.ClosedAt = custom.Datetime(now)
	closed.CloseReason = "Channel deleted"
	closed.LastActivity = custom.Datetime(now)
	closed.Duration = custom.HumanDuration(now.Sub(t.CreatedAt.Time()))
	delete(s.active, channelID)
	s.closed[closed.ID] = closed
	s.mut.Unlock()

	ticketsClosed.Inc()
	s.l.Info("Ticket channel deleted manually, ticket closed",
		slog.String(logging.KeyTicket, closed.ID),
		slog.String(logging.KeyChannel, channelID),
	)
	s.emitter.Emit(events.TicketClosed, closed.Clone())

	if err := s.persist(ctx); err != nil {
		return fmt.Errorf("error saving tickets: %w", err)
	}
	return nil
}
