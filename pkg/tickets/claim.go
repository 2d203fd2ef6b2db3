package tickets

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/Jacobbrewer1/hound/pkg/custom"
	"github.com/Jacobbrewer1/hound/pkg/entities"
	"github.com/Jacobbrewer1/hound/pkg/logging"
)

// Claim claims the ticket for the actor. Claiming a ticket the actor already holds releases
// the claim instead.
func (s *Service) Claim(ctx context.Context, ref string, actor Actor) (*entities.Ticket, error) {
	t, ok := s.lookup(ref)
	if !ok {
		return nil, ErrNotTicket
	}

	unlock := s.locks.Lock(t.ChannelID)
	defer unlock()

	// Re-read under the ticket lock, the ticket may have changed or closed meanwhile.
	t, ok = s.lookup(t.ChannelID)
	if !ok {
		return nil, ErrNotTicket
	}

	// Ensure that the user is staff.
	cfg := s.Config(t.GuildID)
	staff, err := s.isStaff(cfg, actor, t.ChannelID)
	if err != nil {
		return nil, err
	}
	if !staff {
		return nil, ErrForbidden
	}

	if t.Claimed {
		if t.ClaimedBy != actor.ID {
			return nil, &AlreadyClaimedError{ClaimedBy: t.ClaimedBy}
		}
		return s.unclaimLocked(ctx, cfg, t, actor)
	}

	// Claim the ticket.
	now := custom.Datetime(s.now().UTC())
	next := t.Clone()
	next.Claimed = true
	next.ClaimedBy = actor.ID
	next.ClaimedAt = now
	next.LastActivity = now
	s.put(next)

	s.persistAndLog(ctx)
	ticketClaims.WithLabelValues("claim").Inc()

	s.l.Info("Ticket claimed",
		slog.String(logging.KeyTicket, next.ID),
		slog.String(logging.KeyUser, actor.ID),
	)

	s.refreshWelcome(cfg, next)
	s.logToChannel(cfg, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "Ticket Claimed",
			Description: fmt.Sprintf("<@%s> claimed <#%s>", actor.ID, next.ChannelID),
			Color:       colorClaimed,
		}},
	})

	return next.Clone(), nil
}

// Unclaim releases the claim. Only the current claimant may unclaim.
func (s *Service) Unclaim(ctx context.Context, ref string, actor Actor) (*entities.Ticket, error) {
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

	return s.unclaimLocked(ctx, s.Config(t.GuildID), t, actor)
}

// unclaimLocked expects the ticket lock to be held.
func (s *Service) unclaimLocked(ctx context.Context, cfg *entities.TicketConfig, t *entities.Ticket, actor Actor) (*entities.Ticket, error) {
	if !t.Claimed || t.ClaimedBy != actor.ID {
		return nil, ErrNotClaimant
	}

	next := t.Clone()
	next.Claimed = false
	next.ClaimedBy = ""
	next.ClaimedAt = custom.Datetime{}
	next.LastActivity = custom.Datetime(s.now().UTC())
	s.put(next)

	s.persistAndLog(ctx)
	ticketClaims.WithLabelValues("unclaim").Inc()

	s.l.Info("Ticket unclaimed",
		slog.String(logging.KeyTicket, next.ID),
		slog.String(logging.KeyUser, actor.ID),
	)

	s.refreshWelcome(cfg, next)
	s.logToChannel(cfg, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "Ticket Unclaimed",
			Description: fmt.Sprintf("<@%s> unclaimed <#%s>", actor.ID, next.ChannelID),
			Color:       colorOpen,
		}},
	})

	return next.Clone(), nil
}

// put replaces the active record of the ticket.
func (s *Service) put(t *entities.Ticket) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.active[t.ChannelID] = t
}

// refreshWelcome edits the welcome embed in place to show the current claim.
func (s *Service) refreshWelcome(cfg *entities.TicketConfig, t *entities.Ticket) {
	if t.WelcomeMessageID == "" {
		return
	}

	var tt *entities.TicketType
	if t.TypeID != "" {
		tt, _ = cfg.TicketType(t.TypeID)
	}

	if _, err := s.client.MessageEdit(&discordgo.MessageEdit{
		Channel:    t.ChannelID,
		ID:         t.WelcomeMessageID,
		Embed:      welcomeEmbed(t, tt),
		Components: welcomeComponents(),
	}); err != nil {
		s.l.Error("Error updating ticket welcome message",
			slog.String(logging.KeyTicket, t.ID),
			slog.String(logging.KeyError, err.Error()),
		)
	}
}
