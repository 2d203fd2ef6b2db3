package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/Jacobbrewer1/hound/pkg/entities"
	"github.com/Jacobbrewer1/hound/pkg/events"
	"github.com/Jacobbrewer1/hound/pkg/logging"
	"github.com/Jacobbrewer1/hound/pkg/tasks"
)

// NoticeLifetime is how long an auto moderation notice stays in the channel.
const NoticeLifetime = 5 * time.Second

// RaidWindow is the window member joins are counted over.
const RaidWindow = time.Hour

// Message is a chat message checked by auto moderation.
type Message struct {
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	Content   string

	// Roles are the author's roles, used for exemptions.
	Roles []string
}

// HandleMessage runs the detectors against the message and acts on the first match.
func (s *Service) HandleMessage(ctx context.Context, msg Message) (*Violation, error) {
	cfg, words := s.autoMod(msg.GuildID)
	if !cfg.Enabled || exempt(cfg, msg.Roles) {
		return nil, nil
	}

	now := s.now()
	recent := s.recordMessage(msg.GuildID, msg.UserID, now)

	v := Evaluate(cfg, words, msg.Content, recent, now)
	if v == nil {
		return nil, nil
	}

	l := s.l.With(
		slog.String(logging.KeyGuild, msg.GuildID),
		slog.String(logging.KeyUser, msg.UserID),
		slog.String("detector", v.Detector),
	)
	autoModActions.WithLabelValues(v.Detector).Inc()

	if v.Detector == DetectorSpam {
		// Start counting afresh so the burst is punished once.
		s.resetHistory(msg.GuildID, msg.UserID)
	}

	// Delete the offending message.
	if err := s.client.MessageDelete(msg.ChannelID, msg.MessageID); err != nil {
		l.Error("Error deleting flagged message", slog.String(logging.KeyError, err.Error()))
	}

	_, escalated, err := s.Warn(ctx, msg.GuildID, msg.UserID, entities.SystemModeratorID, v.Reason)
	if err != nil {
		l.Error("Error recording automatic warning", slog.String(logging.KeyError, err.Error()))
	}

	// An escalation punishment already covers the spam timeout.
	if v.Detector == DetectorSpam && cfg.Spam.TimeoutMinutes > 0 && escalated == nil {
		if _, err := s.Punish(ctx, PunishRequest{
			GuildID:     msg.GuildID,
			UserID:      msg.UserID,
			ModeratorID: entities.SystemModeratorID,
			Type:        entities.PunishmentMute,
			Reason:      v.Reason,
			Duration:    time.Duration(cfg.Spam.TimeoutMinutes) * time.Minute,
			Auto:        true,
		}); err != nil {
			l.Error("Error timing out spammer", slog.String(logging.KeyError, err.Error()))
		}
	}

	s.postNotice(ctx, msg, v)

	s.emitter.Emit(events.AutoModAction, &Action{
		Action:      "delete",
		GuildID:     msg.GuildID,
		UserID:      msg.UserID,
		ModeratorID: entities.SystemModeratorID,
		Reason:      v.Reason,
		Detector:    v.Detector,
		Auto:        true,
	})

	l.Info("Auto moderation triggered")
	return v, nil
}

// postNotice tells the channel why the message went and deletes the notice after NoticeLifetime.
func (s *Service) postNotice(ctx context.Context, msg Message, v *Violation) {
	notice, err := s.client.MessageSend(msg.ChannelID, &discordgo.MessageSend{
		Content: fmt.Sprintf("<@%s>, your message was removed: %s.", msg.UserID, v.Reason),
	})
	if err != nil {
		s.l.Error("Error posting auto moderation notice", slog.String(logging.KeyError, err.Error()))
		return
	}

	if _, err := s.tasks.Schedule(ctx, tasks.KindDeleteMessage, NoticeLifetime, &deleteMessagePayload{
		ChannelID: msg.ChannelID,
		MessageID: notice.ID,
	}); err != nil {
		s.l.Error("Error scheduling notice deletion", slog.String(logging.KeyError, err.Error()))
	}
}

func exempt(cfg *entities.AutoModConfig, roles []string) bool {
	for _, r := range roles {
		for _, e := range cfg.ExemptRoles {
			if r == e {
				return true
			}
		}
	}
	return false
}

// recordMessage adds the message time to the user's history and returns a copy of it.
func (s *Service) recordMessage(guildID, userID string, at time.Time) []time.Time {
	key := guildID + ":" + userID

	s.mut.Lock()
	defer s.mut.Unlock()

	h := append(s.history[key], at)
	if len(h) > SpamHistorySize {
		h = append([]time.Time(nil), h[len(h)-SpamHistorySize:]...)
	}
	s.history[key] = h
	return append([]time.Time(nil), h...)
}

func (s *Service) resetHistory(guildID, userID string) {
	s.mut.Lock()
	defer s.mut.Unlock()
	delete(s.history, guildID+":"+userID)
}

// HandleMemberJoin records the join and, when the guild has seen more joins in the last
// hour than its raid threshold, puts every text channel in slowmode and alerts the log
// channel. Each join above the threshold triggers again.
func (s *Service) HandleMemberJoin(ctx context.Context, guildID, userID string) (bool, error) {
	cfg := s.Config(guildID)
	now := s.now()

	s.mut.Lock()
	joins := s.joins[guildID][:0:0]
	for _, t := range s.joins[guildID] {
		if now.Sub(t) < RaidWindow {
			joins = append(joins, t)
		}
	}
	joins = append(joins, now)
	s.joins[guildID] = joins
	count := len(joins)
	s.mut.Unlock()

	if !cfg.Enabled || !cfg.Raid.Enabled || cfg.Raid.JoinThreshold <= 0 || count < cfg.Raid.JoinThreshold {
		return false, nil
	}

	return true, s.triggerRaid(ctx, guildID, userID, cfg, count)
}

func (s *Service) triggerRaid(_ context.Context, guildID, userID string, cfg *entities.AutoModConfig, joins int) error {
	channels, err := s.client.GuildChannels(guildID)
	if err != nil {
		return fmt.Errorf("error listing channels: %w", err)
	}

	slowmode := cfg.Raid.SlowmodeSecs
	if slowmode <= 0 {
		slowmode = 30
	}

	edited := 0
	for _, ch := range channels {
		if ch.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		if _, err := s.client.ChannelEdit(ch.ID, &discordgo.ChannelEdit{RateLimitPerUser: &slowmode}); err != nil {
			s.l.Error("Error enabling slowmode",
				slog.String(logging.KeyChannel, ch.ID),
				slog.String(logging.KeyError, err.Error()),
			)
			continue
		}
		edited++
	}

	autoModActions.WithLabelValues("raid").Inc()
	s.l.Warn("Raid detected",
		slog.String(logging.KeyGuild, guildID),
		slog.Int("joins", joins),
		slog.Int("channels", edited),
	)

	s.sendLog(guildID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "Possible Raid Detected",
			Description: fmt.Sprintf("%d members joined in the last hour. Slowmode of %ds enabled in %d channels.", joins, slowmode, edited),
			Color:       0xff0000,
		}},
	})

	s.emitter.Emit(events.AutoModAction, &Action{
		Action:      "raid",
		GuildID:     guildID,
		UserID:      userID,
		ModeratorID: entities.SystemModeratorID,
		Reason:      fmt.Sprintf("%d joins in the last hour", joins),
		Detector:    "raid",
		Auto:        true,
	})
	return nil
}
