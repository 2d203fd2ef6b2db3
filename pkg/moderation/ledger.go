package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/Jacobbrewer1/hound/pkg/custom"
	"github.com/Jacobbrewer1/hound/pkg/discord"
	"github.com/Jacobbrewer1/hound/pkg/entities"
	"github.com/Jacobbrewer1/hound/pkg/events"
	"github.com/Jacobbrewer1/hound/pkg/logging"
	"github.com/Jacobbrewer1/hound/pkg/tasks"
	"github.com/google/uuid"
)

// MaxTimeout is the longest timeout Discord accepts.
const MaxTimeout = 28 * 24 * time.Hour

// escalationTier is an automatic punishment applied once the active warning count reaches
// Threshold.
type escalationTier struct {
	Threshold int
	Type      entities.PunishmentType
	Duration  time.Duration
}

// escalation is ordered by threshold.
var escalation = []escalationTier{
	{Threshold: 3, Type: entities.PunishmentMute, Duration: time.Hour},
	{Threshold: 5, Type: entities.PunishmentMute, Duration: 24 * time.Hour},
	{Threshold: 7, Type: entities.PunishmentBan, Duration: 7 * 24 * time.Hour},
}

// tierFor returns the index of the highest tier reached by count, or -1.
func tierFor(count int) int {
	tier := -1
	for i, t := range escalation {
		if count >= t.Threshold {
			tier = i
		}
	}
	return tier
}

// unbanPayload is the payload of a scheduled unban.
type unbanPayload struct {
	GuildID      string `json:"guildId"`
	UserID       string `json:"userId"`
	PunishmentID string `json:"punishmentId"`
}

// deleteMessagePayload is the payload of a scheduled message deletion.
type deleteMessagePayload struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
}

// PunishRequest describes a punishment to apply.
type PunishRequest struct {
	GuildID     string
	UserID      string
	ModeratorID string
	Type        entities.PunishmentType
	Reason      string

	// Duration is required for mutes. A ban with a duration is lifted when it expires.
	Duration time.Duration

	Auto bool
}

// Warn records a warning and applies the escalation tier the user newly reached, if any.
func (s *Service) Warn(ctx context.Context, guildID, userID, moderatorID, reason string) (*entities.Warning, *entities.Punishment, error) {
	if guildID == "" || userID == "" {
		return nil, nil, fmt.Errorf("%w: guild and user are required", ErrInvalid)
	}
	if strings.TrimSpace(reason) == "" {
		reason = "No reason provided"
	}
	auto := moderatorID == entities.SystemModeratorID

	w := &entities.Warning{
		ID:          uuid.NewString(),
		GuildID:     guildID,
		UserID:      userID,
		ModeratorID: moderatorID,
		Reason:      reason,
		CreatedAt:   custom.Datetime(s.now().UTC()),
		Active:      true,
	}

	// The count before and after are taken in the same critical section, so concurrent
	// warnings see distinct counts and each crossing escalates once.
	s.mut.Lock()
	if s.warnings[guildID] == nil {
		s.warnings[guildID] = make(map[string][]*entities.Warning)
	}
	before := countActive(s.warnings[guildID][userID])
	s.warnings[guildID][userID] = append(s.warnings[guildID][userID], w)
	after := before + 1
	s.appendLogLocked(guildID, "warn", userID, moderatorID, reason)
	s.mut.Unlock()

	s.saver.Trigger()
	moderationActions.WithLabelValues("warn", fmt.Sprint(auto)).Inc()

	s.l.Info("Warning issued",
		slog.String(logging.KeyGuild, guildID),
		slog.String(logging.KeyUser, userID),
		slog.Int("active_warnings", after),
	)

	if !auto {
		s.emitter.Emit(events.ModerationAction, &Action{
			Action: "warn", GuildID: guildID, UserID: userID, ModeratorID: moderatorID, Reason: reason,
		})
	}

	s.sendLog(guildID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "Member Warned",
			Description: fmt.Sprintf("<@%s> was warned by %s", userID, mention(moderatorID)),
			Color:       0xffa500,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Reason", Value: reason},
				{Name: "Active Warnings", Value: fmt.Sprint(after), Inline: true},
			},
		}},
	})

	// DM the member. Closed DMs are expected.
	if err := s.client.DirectMessage(userID, &discordgo.MessageSend{
		Content: fmt.Sprintf("You have received a warning: %s (active warnings: %d)", reason, after),
	}); err != nil {
		s.l.Debug("Could not DM warned member", slog.String(logging.KeyError, err.Error()))
	}

	var applied *entities.Punishment
	if next := tierFor(after); next > tierFor(before) {
		tier := escalation[next]
		p, err := s.Punish(ctx, PunishRequest{
			GuildID:     guildID,
			UserID:      userID,
			ModeratorID: entities.SystemModeratorID,
			Type:        tier.Type,
			Reason:      fmt.Sprintf("Automatic escalation: %d active warnings", after),
			Duration:    tier.Duration,
			Auto:        true,
		})
		if err != nil {
			return w, nil, fmt.Errorf("error applying escalation: %w", err)
		}
		applied = p
	}

	out := *w
	return &out, applied, nil
}

func countActive(list []*entities.Warning) int {
	n := 0
	for _, w := range list {
		if w.Active {
			n++
		}
	}
	return n
}

// Warnings returns the warnings of a user, or of the whole guild when userID is empty,
// newest first. Removed warnings are included.
func (s *Service) Warnings(guildID, userID string) []entities.Warning {
	s.mut.RLock()
	defer s.mut.RUnlock()

	out := make([]entities.Warning, 0)
	for user, list := range s.warnings[guildID] {
		if userID != "" && user != userID {
			continue
		}
		for _, w := range list {
			out = append(out, *w)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Time().After(out[j].CreatedAt.Time())
	})
	return out
}

// ActiveWarnings returns the number of active warnings of a user.
func (s *Service) ActiveWarnings(guildID, userID string) int {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return countActive(s.warnings[guildID][userID])
}

// RemoveWarning deactivates a warning. The record is kept for the audit trail.
func (s *Service) RemoveWarning(_ context.Context, guildID, id, removedBy string) error {
	s.mut.Lock()
	defer s.mut.Unlock()

	for user, list := range s.warnings[guildID] {
		for i, w := range list {
			if w.ID != id {
				continue
			}
			if !w.Active {
				return ErrNotFound
			}
			next := *w
			next.Active = false
			next.RemovedAt = custom.Datetime(s.now().UTC())
			next.RemovedBy = removedBy

			updated := append([]*entities.Warning(nil), list...)
			updated[i] = &next
			s.warnings[guildID][user] = updated
			s.appendLogLocked(guildID, "unwarn", user, removedBy, w.Reason)

			s.saver.Trigger()
			return nil
		}
	}
	return ErrNotFound
}

// Punish applies and records a punishment.
func (s *Service) Punish(ctx context.Context, req PunishRequest) (*entities.Punishment, error) {
	if req.GuildID == "" || req.UserID == "" {
		return nil, fmt.Errorf("%w: guild and user are required", ErrInvalid)
	}
	if strings.TrimSpace(req.Reason) == "" {
		req.Reason = "No reason provided"
	}

	now := s.now().UTC()
	p := &entities.Punishment{
		ID:          uuid.NewString(),
		GuildID:     req.GuildID,
		UserID:      req.UserID,
		ModeratorID: req.ModeratorID,
		Type:        req.Type,
		Reason:      req.Reason,
		Duration:    req.Duration,
		Auto:        req.Auto,
		CreatedAt:   custom.Datetime(now),
		Active:      true,
	}
	if req.Duration > 0 {
		p.ExpiresAt = custom.Datetime(now.Add(req.Duration))
	}

	switch req.Type {
	case entities.PunishmentMute:
		if req.Duration <= 0 || req.Duration > MaxTimeout {
			return nil, fmt.Errorf("%w: mute duration must be between 1s and 28 days", ErrInvalid)
		}
		until := now.Add(req.Duration)
		if err := s.client.Timeout(req.GuildID, req.UserID, &until); err != nil {
			return nil, fmt.Errorf("error timing out member: %w", err)
		}
	case entities.PunishmentKick:
		if err := s.client.Kick(req.GuildID, req.UserID, req.Reason); err != nil {
			return nil, fmt.Errorf("error kicking member: %w", err)
		}
	case entities.PunishmentBan:
		// DM before the ban, banned members cannot be reached.
		if err := s.client.DirectMessage(req.UserID, &discordgo.MessageSend{
			Content: fmt.Sprintf("You have been banned: %s", req.Reason),
		}); err != nil {
			s.l.Debug("Could not DM banned member", slog.String(logging.KeyError, err.Error()))
		}
		if err := s.client.Ban(req.GuildID, req.UserID, req.Reason); err != nil {
			return nil, fmt.Errorf("error banning member: %w", err)
		}
		if req.Duration > 0 {
			if _, err := s.tasks.Schedule(ctx, tasks.KindUnban, req.Duration, &unbanPayload{
				GuildID:      req.GuildID,
				UserID:       req.UserID,
				PunishmentID: p.ID,
			}); err != nil {
				s.l.Error("Error scheduling unban", slog.String(logging.KeyError, err.Error()))
			}
		}
	default:
		return nil, fmt.Errorf("%w: unknown punishment %q", ErrInvalid, req.Type)
	}

	s.mut.Lock()
	if s.punishments[req.GuildID] == nil {
		s.punishments[req.GuildID] = make(map[string][]*entities.Punishment)
	}
	s.punishments[req.GuildID][req.UserID] = append(s.punishments[req.GuildID][req.UserID], p)
	s.appendLogLocked(req.GuildID, string(req.Type), req.UserID, req.ModeratorID, req.Reason)
	s.mut.Unlock()

	s.saver.Trigger()
	moderationActions.WithLabelValues(string(req.Type), fmt.Sprint(req.Auto)).Inc()

	s.l.Info("Punishment applied",
		slog.String(logging.KeyGuild, req.GuildID),
		slog.String(logging.KeyUser, req.UserID),
		slog.String("type", string(req.Type)),
		slog.Bool("auto", req.Auto),
	)

	s.emitter.Emit(events.ModerationAction, &Action{
		Action:      string(req.Type),
		GuildID:     req.GuildID,
		UserID:      req.UserID,
		ModeratorID: req.ModeratorID,
		Reason:      req.Reason,
		Auto:        req.Auto,
	})

	fields := []*discordgo.MessageEmbedField{{Name: "Reason", Value: req.Reason}}
	if req.Duration > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Duration", Value: custom.HumanDuration(req.Duration), Inline: true})
	}
	s.sendLog(req.GuildID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       fmt.Sprintf("Member Punished (%s)", req.Type),
			Description: fmt.Sprintf("<@%s> by %s", req.UserID, mention(req.ModeratorID)),
			Color:       0xff0000,
			Fields:      fields,
		}},
	})

	out := *p
	return &out, nil
}

// Punishments returns the punishments of a user, or of the whole guild when userID is
// empty, newest first.
func (s *Service) Punishments(guildID, userID string) []entities.Punishment {
	s.mut.RLock()
	defer s.mut.RUnlock()

	out := make([]entities.Punishment, 0)
	for user, list := range s.punishments[guildID] {
		if userID != "" && user != userID {
			continue
		}
		for _, p := range list {
			out = append(out, *p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Time().After(out[j].CreatedAt.Time())
	})
	return out
}

// RemovePunishment deactivates a punishment and lifts mutes and bans on Discord.
func (s *Service) RemovePunishment(ctx context.Context, guildID, id, removedBy string) error {
	p, ok := s.deactivatePunishment(guildID, id, removedBy)
	if !ok {
		return ErrNotFound
	}

	switch p.Type {
	case entities.PunishmentMute:
		if err := s.client.Timeout(guildID, p.UserID, nil); err != nil {
			return fmt.Errorf("error removing timeout: %w", err)
		}
	case entities.PunishmentBan:
		if err := s.client.Unban(guildID, p.UserID); err != nil && !discord.IsNotFound(err) {
			return fmt.Errorf("error removing ban: %w", err)
		}
	}

	s.emitter.Emit(events.ModerationAction, &Action{
		Action: "un" + string(p.Type), GuildID: guildID, UserID: p.UserID, ModeratorID: removedBy,
	})
	return nil
}

// Unban lifts a ban and deactivates the user's active ban records.
func (s *Service) Unban(_ context.Context, guildID, userID, moderatorID, reason string) error {
	if err := s.client.Unban(guildID, userID); err != nil && !discord.IsNotFound(err) {
		return fmt.Errorf("error removing ban: %w", err)
	}

	s.mut.Lock()
	s.deactivateBansLocked(guildID, userID, moderatorID)
	s.appendLogLocked(guildID, string(entities.PunishmentUnban), userID, moderatorID, reason)
	s.mut.Unlock()
	s.saver.Trigger()

	s.emitter.Emit(events.ModerationAction, &Action{
		Action: string(entities.PunishmentUnban), GuildID: guildID, UserID: userID, ModeratorID: moderatorID, Reason: reason,
	})
	return nil
}

func (s *Service) deactivatePunishment(guildID, id, removedBy string) (entities.Punishment, bool) {
	s.mut.Lock()
	defer s.mut.Unlock()

	for user, list := range s.punishments[guildID] {
		for i, p := range list {
			if p.ID != id || !p.Active {
				continue
			}
			next := *p
			next.Active = false
			next.RemovedAt = custom.Datetime(s.now().UTC())
			next.RemovedBy = removedBy

			updated := append([]*entities.Punishment(nil), list...)
			updated[i] = &next
			s.punishments[guildID][user] = updated
			s.appendLogLocked(guildID, "un"+string(p.Type), user, removedBy, p.Reason)
			s.saver.Trigger()
			return next, true
		}
	}
	return entities.Punishment{}, false
}

func (s *Service) deactivateBansLocked(guildID, userID, removedBy string) {
	list := s.punishments[guildID][userID]
	if len(list) == 0 {
		return
	}
	updated := append([]*entities.Punishment(nil), list...)
	for i, p := range updated {
		if p.Type != entities.PunishmentBan || !p.Active {
			continue
		}
		next := *p
		next.Active = false
		next.RemovedAt = custom.Datetime(s.now().UTC())
		next.RemovedBy = removedBy
		updated[i] = &next
	}
	s.punishments[guildID][userID] = updated
}

// Logs returns up to limit of the guild's most recent moderation log entries, newest first.
func (s *Service) Logs(guildID string, limit int) []entities.ModerationLog {
	s.mut.RLock()
	defer s.mut.RUnlock()

	list := s.logs[guildID]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]entities.ModerationLog, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *list[i])
	}
	return out
}

func (s *Service) appendLogLocked(guildID, action, userID, moderatorID, reason string) {
	list := append(s.logs[guildID], &entities.ModerationLog{
		ID:          uuid.NewString(),
		GuildID:     guildID,
		Action:      action,
		UserID:      userID,
		ModeratorID: moderatorID,
		Reason:      reason,
		CreatedAt:   custom.Datetime(s.now().UTC()),
	})
	if len(list) > MaxLogsPerGuild {
		list = append([]*entities.ModerationLog(nil), list[len(list)-MaxLogsPerGuild:]...)
	}
	s.logs[guildID] = list
}

// HandleUnban is the task handler lifting an expired ban.
func (s *Service) HandleUnban(_ context.Context, task *tasks.Task) error {
	payload := new(unbanPayload)
	if err := task.Decode(payload); err != nil {
		return err
	}

	if err := s.client.Unban(payload.GuildID, payload.UserID); err != nil && !discord.IsNotFound(err) {
		return fmt.Errorf("error removing expired ban: %w", err)
	}

	s.mut.Lock()
	s.deactivateBansLocked(payload.GuildID, payload.UserID, entities.SystemModeratorID)
	s.appendLogLocked(payload.GuildID, string(entities.PunishmentUnban), payload.UserID, entities.SystemModeratorID, "Ban expired")
	s.mut.Unlock()
	s.saver.Trigger()

	s.l.Info("Expired ban lifted",
		slog.String(logging.KeyGuild, payload.GuildID),
		slog.String(logging.KeyUser, payload.UserID),
	)
	return nil
}

// HandleDeleteMessage is the task handler removing self deleting notices.
func (s *Service) HandleDeleteMessage(_ context.Context, task *tasks.Task) error {
	payload := new(deleteMessagePayload)
	if err := task.Decode(payload); err != nil {
		return err
	}
	if err := s.client.MessageDelete(payload.ChannelID, payload.MessageID); err != nil && !discord.IsNotFound(err) {
		return fmt.Errorf("error deleting message: %w", err)
	}
	return nil
}

func mention(userID string) string {
	if userID == entities.SystemModeratorID {
		return "AutoMod"
	}
	return fmt.Sprintf("<@%s>", userID)
}
