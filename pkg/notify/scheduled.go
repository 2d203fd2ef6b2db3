package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/Jacobbrewer1/hound/pkg/custom"
	"github.com/Jacobbrewer1/hound/pkg/entities"
	"github.com/Jacobbrewer1/hound/pkg/logging"
	"github.com/google/uuid"
)

const (
	timeLayout = "15:04"
	dateLayout = "2006-01-02"
)

// location resolves a timezone name, an empty name is UTC.
func location(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

// Due reports whether the message should be sent at now: the local time in the message's
// timezone matches its HH:MM, the type gate passes and it was not already sent that day.
func Due(m *entities.ScheduledMessage, now time.Time) bool {
	if !m.Enabled {
		return false
	}
	loc, err := location(m.Timezone)
	if err != nil {
		return false
	}
	local := now.In(loc)
	if local.Format(timeLayout) != m.Time {
		return false
	}

	switch m.Type {
	case entities.ScheduleDaily:
	case entities.ScheduleWeekly:
		if int(local.Weekday()) != m.DayOfWeek {
			return false
		}
	case entities.ScheduleMonthly:
		if local.Day() != m.DayOfMonth {
			return false
		}
	case entities.ScheduleOnce:
		if m.Date != "" && local.Format(dateLayout) != m.Date {
			return false
		}
	default:
		return false
	}

	if !m.LastSent.IsZero() && m.LastSent.Time().In(loc).Format(dateLayout) == local.Format(dateLayout) {
		return false
	}
	return true
}

func validateScheduled(m *entities.ScheduledMessage) error {
	if m.ChannelID == "" {
		return fmt.Errorf("%w: channel is required", ErrInvalid)
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalid)
	}
	if _, err := time.Parse(timeLayout, m.Time); err != nil {
		return fmt.Errorf("%w: time must be HH:MM", ErrInvalid)
	}
	if _, err := location(m.Timezone); err != nil {
		return fmt.Errorf("%w: unknown timezone %q", ErrInvalid, m.Timezone)
	}

	switch m.Type {
	case entities.ScheduleDaily:
	case entities.ScheduleWeekly:
		if m.DayOfWeek < 0 || m.DayOfWeek > 6 {
			return fmt.Errorf("%w: day of week must be 0 (Sunday) to 6", ErrInvalid)
		}
	case entities.ScheduleMonthly:
		if m.DayOfMonth < 1 || m.DayOfMonth > 31 {
			return fmt.Errorf("%w: day of month must be 1 to 31", ErrInvalid)
		}
	case entities.ScheduleOnce:
		if m.Date != "" {
			if _, err := time.Parse(dateLayout, m.Date); err != nil {
				return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalid)
			}
		}
	default:
		return fmt.Errorf("%w: unknown schedule type %q", ErrInvalid, m.Type)
	}
	return nil
}

// AddScheduled validates and stores a new scheduled message. New messages are enabled.
func (s *Service) AddScheduled(_ context.Context, guildID string, m *entities.ScheduledMessage) (*entities.ScheduledMessage, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: missing message", ErrInvalid)
	}
	if err := validateScheduled(m); err != nil {
		return nil, err
	}

	next := *m
	next.ID = uuid.NewString()
	next.GuildID = guildID
	next.Enabled = true
	next.LastSent = custom.Datetime{}

	s.mut.Lock()
	s.scheduled[next.ID] = &next
	s.mut.Unlock()
	s.saver.Trigger()

	out := next
	return &out, nil
}

// RemoveScheduled deletes a scheduled message.
func (s *Service) RemoveScheduled(_ context.Context, guildID, id string) error {
	s.mut.Lock()
	defer s.mut.Unlock()

	m, ok := s.scheduled[id]
	if !ok || m.GuildID != guildID {
		return ErrNotFound
	}
	delete(s.scheduled, id)
	s.saver.Trigger()
	return nil
}

// Scheduled returns the guild's scheduled messages ordered by time of day.
func (s *Service) Scheduled(guildID string) []entities.ScheduledMessage {
	s.mut.RLock()
	defer s.mut.RUnlock()

	out := make([]entities.ScheduledMessage, 0)
	for _, m := range s.scheduled {
		if m.GuildID == guildID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Service) sendScheduled(_ context.Context, m *entities.ScheduledMessage, now time.Time) {
	l := s.l.With(
		slog.String(logging.KeyGuild, m.GuildID),
		slog.String("scheduled_message_id", m.ID),
	)

	msg := &discordgo.MessageSend{Content: m.Content}
	if m.Title != "" {
		msg = &discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{{
				Title:       m.Title,
				Description: m.Content,
				Color:       0x5865f2,
				Timestamp:   now.UTC().Format(time.RFC3339),
			}},
		}
	}

	if _, err := s.client.MessageSend(m.ChannelID, msg); err != nil {
		l.Error("Error sending scheduled message", slog.String(logging.KeyError, err.Error()))
		return
	}
	notificationsSent.WithLabelValues("scheduled").Inc()

	s.mut.Lock()
	if current, ok := s.scheduled[m.ID]; ok {
		next := *current
		next.LastSent = custom.Datetime(now.UTC())
		if next.Type == entities.ScheduleOnce {
			next.Enabled = false
		}
		s.scheduled[m.ID] = &next
	}
	s.mut.Unlock()
	s.saver.Trigger()

	l.Info("Scheduled message sent")
}
