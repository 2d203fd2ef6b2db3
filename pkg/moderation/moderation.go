// Package moderation runs auto moderation on messages and joins, and keeps the warning and
// punishment ledger with automatic escalation.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/Jacobbrewer1/hound/pkg/dataaccess"
	"github.com/Jacobbrewer1/hound/pkg/discord"
	"github.com/Jacobbrewer1/hound/pkg/entities"
	"github.com/Jacobbrewer1/hound/pkg/events"
	"github.com/Jacobbrewer1/hound/pkg/logging"
	"github.com/Jacobbrewer1/hound/pkg/tasks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SaveDelay is the quiet period before moderation changes are written.
const SaveDelay = 2 * time.Second

// MaxLogsPerGuild caps the moderation log kept per guild.
const MaxLogsPerGuild = 1000

var (
	// ErrNotFound is returned when a warning or punishment does not exist.
	ErrNotFound = errors.New("moderation record not found")

	// ErrInvalid is returned when input fails validation.
	ErrInvalid = errors.New("invalid moderation request")
)

var (
	// autoModActions is the number of auto moderation detections by detector.
	autoModActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automod_actions_total",
			Help: "Total number of auto moderation detections",
		},
		[]string{"detector"},
	)

	// moderationActions is the number of ledger actions by action and origin.
	moderationActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_actions_total",
			Help: "Total number of moderation actions",
		},
		[]string{"action", "auto"},
	)
)

// Action is the payload of the moderation dashboard events.
type Action struct {
	Action      string `json:"action"`
	GuildID     string `json:"guildId"`
	UserID      string `json:"userId"`
	ModeratorID string `json:"moderatorId"`
	Reason      string `json:"reason"`
	Detector    string `json:"detector,omitempty"`
	Auto        bool   `json:"auto"`
}

// document is the persisted form of the moderation state.
type document struct {
	// Warnings is keyed by guild then user.
	Warnings map[string]map[string][]*entities.Warning `json:"warnings"`

	// Punishments is keyed by guild then user.
	Punishments map[string]map[string][]*entities.Punishment `json:"punishments"`

	// ModerationLogs is keyed by guild, oldest first.
	ModerationLogs map[string][]*entities.ModerationLog `json:"moderationLogs"`

	// AutoModConfig is keyed by guild.
	AutoModConfig map[string]*entities.AutoModConfig `json:"autoModConfig"`
}

// Service is the moderation engine. Records are replaced, never mutated in place, so a
// snapshot only copies the containers.
type Service struct {
	l       *slog.Logger
	store   dataaccess.DocumentStore
	client  discord.Client
	tasks   tasks.Scheduler
	emitter events.Emitter
	now     func() time.Time

	mut         sync.RWMutex
	warnings    map[string]map[string][]*entities.Warning
	punishments map[string]map[string][]*entities.Punishment
	logs        map[string][]*entities.ModerationLog
	configs     map[string]*entities.AutoModConfig

	// filters holds the compiled profanity list of each configured guild.
	filters map[string]*WordFilter

	// history holds the recent message times per guild and user for the spam detector.
	history map[string][]time.Time

	// joins holds the member join times per guild for raid detection.
	joins map[string][]time.Time

	saver *dataaccess.Debouncer
}

// NewService creates a moderation engine.
func NewService(l *slog.Logger, store dataaccess.DocumentStore, client discord.Client, scheduler tasks.Scheduler, emitter events.Emitter) *Service {
	if emitter == nil {
		emitter = events.Nop{}
	}
	s := &Service{
		l:           l.With(slog.String(logging.KeyComponent, "moderation")),
		store:       store,
		client:      client,
		tasks:       scheduler,
		emitter:     emitter,
		now:         time.Now,
		warnings:    make(map[string]map[string][]*entities.Warning),
		punishments: make(map[string]map[string][]*entities.Punishment),
		logs:        make(map[string][]*entities.ModerationLog),
		configs:     make(map[string]*entities.AutoModConfig),
		filters:     make(map[string]*WordFilter),
		history:     make(map[string][]time.Time),
		joins:       make(map[string][]time.Time),
	}
	s.saver = dataaccess.NewDebouncer(s.l, SaveDelay, s.persist)
	return s
}

// Load reads the persisted moderation state.
func (s *Service) Load(ctx context.Context) error {
	doc := new(document)
	err := s.store.Load(ctx, dataaccess.DocumentModeration, doc)
	if errors.Is(err, dataaccess.ErrNotFound) {
		return nil
	} else if err != nil {
		return fmt.Errorf("error loading moderation: %w", err)
	}

	s.mut.Lock()
	defer s.mut.Unlock()

	for k, v := range doc.Warnings {
		s.warnings[k] = v
	}
	for k, v := range doc.Punishments {
		s.punishments[k] = v
	}
	for k, v := range doc.ModerationLogs {
		s.logs[k] = v
	}
	for k, v := range doc.AutoModConfig {
		s.configs[k] = v
		s.filters[k] = NewWordFilter(v.Profanity)
	}
	return nil
}

func (s *Service) persist(ctx context.Context) error {
	s.mut.RLock()
	doc := &document{
		Warnings:       make(map[string]map[string][]*entities.Warning, len(s.warnings)),
		Punishments:    make(map[string]map[string][]*entities.Punishment, len(s.punishments)),
		ModerationLogs: make(map[string][]*entities.ModerationLog, len(s.logs)),
		AutoModConfig:  make(map[string]*entities.AutoModConfig, len(s.configs)),
	}
	for guild, users := range s.warnings {
		doc.Warnings[guild] = make(map[string][]*entities.Warning, len(users))
		for user, list := range users {
			doc.Warnings[guild][user] = append([]*entities.Warning(nil), list...)
		}
	}
	for guild, users := range s.punishments {
		doc.Punishments[guild] = make(map[string][]*entities.Punishment, len(users))
		for user, list := range users {
			doc.Punishments[guild][user] = append([]*entities.Punishment(nil), list...)
		}
	}
	for guild, list := range s.logs {
		doc.ModerationLogs[guild] = append([]*entities.ModerationLog(nil), list...)
	}
	for k, v := range s.configs {
		doc.AutoModConfig[k] = v
	}
	s.mut.RUnlock()

	if err := s.store.Save(ctx, dataaccess.DocumentModeration, doc); err != nil {
		return fmt.Errorf("error saving moderation: %w", err)
	}
	return nil
}

// Flush writes pending changes. It is called on shutdown.
func (s *Service) Flush(ctx context.Context) error {
	return s.saver.Flush(ctx)
}

// Config returns the guild's auto moderation configuration.
func (s *Service) Config(guildID string) *entities.AutoModConfig {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return cloneConfig(s.configLocked(guildID))
}

// autoMod returns the guild's configuration with its compiled word filter.
func (s *Service) autoMod(guildID string) (*entities.AutoModConfig, *WordFilter) {
	s.mut.RLock()
	defer s.mut.RUnlock()

	cfg := cloneConfig(s.configLocked(guildID))
	words, ok := s.filters[guildID]
	if !ok {
		words = NewWordFilter(cfg.Profanity)
	}
	return cfg, words
}

func (s *Service) configLocked(guildID string) *entities.AutoModConfig {
	if cfg, ok := s.configs[guildID]; ok {
		return cfg
	}
	return entities.DefaultAutoModConfig()
}

// SaveConfig replaces the guild's auto moderation configuration.
func (s *Service) SaveConfig(_ context.Context, guildID string, cfg *entities.AutoModConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: missing configuration", ErrInvalid)
	}
	if cfg.Spam.Enabled && (cfg.Spam.MaxMessages < 2 || cfg.Spam.MaxMessages > SpamHistorySize || cfg.Spam.WindowSeconds < 1) {
		return fmt.Errorf("%w: spam needs 2 to %d messages in at least 1 second", ErrInvalid, SpamHistorySize)
	}
	if cfg.Caps.Enabled && (cfg.Caps.Percent < 1 || cfg.Caps.Percent > 100) {
		return fmt.Errorf("%w: caps percent must be between 1 and 100", ErrInvalid)
	}
	if cfg.Raid.Enabled && cfg.Raid.JoinThreshold < 2 {
		return fmt.Errorf("%w: raid join threshold must be at least 2", ErrInvalid)
	}

	words := NewWordFilter(cfg.Profanity)

	s.mut.Lock()
	s.configs[guildID] = cloneConfig(cfg)
	s.filters[guildID] = words
	s.mut.Unlock()

	s.saver.Trigger()
	return nil
}

func cloneConfig(cfg *entities.AutoModConfig) *entities.AutoModConfig {
	c := *cfg
	c.Profanity.Words = append([]string{}, cfg.Profanity.Words...)
	c.Links.AllowedDomains = append([]string{}, cfg.Links.AllowedDomains...)
	c.ExemptRoles = append([]string{}, cfg.ExemptRoles...)
	return &c
}

// sendLog posts an embed to the guild's moderation log channel.
func (s *Service) sendLog(guildID string, msg *discordgo.MessageSend) {
	cfg := s.Config(guildID)
	if cfg.LogChannelID == "" {
		return
	}
	if _, err := s.client.MessageSend(cfg.LogChannelID, msg); err != nil {
		s.l.Error("Error posting to moderation log channel",
			slog.String(logging.KeyGuild, guildID),
			slog.String(logging.KeyError, err.Error()),
		)
	}
}
