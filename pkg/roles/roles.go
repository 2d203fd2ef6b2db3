// Package roles automates role assignment: reaction roles, button roles and roles granted
// when a member joins.
package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/Jacobbrewer1/hound/pkg/dataaccess"
	"github.com/Jacobbrewer1/hound/pkg/discord"
	"github.com/Jacobbrewer1/hound/pkg/entities"
	"github.com/Jacobbrewer1/hound/pkg/locker"
	"github.com/Jacobbrewer1/hound/pkg/logging"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ErrBindingNotFound is returned when a reaction role binding does not exist.
	ErrBindingNotFound = errors.New("reaction role not found")

	// ErrSetupNotFound is returned when a button role setup does not exist.
	ErrSetupNotFound = errors.New("button role setup not found")

	// ErrRuleNotFound is returned when an automation rule does not exist.
	ErrRuleNotFound = errors.New("automation rule not found")

	// ErrInvalid is returned when input fails validation.
	ErrInvalid = errors.New("invalid role automation")

	// ErrInvalidButton is returned for a malformed or stale button custom ID.
	ErrInvalidButton = errors.New("invalid role button")
)

// Sources of a role change, used by the audit log and metrics.
const (
	SourceReaction   = "reaction"
	SourceButton     = "button"
	SourceAutomation = "automation"
)

var (
	// roleChanges is the number of role changes by source and action.
	roleChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "role_changes_total",
			Help: "Total number of automated role changes",
		},
		[]string{"source", "action"},
	)
)

// document is the persisted form of the role automation state.
type document struct {
	// AutomationRules is keyed by rule ID.
	AutomationRules map[string]*entities.AutomationRule `json:"automationRules"`

	// ReactionRoles is keyed by "<messageId>:<emoji>".
	ReactionRoles map[string]*entities.ReactionRoleBinding `json:"reactionRoles"`

	// ButtonRoles is keyed by setup ID.
	ButtonRoles map[string]*entities.ButtonRoleSetup `json:"buttonRoles"`

	// RoleLoggingConfigs is keyed by guild ID.
	RoleLoggingConfigs map[string]*entities.RoleLogConfig `json:"roleLoggingConfigs"`
}

// Service is the role automation engine. Like the ticket engine it never mutates a stored
// record in place, changes store a modified copy.
type Service struct {
	l      *slog.Logger
	store  dataaccess.DocumentStore
	client discord.Client
	now    func() time.Time

	mut        sync.RWMutex
	rules      map[string]*entities.AutomationRule
	reactions  map[string]*entities.ReactionRoleBinding
	setups     map[string]*entities.ButtonRoleSetup
	logConfigs map[string]*entities.RoleLogConfig

	// members serializes toggles per guild member, so two clicks cannot both see the role
	// missing and both count an add.
	members *locker.Locker

	saveMut sync.Mutex
}

// NewService creates a role automation engine.
func NewService(l *slog.Logger, store dataaccess.DocumentStore, client discord.Client) *Service {
	return &Service{
		l:          l.With(slog.String(logging.KeyComponent, "roles")),
		store:      store,
		client:     client,
		now:        time.Now,
		rules:      make(map[string]*entities.AutomationRule),
		reactions:  make(map[string]*entities.ReactionRoleBinding),
		setups:     make(map[string]*entities.ButtonRoleSetup),
		logConfigs: make(map[string]*entities.RoleLogConfig),
		members:    locker.New(),
	}
}

// Load reads the persisted role automation state.
func (s *Service) Load(ctx context.Context) error {
	doc := new(document)
	err := s.store.Load(ctx, dataaccess.DocumentRoleAutomation, doc)
	if errors.Is(err, dataaccess.ErrNotFound) {
		return nil
	} else if err != nil {
		return fmt.Errorf("error loading role automation: %w", err)
	}

	s.mut.Lock()
	defer s.mut.Unlock()

	for k, v := range doc.AutomationRules {
		s.rules[k] = v
	}
	for k, v := range doc.ReactionRoles {
		s.reactions[k] = v
	}
	for k, v := range doc.ButtonRoles {
		if v.UsageStats == nil {
			v.UsageStats = make(map[string]entities.RoleUsage)
		}
		s.setups[k] = v
	}
	for k, v := range doc.RoleLoggingConfigs {
		s.logConfigs[k] = v
	}

	s.l.Info("Role automation loaded",
		slog.Int("reaction_roles", len(s.reactions)),
		slog.Int("button_roles", len(s.setups)),
		slog.Int("rules", len(s.rules)),
	)
	return nil
}

func (s *Service) persist(ctx context.Context) error {
	s.saveMut.Lock()
	defer s.saveMut.Unlock()

	s.mut.RLock()
	doc := &document{
		AutomationRules:    make(map[string]*entities.AutomationRule, len(s.rules)),
		ReactionRoles:      make(map[string]*entities.ReactionRoleBinding, len(s.reactions)),
		ButtonRoles:        make(map[string]*entities.ButtonRoleSetup, len(s.setups)),
		RoleLoggingConfigs: make(map[string]*entities.RoleLogConfig, len(s.logConfigs)),
	}
	for k, v := range s.rules {
		doc.AutomationRules[k] = v
	}
	for k, v := range s.reactions {
		doc.ReactionRoles[k] = v
	}
	for k, v := range s.setups {
		doc.ButtonRoles[k] = v
	}
	for k, v := range s.logConfigs {
		doc.RoleLoggingConfigs[k] = v
	}
	s.mut.RUnlock()

	if err := s.store.Save(ctx, dataaccess.DocumentRoleAutomation, doc); err != nil {
		return fmt.Errorf("error saving role automation: %w", err)
	}
	return nil
}

func (s *Service) persistAndLog(ctx context.Context) {
	if err := s.persist(ctx); err != nil {
		s.l.Error("Error persisting role automation", slog.String(logging.KeyError, err.Error()))
	}
}

// toggle grants the role if the member lacks it and revokes it otherwise. The decision is
// taken from the member's current roles on Discord.
func (s *Service) toggle(guildID, userID, roleID string) (added bool, err error) {
	member, err := s.client.Member(guildID, userID)
	if err != nil {
		return false, fmt.Errorf("error getting member: %w", err)
	}

	if discord.HasRole(member, roleID) {
		if err := s.client.RoleRemove(guildID, userID, roleID); err != nil {
			return false, fmt.Errorf("error removing role: %w", err)
		}
		return false, nil
	}

	if err := s.client.RoleAdd(guildID, userID, roleID); err != nil {
		return false, fmt.Errorf("error adding role: %w", err)
	}
	return true, nil
}

// LogConfig returns the guild's role log configuration.
func (s *Service) LogConfig(guildID string) entities.RoleLogConfig {
	s.mut.RLock()
	defer s.mut.RUnlock()
	if cfg, ok := s.logConfigs[guildID]; ok {
		return *cfg
	}
	return entities.RoleLogConfig{
		LogRoleAdded:     true,
		LogRoleRemoved:   true,
		LogButtonRoles:   true,
		LogReactionRoles: true,
	}
}

// SaveLogConfig replaces the guild's role log configuration.
func (s *Service) SaveLogConfig(ctx context.Context, guildID string, cfg entities.RoleLogConfig) error {
	if cfg.Enabled && cfg.ChannelID == "" {
		return fmt.Errorf("%w: a log channel is required", ErrInvalid)
	}

	s.mut.Lock()
	s.logConfigs[guildID] = &cfg
	s.mut.Unlock()

	return s.persist(ctx)
}

// audit posts a role change to the guild's role log when the configuration asks for it.
func (s *Service) audit(guildID, userID, roleID, source string, added bool) {
	action, title := "removed", "Role Removed"
	if added {
		action, title = "added", "Role Added"
	}
	roleChanges.WithLabelValues(source, action).Inc()

	cfg := s.LogConfig(guildID)
	if !cfg.Enabled || cfg.ChannelID == "" {
		return
	}
	if added && !cfg.LogRoleAdded || !added && !cfg.LogRoleRemoved {
		return
	}
	switch source {
	case SourceButton:
		if !cfg.LogButtonRoles {
			return
		}
	case SourceReaction:
		if !cfg.LogReactionRoles {
			return
		}
	}

	color := 0x00ff00
	if !added {
		color = 0xff0000
	}
	if _, err := s.client.MessageSend(cfg.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       title,
			Description: fmt.Sprintf("<@&%s> %s %s <@%s>", roleID, action, preposition(added), userID),
			Color:       color,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Source", Value: source, Inline: true},
			},
			Timestamp: s.now().UTC().Format(time.RFC3339),
		}},
	}); err != nil {
		s.l.Error("Error posting to role log channel", slog.String(logging.KeyError, err.Error()))
	}
}

func preposition(added bool) string {
	if added {
		return "to"
	}
	return "from"
}

// AddRule adds a join automation rule.
func (s *Service) AddRule(ctx context.Context, rule entities.AutomationRule) (*entities.AutomationRule, error) {
	if rule.GuildID == "" || rule.RoleID == "" {
		return nil, fmt.Errorf("%w: guild and role are required", ErrInvalid)
	}
	if rule.Trigger == "" {
		rule.Trigger = entities.AutomationTriggerMemberJoin
	}
	if rule.Trigger != entities.AutomationTriggerMemberJoin {
		return nil, fmt.Errorf("%w: unsupported trigger %q", ErrInvalid, rule.Trigger)
	}
	rule.ID = uuid.NewString()

	s.mut.Lock()
	s.rules[rule.ID] = &rule
	s.mut.Unlock()

	if err := s.persist(ctx); err != nil {
		return nil, err
	}
	out := rule
	return &out, nil
}

// RemoveRule deletes an automation rule.
func (s *Service) RemoveRule(ctx context.Context, guildID, id string) error {
	s.mut.Lock()
	rule, ok := s.rules[id]
	if !ok || rule.GuildID != guildID {
		s.mut.Unlock()
		return ErrRuleNotFound
	}
	delete(s.rules, id)
	s.mut.Unlock()

	return s.persist(ctx)
}

// Rules lists the guild's automation rules.
func (s *Service) Rules(guildID string) []entities.AutomationRule {
	s.mut.RLock()
	defer s.mut.RUnlock()

	out := make([]entities.AutomationRule, 0)
	for _, r := range s.rules {
		if r.GuildID == guildID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HandleMemberJoin grants the roles of the guild's enabled join rules. A failing rule does
// not stop the others.
func (s *Service) HandleMemberJoin(_ context.Context, guildID, userID string) {
	for _, rule := range s.Rules(guildID) {
		if !rule.Enabled || rule.Trigger != entities.AutomationTriggerMemberJoin {
			continue
		}
		if err := s.client.RoleAdd(guildID, userID, rule.RoleID); err != nil {
			s.l.Error("Error applying join role",
				slog.String(logging.KeyGuild, guildID),
				slog.String(logging.KeyUser, userID),
				slog.String("role_id", rule.RoleID),
				slog.String(logging.KeyError, err.Error()),
			)
			continue
		}
		s.audit(guildID, userID, rule.RoleID, SourceAutomation, true)
	}
}
