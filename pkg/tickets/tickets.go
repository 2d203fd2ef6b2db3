// Package tickets runs the support ticket lifecycle: open, claim, add user, close and the
// deferred deletion of the ticket channel.
package tickets

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
	"github.com/Jacobbrewer1/hound/pkg/events"
	"github.com/Jacobbrewer1/hound/pkg/locker"
	"github.com/Jacobbrewer1/hound/pkg/logging"
	"github.com/Jacobbrewer1/hound/pkg/tasks"
)

// CloseDelay is how long a closed ticket channel stays before it is deleted.
const CloseDelay = 10 * time.Second

// TranscriptLimit is the number of messages kept in a close transcript.
const TranscriptLimit = 100

var (
	// ErrDisabled is returned when the ticket system is turned off for the guild.
	ErrDisabled = errors.New("ticket system disabled")

	// ErrTicketLimit is returned when the user has reached the maximum number of open tickets.
	ErrTicketLimit = errors.New("ticket limit reached")

	// ErrNotTicket is returned when the referenced channel or ID is not an active ticket.
	ErrNotTicket = errors.New("not an active ticket")

	// ErrAlreadyClaimed is returned when another member holds the claim.
	ErrAlreadyClaimed = errors.New("ticket already claimed")

	// ErrNotClaimant is returned when someone other than the claimant unclaims.
	ErrNotClaimant = errors.New("not the claimant")

	// ErrForbidden is returned when the actor may not perform the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrUserNotFound is returned when an add user target cannot be resolved.
	ErrUserNotFound = errors.New("user not found")

	// ErrAlreadyAdded is returned when the add user target can already see the ticket.
	ErrAlreadyAdded = errors.New("user already has access")

	// ErrCategoryNotFound is returned when the configured ticket category no longer exists.
	ErrCategoryNotFound = errors.New("ticket category not found")

	// ErrTypeNotFound is returned when a ticket type does not exist.
	ErrTypeNotFound = errors.New("ticket type not found")

	// ErrInvalid is returned when a configuration or ticket type fails validation.
	ErrInvalid = errors.New("invalid ticket configuration")
)

// AlreadyClaimedError carries the member holding the claim.
type AlreadyClaimedError struct {
	ClaimedBy string
}

func (e *AlreadyClaimedError) Error() string {
	return fmt.Sprintf("ticket already claimed by %s", e.ClaimedBy)
}

// Is makes errors.Is(err, ErrAlreadyClaimed) match.
func (e *AlreadyClaimedError) Is(target error) bool {
	return target == ErrAlreadyClaimed
}

// Actor is the member performing a ticket operation.
type Actor struct {
	ID       string
	Username string
	Roles    []string

	// Admin skips the permission checks. It is set for dashboard requests, which are
	// authorized before they reach the engine.
	Admin bool
}

// document is the persisted form of the ticket state.
type document struct {
	// ActiveTickets is keyed by channel ID.
	ActiveTickets map[string]*entities.Ticket `json:"activeTickets"`

	// ClosedTickets is keyed by ticket ID.
	ClosedTickets map[string]*entities.Ticket `json:"closedTickets"`

	// TicketConfig is keyed by guild ID.
	TicketConfig map[string]*entities.TicketConfig `json:"ticketConfig"`

	// TicketCounters holds the last ticket number per guild.
	TicketCounters map[string]int `json:"ticketCounters"`
}

// Service is the ticket engine.
//
// Records in the maps are never mutated in place. Every change stores a modified clone, so a
// snapshot taken under the read lock can be encoded without holding the lock.
type Service struct {
	l       *slog.Logger
	store   dataaccess.DocumentStore
	client  discord.Client
	tasks   tasks.Scheduler
	emitter events.Emitter
	now     func() time.Time

	mut      sync.RWMutex
	active   map[string]*entities.Ticket
	closed   map[string]*entities.Ticket
	configs  map[string]*entities.TicketConfig
	counters map[string]int

	// reserved counts tickets being created per guild and user, so the cap check and the
	// insert behave as one step.
	reserved map[string]int

	locks *locker.Locker

	// saveMut orders snapshots so an older snapshot never overwrites a newer one.
	saveMut sync.Mutex
}

// NewService creates a ticket engine.
func NewService(l *slog.Logger, store dataaccess.DocumentStore, client discord.Client, scheduler tasks.Scheduler, emitter events.Emitter) *Service {
	if emitter == nil {
		emitter = events.Nop{}
	}
	return &Service{
		l:        l.With(slog.String(logging.KeyComponent, "tickets")),
		store:    store,
		client:   client,
		tasks:    scheduler,
		emitter:  emitter,
		now:      time.Now,
		active:   make(map[string]*entities.Ticket),
		closed:   make(map[string]*entities.Ticket),
		configs:  make(map[string]*entities.TicketConfig),
		counters: make(map[string]int),
		reserved: make(map[string]int),
		locks:    locker.New(),
	}
}

// Load reads the persisted ticket state.
func (s *Service) Load(ctx context.Context) error {
	doc := new(document)
	err := s.store.Load(ctx, dataaccess.DocumentTickets, doc)
	if errors.Is(err, dataaccess.ErrNotFound) {
		return nil
	} else if err != nil {
		return fmt.Errorf("error loading tickets: %w", err)
	}

	s.mut.Lock()
	defer s.mut.Unlock()

	for k, v := range doc.ActiveTickets {
		s.active[k] = v
	}
	for k, v := range doc.ClosedTickets {
		s.closed[k] = v
	}
	for k, v := range doc.TicketConfig {
		s.configs[k] = v
	}
	for k, v := range doc.TicketCounters {
		s.counters[k] = v
	}

	s.l.Info("Tickets loaded",
		slog.Int("active", len(s.active)),
		slog.Int("closed", len(s.closed)),
	)
	return nil
}

// persist writes a snapshot of the ticket state.
func (s *Service) persist(ctx context.Context) error {
	s.saveMut.Lock()
	defer s.saveMut.Unlock()

	s.mut.RLock()
	doc := &document{
		ActiveTickets:  make(map[string]*entities.Ticket, len(s.active)),
		ClosedTickets:  make(map[string]*entities.Ticket, len(s.closed)),
		TicketConfig:   make(map[string]*entities.TicketConfig, len(s.configs)),
		TicketCounters: make(map[string]int, len(s.counters)),
	}
	for k, v := range s.active {
		doc.ActiveTickets[k] = v
	}
	for k, v := range s.closed {
		doc.ClosedTickets[k] = v
	}
	for k, v := range s.configs {
		doc.TicketConfig[k] = v
	}
	for k, v := range s.counters {
		doc.TicketCounters[k] = v
	}
	s.mut.RUnlock()

	if err := s.store.Save(ctx, dataaccess.DocumentTickets, doc); err != nil {
		return fmt.Errorf("error saving tickets: %w", err)
	}
	return nil
}

// persistAndLog persists and logs a failure. The in memory state stays authoritative.
func (s *Service) persistAndLog(ctx context.Context) {
	if err := s.persist(ctx); err != nil {
		s.l.Error("Error persisting tickets", slog.String(logging.KeyError, err.Error()))
	}
}

// Config returns a copy of the guild's ticket configuration.
func (s *Service) Config(guildID string) *entities.TicketConfig {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return s.configLocked(guildID).Clone()
}

func (s *Service) configLocked(guildID string) *entities.TicketConfig {
	cfg, ok := s.configs[guildID]
	if !ok {
		return entities.DefaultTicketConfig()
	}
	return cfg
}

// SaveConfig replaces the guild's ticket configuration. Ticket types and the panel location
// are kept when the new configuration does not carry them.
func (s *Service) SaveConfig(ctx context.Context, guildID string, cfg *entities.TicketConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: missing configuration", ErrInvalid)
	}
	if cfg.MaxTicketsPerUser < 1 {
		return fmt.Errorf("%w: max tickets per user must be at least 1", ErrInvalid)
	}

	s.mut.Lock()
	current := s.configLocked(guildID)
	next := cfg.Clone()
	if cfg.TicketTypes == nil {
		next.TicketTypes = current.Clone().TicketTypes
	}
	if next.PanelMessageID == "" {
		next.PanelChannelID = current.PanelChannelID
		next.PanelMessageID = current.PanelMessageID
	}
	if next.SupportRoles == nil {
		next.SupportRoles = []string{}
	}
	s.configs[guildID] = next
	s.mut.Unlock()

	return s.persist(ctx)
}

// lookup finds an active ticket by channel ID or ticket ID.
func (s *Service) lookup(ref string) (*entities.Ticket, bool) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return s.lookupLocked(ref)
}

func (s *Service) lookupLocked(ref string) (*entities.Ticket, bool) {
	if t, ok := s.active[ref]; ok {
		return t, true
	}
	for _, t := range s.active {
		if t.ID == ref {
			return t, true
		}
	}
	return nil, false
}

// TicketByChannel returns a copy of the active ticket in the channel.
func (s *Service) TicketByChannel(channelID string) (*entities.Ticket, bool) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	t, ok := s.active[channelID]
	return t.Clone(), ok
}

// ActiveTickets returns the guild's open tickets ordered by number.
func (s *Service) ActiveTickets(guildID string) []*entities.Ticket {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return sortedClones(s.active, guildID)
}

// ClosedTickets returns the guild's closed tickets ordered by number.
func (s *Service) ClosedTickets(guildID string) []*entities.Ticket {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return sortedClones(s.closed, guildID)
}

func sortedClones(m map[string]*entities.Ticket, guildID string) []*entities.Ticket {
	out := make([]*entities.Ticket, 0)
	for _, t := range m {
		if guildID == "" || t.GuildID == guildID {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Number < out[j].Number
	})
	return out
}

// isStaff reports whether the actor has a support role or can manage the channel.
func (s *Service) isStaff(cfg *entities.TicketConfig, actor Actor, channelID string) (bool, error) {
	if actor.Admin || cfg.IsSupport(actor.Roles) {
		return true, nil
	}

	perms, err := s.client.UserChannelPermissions(actor.ID, channelID)
	if err != nil {
		return false, fmt.Errorf("error getting channel permissions: %w", err)
	}
	return discord.HasPermission(perms, discordgo.PermissionManageChannels), nil
}

// authorizeOwnerOrStaff allows the ticket owner, support roles and channel managers.
func (s *Service) authorizeOwnerOrStaff(cfg *entities.TicketConfig, t *entities.Ticket, actor Actor) error {
	if t.UserID == actor.ID {
		return nil
	}
	ok, err := s.isStaff(cfg, actor, t.ChannelID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// logToChannel posts an audit message to the guild's ticket log channel.
func (s *Service) logToChannel(cfg *entities.TicketConfig, msg *discordgo.MessageSend) {
	if cfg.LogChannelID == "" {
		return
	}
	if _, err := s.client.MessageSend(cfg.LogChannelID, msg); err != nil {
		s.l.Error("Error posting to ticket log channel",
			slog.String(logging.KeyChannel, cfg.LogChannelID),
			slog.String(logging.KeyError, err.Error()),
		)
	}
}
