// Package commands maps command names to handlers. Builtin, guild defined and slash commands
// share one registry that is consulted when a command is dispatched.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/Jacobbrewer1/hound/pkg/custom"
	"github.com/Jacobbrewer1/hound/pkg/dataaccess"
	"github.com/Jacobbrewer1/hound/pkg/entities"
	"github.com/Jacobbrewer1/hound/pkg/events"
	"github.com/Jacobbrewer1/hound/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

// Kind is the origin of a command.
type Kind string

const (
	KindBuiltin Kind = "builtin"
	KindCustom  Kind = "custom"
	KindSlash   Kind = "slash"
)

const (
	// SaveDelay is the quiet period before stats and custom commands are written.
	SaveDelay = 2 * time.Second

	// DefaultCooldown is the sustained rate a user may run commands at.
	DefaultCooldown = 2 * time.Second

	// DefaultBurst is the number of commands a user may run back to back.
	DefaultBurst = 3

	// maxLimiters bounds the cooldown table.
	maxLimiters = 10000
)

var (
	// ErrUnknownCommand is returned when no command has the name.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrCooldown is returned when the user runs commands too quickly.
	ErrCooldown = errors.New("command cooldown")

	// ErrDuplicate is returned when a name is already registered.
	ErrDuplicate = errors.New("command already registered")

	// ErrInvalid is returned when a custom command fails validation.
	ErrInvalid = errors.New("invalid command")

	// ErrUsage matches every UsageError.
	ErrUsage = errors.New("invalid usage")
)

// UsageError is a user input error. Message is shown to the user as is.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// Is matches ErrUsage.
func (e *UsageError) Is(target error) bool {
	return target == ErrUsage
}

// Usagef creates a UsageError.
func Usagef(format string, args ...any) error {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

var (
	// commandsExecuted is the number of dispatched commands by name and kind.
	commandsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commands_executed_total",
			Help: "Total number of dispatched commands",
		},
		[]string{"command", "kind"},
	)
)

// Invocation is a single command call.
type Invocation struct {
	GuildID   string
	ChannelID string
	UserID    string
	Username  string

	// Roles and Permissions describe the calling member.
	Roles       []string
	Permissions int64

	Name string

	// Args are the prefix command arguments.
	Args []string

	// Options are the slash command options by name.
	Options map[string]string
}

// Option returns a slash option, or the positional argument at index for prefix calls.
func (inv Invocation) Option(name string, index int) string {
	if v, ok := inv.Options[name]; ok {
		return v
	}
	if index >= 0 && index < len(inv.Args) {
		return inv.Args[index]
	}
	return ""
}

// Reply is what a command answers with.
type Reply struct {
	Content    string
	Embed      *discordgo.MessageEmbed
	Components []discordgo.MessageComponent
	Ephemeral  bool
}

// Handler runs a command.
type Handler func(ctx context.Context, inv Invocation) (*Reply, error)

// Descriptor describes a registered command.
type Descriptor struct {
	Name        string
	Kind        Kind
	Description string
	Usage       string
	Handler     Handler

	// Definition is the slash command registered with Discord, for KindSlash.
	Definition *discordgo.ApplicationCommand
}

// Used is the payload of the commandUsed event.
type Used struct {
	Command string `json:"command"`
	Kind    Kind   `json:"kind"`
	GuildID string `json:"guildId"`
	UserID  string `json:"userId"`
}

// document is the persisted form of the command state.
type document struct {
	// CustomCommands is keyed by guild then name.
	CustomCommands map[string]map[string]*entities.CustomCommand `json:"customCommands"`

	Stats *entities.CommandStats `json:"stats"`
}

// Registry resolves and dispatches commands.
type Registry struct {
	l       *slog.Logger
	store   dataaccess.DocumentStore
	emitter events.Emitter
	now     func() time.Time

	cooldown rate.Limit
	burst    int

	mut      sync.RWMutex
	commands map[string]*Descriptor
	customs  map[string]map[string]*entities.CustomCommand
	stats    *entities.CommandStats

	limitMut sync.Mutex
	limiters map[string]*rate.Limiter

	saver *dataaccess.Debouncer
}

// NewRegistry creates an empty registry.
func NewRegistry(l *slog.Logger, store dataaccess.DocumentStore, emitter events.Emitter) *Registry {
	if emitter == nil {
		emitter = events.Nop{}
	}
	r := &Registry{
		l:        l.With(slog.String(logging.KeyComponent, "commands")),
		store:    store,
		emitter:  emitter,
		now:      time.Now,
		cooldown: rate.Every(DefaultCooldown),
		burst:    DefaultBurst,
		commands: make(map[string]*Descriptor),
		customs:  make(map[string]map[string]*entities.CustomCommand),
		stats:    &entities.CommandStats{Commands: make(map[string]int)},
		limiters: make(map[string]*rate.Limiter),
	}
	r.saver = dataaccess.NewDebouncer(r.l, SaveDelay, r.persist)
	return r
}

// SetCooldown changes the per user command rate. A zero interval disables the cooldown.
func (r *Registry) SetCooldown(interval time.Duration, burst int) {
	r.limitMut.Lock()
	defer r.limitMut.Unlock()

	if interval <= 0 {
		r.cooldown = rate.Inf
	} else {
		r.cooldown = rate.Every(interval)
	}
	r.burst = burst
	r.limiters = make(map[string]*rate.Limiter)
}

// Load reads the persisted custom commands and stats.
func (r *Registry) Load(ctx context.Context) error {
	doc := new(document)
	err := r.store.Load(ctx, dataaccess.DocumentCommands, doc)
	if errors.Is(err, dataaccess.ErrNotFound) {
		return nil
	} else if err != nil {
		return fmt.Errorf("error loading commands: %w", err)
	}

	r.mut.Lock()
	defer r.mut.Unlock()

	for k, v := range doc.CustomCommands {
		r.customs[k] = v
	}
	if doc.Stats != nil {
		r.stats = doc.Stats
		if r.stats.Commands == nil {
			r.stats.Commands = make(map[string]int)
		}
	}
	return nil
}

func (r *Registry) persist(ctx context.Context) error {
	r.mut.RLock()
	doc := &document{
		CustomCommands: make(map[string]map[string]*entities.CustomCommand, len(r.customs)),
		Stats:          cloneStats(r.stats),
	}
	for guild, cmds := range r.customs {
		doc.CustomCommands[guild] = make(map[string]*entities.CustomCommand, len(cmds))
		for name, c := range cmds {
			doc.CustomCommands[guild][name] = c
		}
	}
	r.mut.RUnlock()

	if err := r.store.Save(ctx, dataaccess.DocumentCommands, doc); err != nil {
		return fmt.Errorf("error saving commands: %w", err)
	}
	return nil
}

// Flush writes pending changes. It is called on shutdown.
func (r *Registry) Flush(ctx context.Context) error {
	return r.saver.Flush(ctx)
}

// Register adds a builtin or slash command.
func (r *Registry) Register(d Descriptor) error {
	name := strings.ToLower(d.Name)
	if name == "" || d.Handler == nil {
		return fmt.Errorf("%w: name and handler are required", ErrInvalid)
	}

	r.mut.Lock()
	defer r.mut.Unlock()

	key := string(d.Kind) + ":" + name
	if _, ok := r.commands[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	d.Name = name
	r.commands[key] = &d
	return nil
}

// MustRegister is Register that panics on error, for static command tables.
func (r *Registry) MustRegister(d Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Resolve finds the command a name refers to. Builtins shadow guild commands of the same
// name; slash commands live in their own namespace.
func (r *Registry) Resolve(guildID, name string, kind Kind) (*Descriptor, bool) {
	name = strings.ToLower(name)

	r.mut.RLock()
	defer r.mut.RUnlock()

	if kind == KindSlash {
		d, ok := r.commands[string(KindSlash)+":"+name]
		return d, ok
	}

	if d, ok := r.commands[string(KindBuiltin)+":"+name]; ok {
		return d, true
	}
	if c, ok := r.customs[guildID][name]; ok {
		response := c.Response
		return &Descriptor{
			Name:        c.Name,
			Kind:        KindCustom,
			Description: "Custom command",
			Handler: func(_ context.Context, inv Invocation) (*Reply, error) {
				return &Reply{Content: expand(response, inv)}, nil
			},
		}, true
	}
	return nil, false
}

// expand fills the placeholders of a custom command response.
func expand(response string, inv Invocation) string {
	return strings.NewReplacer(
		"{user}", "<@"+inv.UserID+">",
		"{username}", inv.Username,
		"{args}", strings.Join(inv.Args, " "),
	).Replace(response)
}

// Descriptors returns the registered commands of a kind ordered by name.
func (r *Registry) Descriptors(kind Kind) []Descriptor {
	r.mut.RLock()
	defer r.mut.RUnlock()

	out := make([]Descriptor, 0)
	for _, d := range r.commands {
		if d.Kind == kind {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SlashDefinitions returns the Discord definitions of the slash commands.
func (r *Registry) SlashDefinitions() []*discordgo.ApplicationCommand {
	out := make([]*discordgo.ApplicationCommand, 0)
	for _, d := range r.Descriptors(KindSlash) {
		if d.Definition != nil {
			out = append(out, d.Definition)
		}
	}
	return out
}

// Dispatch resolves the invocation and runs it. Usage errors are returned as they are so
// the caller can show them to the user.
func (r *Registry) Dispatch(ctx context.Context, inv Invocation, kind Kind) (*Reply, error) {
	d, ok := r.Resolve(inv.GuildID, inv.Name, kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, inv.Name)
	}
	if !r.allow(inv.UserID) {
		return nil, ErrCooldown
	}

	reply, err := d.Handler(ctx, inv)
	r.record(inv, d)
	if err != nil {
		return nil, err
	}
	return reply, nil
}

func (r *Registry) allow(userID string) bool {
	r.limitMut.Lock()
	defer r.limitMut.Unlock()

	if r.cooldown == rate.Inf {
		return true
	}

	lim, ok := r.limiters[userID]
	if !ok {
		if len(r.limiters) >= maxLimiters {
			r.limiters = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(r.cooldown, r.burst)
		r.limiters[userID] = lim
	}
	return lim.AllowN(r.now(), 1)
}

func (r *Registry) record(inv Invocation, d *Descriptor) {
	commandsExecuted.WithLabelValues(d.Name, string(d.Kind)).Inc()

	r.mut.Lock()
	next := cloneStats(r.stats)
	next.TotalCommands++
	next.Commands[d.Name]++
	next.LastUsed = custom.Datetime(r.now().UTC())
	r.stats = next

	if d.Kind == KindCustom {
		if c, ok := r.customs[inv.GuildID][d.Name]; ok {
			updated := *c
			updated.Uses++
			r.customs[inv.GuildID][d.Name] = &updated
		}
	}
	r.mut.Unlock()
	r.saver.Trigger()

	r.emitter.Emit(events.CommandUsed, &Used{
		Command: d.Name,
		Kind:    d.Kind,
		GuildID: inv.GuildID,
		UserID:  inv.UserID,
	})
	r.emitter.Emit(events.StatsUpdate, cloneStats(next))
}

// Stats returns the command usage counters.
func (r *Registry) Stats() *entities.CommandStats {
	r.mut.RLock()
	defer r.mut.RUnlock()
	return cloneStats(r.stats)
}

func cloneStats(s *entities.CommandStats) *entities.CommandStats {
	out := &entities.CommandStats{
		TotalCommands: s.TotalCommands,
		Commands:      make(map[string]int, len(s.Commands)),
		LastUsed:      s.LastUsed,
	}
	for k, v := range s.Commands {
		out.Commands[k] = v
	}
	return out
}
