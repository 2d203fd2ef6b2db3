package commands

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Jacobbrewer1/discordgo"
)

// Dice limits.
const (
	MaxDice     = 100
	MaxSides    = 1000
	MaxModifier = 1000
)

var diceRegex = regexp.MustCompile(`(?i)^(\d*)d(\d+)(?:([+-])(\d+))?$`)

// Dice is parsed NdM[+K] notation.
type Dice struct {
	Count    int
	Sides    int
	Modifier int
}

func (d Dice) String() string {
	s := fmt.Sprintf("%dd%d", d.Count, d.Sides)
	switch {
	case d.Modifier > 0:
		s += fmt.Sprintf("+%d", d.Modifier)
	case d.Modifier < 0:
		s += fmt.Sprintf("%d", d.Modifier)
	}
	return s
}

// ParseDice parses dice notation such as "d20", "2d6" or "3d8+2".
func ParseDice(notation string) (Dice, error) {
	m := diceRegex.FindStringSubmatch(strings.TrimSpace(notation))
	if m == nil {
		return Dice{}, Usagef("Invalid dice notation %q. Use NdM or NdM+K, for example 2d6+3.", notation)
	}

	d := Dice{Count: 1}
	if m[1] != "" {
		d.Count, _ = strconv.Atoi(m[1])
	}
	d.Sides, _ = strconv.Atoi(m[2])
	if m[4] != "" {
		d.Modifier, _ = strconv.Atoi(m[4])
		if m[3] == "-" {
			d.Modifier = -d.Modifier
		}
	}

	if d.Count < 1 || d.Count > MaxDice {
		return Dice{}, Usagef("You can roll between 1 and %d dice.", MaxDice)
	}
	if d.Sides < 2 || d.Sides > MaxSides {
		return Dice{}, Usagef("Dice need between 2 and %d sides.", MaxSides)
	}
	if d.Modifier > MaxModifier || d.Modifier < -MaxModifier {
		return Dice{}, Usagef("The modifier must be between -%d and %d.", MaxModifier, MaxModifier)
	}
	return d, nil
}

// Roll rolls the dice and returns each roll and the total including the modifier.
func (d Dice) Roll(intn func(n int) int) ([]int, int) {
	rolls := make([]int, d.Count)
	total := d.Modifier
	for i := range rolls {
		rolls[i] = intn(d.Sides) + 1
		total += rolls[i]
	}
	return rolls, total
}

// lockedRand is a math/rand source safe for concurrent handlers.
type lockedRand struct {
	mut sync.Mutex
	r   *rand.Rand
}

func (l *lockedRand) Intn(n int) int {
	l.mut.Lock()
	defer l.mut.Unlock()
	return l.r.Intn(n)
}

// BuiltinOptions configures the builtin commands.
type BuiltinOptions struct {
	// Prefix is shown in help.
	Prefix string

	// Latency reports the gateway heartbeat latency for ping.
	Latency func() time.Duration

	// Intn overrides the dice source, for tests.
	Intn func(n int) int
}

// RegisterBuiltins adds ping, roll and help.
func RegisterBuiltins(r *Registry, opts BuiltinOptions) error {
	intn := opts.Intn
	if intn == nil {
		src := &lockedRand{r: rand.New(rand.NewSource(time.Now().UnixNano()))}
		intn = src.Intn
	}

	builtins := []Descriptor{
		{
			Name:        "ping",
			Kind:        KindBuiltin,
			Description: "Check that the bot is alive",
			Usage:       "ping",
			Handler: func(context.Context, Invocation) (*Reply, error) {
				if opts.Latency == nil {
					return &Reply{Content: "Pong!"}, nil
				}
				return &Reply{Content: fmt.Sprintf("Pong! Latency: %dms", opts.Latency().Milliseconds())}, nil
			},
		},
		{
			Name:        "roll",
			Kind:        KindBuiltin,
			Description: "Roll dice",
			Usage:       "roll <NdM[+K]>",
			Handler: func(_ context.Context, inv Invocation) (*Reply, error) {
				notation := inv.Option("dice", 0)
				if notation == "" {
					notation = "1d6"
				}
				d, err := ParseDice(notation)
				if err != nil {
					return nil, err
				}
				rolls, total := d.Roll(intn)
				return &Reply{Content: formatRoll(inv.UserID, d, rolls, total)}, nil
			},
		},
		{
			Name:        "help",
			Kind:        KindBuiltin,
			Description: "List the available commands",
			Usage:       "help",
			Handler: func(_ context.Context, inv Invocation) (*Reply, error) {
				return &Reply{Embed: r.helpEmbed(inv.GuildID, opts.Prefix)}, nil
			},
		},
	}

	for _, d := range builtins {
		if err := r.Register(d); err != nil {
			return fmt.Errorf("error registering %s: %w", d.Name, err)
		}
	}
	return nil
}

func formatRoll(userID string, d Dice, rolls []int, total int) string {
	parts := make([]string, len(rolls))
	for i, v := range rolls {
		parts[i] = strconv.Itoa(v)
	}
	out := fmt.Sprintf("🎲 <@%s> rolled %s: [%s]", userID, d, strings.Join(parts, ", "))
	switch {
	case d.Modifier > 0:
		out += fmt.Sprintf(" + %d", d.Modifier)
	case d.Modifier < 0:
		out += fmt.Sprintf(" - %d", -d.Modifier)
	}
	return out + fmt.Sprintf(" = **%d**", total)
}

func (r *Registry) helpEmbed(guildID, prefix string) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "Commands",
		Color: 0x5865f2,
	}

	var b strings.Builder
	for _, d := range r.Descriptors(KindBuiltin) {
		fmt.Fprintf(&b, "`%s%s` %s\n", prefix, d.Usage, d.Description)
	}
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "General", Value: b.String()})

	if slash := r.Descriptors(KindSlash); len(slash) > 0 {
		b.Reset()
		for _, d := range slash {
			fmt.Fprintf(&b, "`/%s` %s\n", d.Name, d.Description)
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Slash Commands", Value: truncateField(b.String())})
	}

	if customs := r.Customs(guildID); len(customs) > 0 {
		names := make([]string, len(customs))
		for i, c := range customs {
			names[i] = "`" + prefix + c.Name + "`"
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Server Commands", Value: truncateField(strings.Join(names, " "))})
	}
	return embed
}

func truncateField(s string) string {
	if len(s) <= 1024 {
		return s
	}
	return s[:1021] + "..."
}

// ParsePrefix splits a prefixed message into a command name and arguments.
func ParsePrefix(prefix, content string) (string, []string, bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}
