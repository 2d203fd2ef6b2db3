package commands

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Jacobbrewer1/hound/pkg/dataaccess"
	"github.com/Jacobbrewer1/hound/pkg/events"
	"github.com/stretchr/testify/require"
)

const testGuild = "guild-1"

func newTestRegistry(t *testing.T) (*Registry, *events.Recorder, dataaccess.DocumentStore) {
	t.Helper()

	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := dataaccess.NewFileStore(l, t.TempDir())
	require.NoError(t, err)

	rec := new(events.Recorder)
	r := NewRegistry(l, store, rec)
	require.NoError(t, RegisterBuiltins(r, BuiltinOptions{
		Prefix:  "!",
		Latency: func() time.Duration { return 42 * time.Millisecond },
		Intn:    func(n int) int { return n - 1 },
	}))
	return r, rec, store
}

func TestParseDice(t *testing.T) {
	tests := []struct {
		notation string
		want     Dice
		wantErr  bool
	}{
		{notation: "d20", want: Dice{Count: 1, Sides: 20}},
		{notation: "2d6", want: Dice{Count: 2, Sides: 6}},
		{notation: "3D8+2", want: Dice{Count: 3, Sides: 8, Modifier: 2}},
		{notation: "1d4-1", want: Dice{Count: 1, Sides: 4, Modifier: -1}},
		{notation: " 2d6 ", want: Dice{Count: 2, Sides: 6}},
		{notation: "0d6", wantErr: true},
		{notation: "101d6", wantErr: true},
		{notation: "1d1", wantErr: true},
		{notation: "1d1001", wantErr: true},
		{notation: "1d6+1001", wantErr: true},
		{notation: "two dice", wantErr: true},
		{notation: "2d", wantErr: true},
		{notation: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.notation, func(t *testing.T) {
			got, err := ParseDice(tt.notation)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUsage)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestDiceRoll(t *testing.T) {
	d := Dice{Count: 3, Sides: 6, Modifier: -2}
	rolls, total := d.Roll(func(n int) int { return n - 1 })
	require.Equal(t, []int{6, 6, 6}, rolls)
	require.Equal(t, 16, total)
	require.Equal(t, "3d6-2", d.String())
}

func TestParsePrefix(t *testing.T) {
	tests := []struct {
		content  string
		wantName string
		wantArgs []string
		wantOK   bool
	}{
		{content: "!ping", wantName: "ping", wantArgs: []string{}, wantOK: true},
		{content: "!Roll 2d6", wantName: "roll", wantArgs: []string{"2d6"}, wantOK: true},
		{content: "!  help  me", wantName: "help", wantArgs: []string{"me"}, wantOK: true},
		{content: "hello !ping"},
		{content: "!"},
		{content: "?ping"},
	}

	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			name, args, ok := ParsePrefix("!", tt.content)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			require.Equal(t, tt.wantName, name)
			require.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestDispatch_Builtins(t *testing.T) {
	r, rec, _ := newTestRegistry(t)
	ctx := context.Background()

	reply, err := r.Dispatch(ctx, Invocation{GuildID: testGuild, UserID: "u1", Name: "ping"}, KindBuiltin)
	require.NoError(t, err)
	require.Equal(t, "Pong! Latency: 42ms", reply.Content)

	reply, err = r.Dispatch(ctx, Invocation{GuildID: testGuild, UserID: "u2", Name: "roll", Args: []string{"2d6+3"}}, KindBuiltin)
	require.NoError(t, err)
	require.Equal(t, "🎲 <@u2> rolled 2d6+3: [6, 6] + 3 = **15**", reply.Content)

	reply, err = r.Dispatch(ctx, Invocation{GuildID: testGuild, UserID: "u3", Name: "help"}, KindBuiltin)
	require.NoError(t, err)
	require.NotNil(t, reply.Embed)
	require.Contains(t, reply.Embed.Fields[0].Value, "`!roll <NdM[+K]>`")

	stats := r.Stats()
	require.Equal(t, 3, stats.TotalCommands)
	require.Equal(t, 1, stats.Commands["roll"])

	require.Equal(t, []string{
		events.CommandUsed, events.StatsUpdate,
		events.CommandUsed, events.StatsUpdate,
		events.CommandUsed, events.StatsUpdate,
	}, rec.Names())
}

func TestDispatch_InvalidDice(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	_, err := r.Dispatch(context.Background(), Invocation{GuildID: testGuild, UserID: "u1", Name: "roll", Args: []string{"lots"}}, KindBuiltin)
	require.ErrorIs(t, err, ErrUsage)

	var usage *UsageError
	require.True(t, errors.As(err, &usage))
	require.Contains(t, usage.Message, "Invalid dice notation")
}

func TestDispatch_Unknown(t *testing.T) {
	r, rec, _ := newTestRegistry(t)

	_, err := r.Dispatch(context.Background(), Invocation{GuildID: testGuild, UserID: "u1", Name: "nope"}, KindBuiltin)
	require.ErrorIs(t, err, ErrUnknownCommand)
	require.Zero(t, r.Stats().TotalCommands)
	require.Empty(t, rec.Names())
}

func TestDispatch_Cooldown(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	for i := 0; i < DefaultBurst; i++ {
		_, err := r.Dispatch(ctx, Invocation{GuildID: testGuild, UserID: "u1", Name: "ping"}, KindBuiltin)
		require.NoError(t, err)
	}
	_, err := r.Dispatch(ctx, Invocation{GuildID: testGuild, UserID: "u1", Name: "ping"}, KindBuiltin)
	require.ErrorIs(t, err, ErrCooldown)

	// Other users are not affected.
	_, err = r.Dispatch(ctx, Invocation{GuildID: testGuild, UserID: "u2", Name: "ping"}, KindBuiltin)
	require.NoError(t, err)

	now = now.Add(DefaultCooldown)
	_, err = r.Dispatch(ctx, Invocation{GuildID: testGuild, UserID: "u1", Name: "ping"}, KindBuiltin)
	require.NoError(t, err)
}

func TestCustomCommands(t *testing.T) {
	r, _, store := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.AddCustom(ctx, testGuild, "Rules", "Hi {user}, read the rules. {args}", "admin")
	require.NoError(t, err)

	reply, err := r.Dispatch(ctx, Invocation{GuildID: testGuild, UserID: "u1", Name: "rules", Args: []string{"please"}}, KindBuiltin)
	require.NoError(t, err)
	require.Equal(t, "Hi <@u1>, read the rules. please", reply.Content)

	// Guild commands are not visible elsewhere.
	_, err = r.Dispatch(ctx, Invocation{GuildID: "guild-2", UserID: "u1", Name: "rules"}, KindBuiltin)
	require.ErrorIs(t, err, ErrUnknownCommand)

	customs := r.Customs(testGuild)
	require.Len(t, customs, 1)
	require.Equal(t, 1, customs[0].Uses)

	_, err = r.AddCustom(ctx, testGuild, "ping", "shadow", "admin")
	require.ErrorIs(t, err, ErrDuplicate)
	_, err = r.AddCustom(ctx, testGuild, "has space", "x", "admin")
	require.ErrorIs(t, err, ErrInvalid)
	_, err = r.AddCustom(ctx, testGuild, "empty", " ", "admin")
	require.ErrorIs(t, err, ErrInvalid)

	require.NoError(t, r.Flush(ctx))
	reloaded := NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)), store, nil)
	require.NoError(t, reloaded.Load(ctx))
	require.Len(t, reloaded.Customs(testGuild), 1)
	require.Equal(t, 1, reloaded.Stats().Commands["rules"])

	require.NoError(t, r.RemoveCustom(ctx, testGuild, "rules"))
	require.ErrorIs(t, r.RemoveCustom(ctx, testGuild, "rules"), ErrUnknownCommand)
}

func TestRegister_SlashNamespace(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	handler := func(context.Context, Invocation) (*Reply, error) {
		return &Reply{Content: "slash", Ephemeral: true}, nil
	}
	require.NoError(t, r.Register(Descriptor{Name: "ping", Kind: KindSlash, Handler: handler}))
	require.ErrorIs(t, r.Register(Descriptor{Name: "ping", Kind: KindSlash, Handler: handler}), ErrDuplicate)
	require.ErrorIs(t, r.Register(Descriptor{Name: "nohandler", Kind: KindSlash}), ErrInvalid)

	reply, err := r.Dispatch(context.Background(), Invocation{GuildID: testGuild, UserID: "u1", Name: "ping"}, KindSlash)
	require.NoError(t, err)
	require.Equal(t, "slash", reply.Content)

	reply, err = r.Dispatch(context.Background(), Invocation{GuildID: testGuild, UserID: "u1", Name: "ping"}, KindBuiltin)
	require.NoError(t, err)
	require.Equal(t, "Pong! Latency: 42ms", reply.Content)
}
