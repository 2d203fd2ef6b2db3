package tickets

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/Jacobbrewer1/hound/pkg/dataaccess"
	"github.com/Jacobbrewer1/hound/pkg/discord/discordtest"
	"github.com/Jacobbrewer1/hound/pkg/entities"
	"github.com/Jacobbrewer1/hound/pkg/events"
	"github.com/Jacobbrewer1/hound/pkg/tasks"
	"github.com/stretchr/testify/require"
)

const (
	testGuild    = "guild-1"
	testCategory = "category-1"
	testLog      = "log-1"
	supportRole  = "role-support"

	ownerID = "100000000000000001"
	staffID = "100000000000000002"
	otherID = "100000000000000003"
)

type scheduled struct {
	Kind    string
	Delay   time.Duration
	Payload any
}

type fakeScheduler struct {
	mut  sync.Mutex
	jobs []scheduled
}

func (f *fakeScheduler) Schedule(_ context.Context, kind string, delay time.Duration, payload any) (string, error) {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.jobs = append(f.jobs, scheduled{Kind: kind, Delay: delay, Payload: payload})
	return "task", nil
}

func (f *fakeScheduler) Cancel(context.Context, string) error {
	return nil
}

func (f *fakeScheduler) Jobs() []scheduled {
	f.mut.Lock()
	defer f.mut.Unlock()
	return append([]scheduled(nil), f.jobs...)
}

type fixture struct {
	svc       *Service
	client    *discordtest.Client
	store     dataaccess.DocumentStore
	scheduler *fakeScheduler
	events    *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := dataaccess.NewFileStore(l, t.TempDir())
	require.NoError(t, err)

	client := discordtest.New()
	client.AddChannel(&discordgo.Channel{ID: testCategory, GuildID: testGuild, Type: discordgo.ChannelTypeGuildCategory})
	client.AddChannel(&discordgo.Channel{ID: testLog, GuildID: testGuild, Type: discordgo.ChannelTypeGuildText})
	client.AddMember(testGuild, &discordgo.Member{User: &discordgo.User{ID: ownerID, Username: "Owner"}})
	client.AddMember(testGuild, &discordgo.Member{User: &discordgo.User{ID: staffID, Username: "Staff"}, Roles: []string{supportRole}})
	client.AddMember(testGuild, &discordgo.Member{User: &discordgo.User{ID: otherID, Username: "Other"}, Nick: "Buddy"})

	f := &fixture{
		client:    client,
		store:     store,
		scheduler: new(fakeScheduler),
		events:    new(events.Recorder),
	}
	f.svc = NewService(l, store, client, f.scheduler, f.events)

	cfg := entities.DefaultTicketConfig()
	cfg.Enabled = true
	cfg.CategoryID = testCategory
	cfg.LogChannelID = testLog
	cfg.SupportRoles = []string{supportRole}
	require.NoError(t, f.svc.SaveConfig(context.Background(), testGuild, cfg))

	return f
}

func (f *fixture) open(t *testing.T) *entities.Ticket {
	t.Helper()
	ticket, err := f.svc.CreateTicket(context.Background(), CreateRequest{
		GuildID:  testGuild,
		UserID:   ownerID,
		Username: "Owner",
		Subject:  "help",
	})
	require.NoError(t, err)
	return ticket
}

var (
	owner = Actor{ID: ownerID, Username: "Owner"}
	staff = Actor{ID: staffID, Username: "Staff", Roles: []string{supportRole}}
	other = Actor{ID: otherID, Username: "Other"}
)

func TestCreateTicket_General(t *testing.T) {
	f := newFixture(t)
	ticket := f.open(t)

	require.Equal(t, entities.GeneralTicketTypeName, ticket.TypeName)
	require.Equal(t, entities.TicketStatusOpen, ticket.Status)
	require.Equal(t, 1, ticket.Number)
	require.Equal(t, "0001-owner", ticket.Name())
	require.NotEmpty(t, ticket.WelcomeMessageID)

	// The welcome message carries the three ticket controls.
	sent := f.client.SentTo(ticket.ChannelID)
	require.Len(t, sent, 1)
	require.Len(t, sent[0].Components, 1)
	row, ok := sent[0].Components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	ids := make([]string, 0, len(row.Components))
	for _, c := range row.Components {
		ids = append(ids, c.(discordgo.Button).CustomID)
	}
	require.Equal(t, []string{ClaimTicketButtonID, AddUserTicketButtonID, CloseTicketButtonID}, ids)

	// The channel is placed in the category and hidden from everyone else.
	ch, err := f.client.Channel(ticket.ChannelID)
	require.NoError(t, err)
	require.Equal(t, testCategory, ch.ParentID)

	perms, err := f.client.UserChannelPermissions(otherID, ticket.ChannelID)
	require.NoError(t, err)
	require.Zero(t, perms&discordgo.PermissionViewChannel)

	require.Len(t, f.client.SentTo(testLog), 1)
	require.Equal(t, []string{events.TicketCreated}, f.events.Names())

	// The ticket survives a reload.
	reloaded := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), f.store, f.client, f.scheduler, nil)
	require.NoError(t, reloaded.Load(context.Background()))
	got, ok := reloaded.TicketByChannel(ticket.ChannelID)
	require.True(t, ok)
	require.Equal(t, ticket.ID, got.ID)
}

func TestCreateTicket_Typed(t *testing.T) {
	f := newFixture(t)

	tt, err := f.svc.CreateType(context.Background(), testGuild, entities.TicketType{
		Name:            "Billing",
		AutoAssignRoles: []string{"role-billing"},
		Questions: []entities.TicketQuestion{
			{Label: "Invoice", Required: true, Type: entities.QuestionTypeShort},
		},
	})
	require.NoError(t, err)

	_, err = f.svc.CreateTicket(context.Background(), CreateRequest{
		GuildID: testGuild, UserID: ownerID, Username: "Owner", TypeID: tt.ID,
	})
	require.ErrorIs(t, err, ErrInvalid)

	ticket, err := f.svc.CreateTicket(context.Background(), CreateRequest{
		GuildID: testGuild, UserID: ownerID, Username: "Owner", TypeID: tt.ID,
		Responses: []entities.TicketResponse{{Question: "Invoice", Answer: "INV-1"}},
	})
	require.NoError(t, err)
	require.Equal(t, "Billing", ticket.TypeName)
	require.Equal(t, tt.ID, ticket.TypeID)
	require.Equal(t, []entities.TicketResponse{{Question: "Invoice", Answer: "INV-1"}}, ticket.Responses)

	ch, err := f.client.Channel(ticket.ChannelID)
	require.NoError(t, err)
	roles := make([]string, 0)
	for _, o := range ch.PermissionOverwrites {
		if o.Type == discordgo.PermissionOverwriteTypeRole && o.ID != testGuild {
			roles = append(roles, o.ID)
		}
	}
	require.ElementsMatch(t, []string{supportRole, "role-billing"}, roles)
}

func TestCreateTicket_Errors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *fixture)
		req     CreateRequest
		wantErr error
	}{
		{
			name: "disabled",
			setup: func(f *fixture) {
				cfg := f.svc.Config(testGuild)
				cfg.Enabled = false
				require.NoError(t, f.svc.SaveConfig(context.Background(), testGuild, cfg))
			},
			wantErr: ErrDisabled,
		},
		{
			name: "category deleted",
			setup: func(f *fixture) {
				require.NoError(t, f.client.ChannelDelete(testCategory))
			},
			wantErr: ErrCategoryNotFound,
		},
		{
			name: "reason required",
			setup: func(f *fixture) {
				cfg := f.svc.Config(testGuild)
				cfg.RequireReason = true
				require.NoError(t, f.svc.SaveConfig(context.Background(), testGuild, cfg))
			},
			wantErr: ErrInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			req := tt.req
			req.GuildID = testGuild
			req.UserID = ownerID
			req.Username = "Owner"

			_, err := f.svc.CreateTicket(context.Background(), req)
			require.ErrorIs(t, err, tt.wantErr)
			require.Empty(t, f.svc.ActiveTickets(testGuild))
		})
	}
}

func TestCreateTicket_UnknownTypeFallsBack(t *testing.T) {
	f := newFixture(t)

	ticket, err := f.svc.CreateTicket(context.Background(), CreateRequest{
		GuildID:  testGuild,
		UserID:   ownerID,
		Username: "Owner",
		TypeID:   "deleted-type",
		Subject:  "help",
	})
	require.NoError(t, err)
	require.Empty(t, ticket.TypeID)
	require.Equal(t, entities.GeneralTicketTypeName, ticket.TypeName)

	ch, err := f.client.Channel(ticket.ChannelID)
	require.NoError(t, err)
	require.Equal(t, testCategory, ch.ParentID)
	require.Len(t, f.svc.ActiveTickets(testGuild), 1)
}

func TestCreateTicket_ChannelFailureCommitsNothing(t *testing.T) {
	f := newFixture(t)
	f.client.ChannelCreateErr = errors.New("discord is down")

	_, err := f.svc.CreateTicket(context.Background(), CreateRequest{GuildID: testGuild, UserID: ownerID, Username: "Owner"})
	require.Error(t, err)
	require.Empty(t, f.svc.ActiveTickets(testGuild))
	require.Empty(t, f.events.Names())

	// The failed attempt does not count against the cap.
	f.client.ChannelCreateErr = nil
	f.open(t)
}

func TestCreateTicket_Limit(t *testing.T) {
	f := newFixture(t)
	f.open(t)

	_, err := f.svc.CreateTicket(context.Background(), CreateRequest{GuildID: testGuild, UserID: ownerID, Username: "Owner"})
	require.ErrorIs(t, err, ErrTicketLimit)
	require.Len(t, f.svc.ActiveTickets(testGuild), 1)

	// Other users have their own allowance.
	_, err = f.svc.CreateTicket(context.Background(), CreateRequest{GuildID: testGuild, UserID: otherID, Username: "Other"})
	require.NoError(t, err)
}

func TestCreateTicket_ConcurrentLimit(t *testing.T) {
	f := newFixture(t)
	f.client.CreateDelay = 10 * time.Millisecond

	cfg := f.svc.Config(testGuild)
	cfg.MaxTicketsPerUser = 2
	require.NoError(t, f.svc.SaveConfig(context.Background(), testGuild, cfg))

	const attempts = 10
	var (
		wg      sync.WaitGroup
		mut     sync.Mutex
		created int
		limited int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateTicket(context.Background(), CreateRequest{GuildID: testGuild, UserID: ownerID, Username: "Owner"})
			mut.Lock()
			defer mut.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrTicketLimit):
				limited++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 2, created)
	require.Equal(t, attempts-2, limited)
	require.Len(t, f.svc.ActiveTickets(testGuild), 2)
}

func TestClaim(t *testing.T) {
	f := newFixture(t)
	ticket := f.open(t)

	claimed, err := f.svc.Claim(context.Background(), ticket.ChannelID, staff)
	require.NoError(t, err)
	require.True(t, claimed.Claimed)
	require.Equal(t, staffID, claimed.ClaimedBy)
	require.False(t, claimed.ClaimedAt.IsZero())

	// The welcome embed is edited in place.
	require.NotEmpty(t, f.client.Edited)
	edit := f.client.Edited[len(f.client.Edited)-1]
	require.Equal(t, ticket.WelcomeMessageID, edit.ID)
	last := edit.Embed.Fields[len(edit.Embed.Fields)-1]
	require.Equal(t, claimedByField, last.Name)
	require.Equal(t, "<@"+staffID+">", last.Value)

	// Claiming again as the claimant releases the claim.
	unclaimed, err := f.svc.Claim(context.Background(), ticket.ChannelID, staff)
	require.NoError(t, err)
	require.False(t, unclaimed.Claimed)
	require.Empty(t, unclaimed.ClaimedBy)
}

func TestClaim_Forbidden(t *testing.T) {
	f := newFixture(t)
	ticket := f.open(t)

	_, err := f.svc.Claim(context.Background(), ticket.ChannelID, other)
	require.ErrorIs(t, err, ErrForbidden)

	// Manage channels is enough without a support role.
	f.client.BasePermissions[otherID] = discordgo.PermissionManageChannels
	_, err = f.svc.Claim(context.Background(), ticket.ChannelID, other)
	require.NoError(t, err)
}

func TestClaim_NotTicket(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Claim(context.Background(), "random-channel", staff)
	require.ErrorIs(t, err, ErrNotTicket)
}

func TestClaim_ConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	ticket := f.open(t)

	const claimers = 10
	var (
		wg      sync.WaitGroup
		mut     sync.Mutex
		winners []string
		losers  int
	)
	for i := 0; i < claimers; i++ {
		actor := Actor{ID: "staff-" + string(rune('a'+i)), Roles: []string{supportRole}}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Claim(context.Background(), ticket.ChannelID, actor)
			mut.Lock()
			defer mut.Unlock()
			if err == nil {
				winners = append(winners, actor.ID)
				return
			}
			var claimedErr *AlreadyClaimedError
			if errors.As(err, &claimedErr) && errors.Is(err, ErrAlreadyClaimed) {
				losers++
			}
		}()
	}
	wg.Wait()

	require.Len(t, winners, 1)
	require.Equal(t, claimers-1, losers)

	got, ok := f.svc.TicketByChannel(ticket.ChannelID)
	require.True(t, ok)
	require.Equal(t, winners[0], got.ClaimedBy)
}

func TestUnclaim_NotClaimant(t *testing.T) {
	f := newFixture(t)
	ticket := f.open(t)

	_, err := f.svc.Claim(context.Background(), ticket.ChannelID, staff)
	require.NoError(t, err)

	_, err = f.svc.Unclaim(context.Background(), ticket.ChannelID, Actor{ID: "someone", Roles: []string{supportRole}})
	require.ErrorIs(t, err, ErrNotClaimant)

	got, _ := f.svc.TicketByChannel(ticket.ChannelID)
	require.True(t, got.Claimed)
	require.Equal(t, staffID, got.ClaimedBy)

	_, err = f.svc.Unclaim(context.Background(), ticket.ChannelID, staff)
	require.NoError(t, err)
}

func TestAddUser(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		wantID  string
		wantErr error
	}{
		{name: "mention", target: "<@" + otherID + ">", wantID: otherID},
		{name: "nickname mention", target: "<@!" + otherID + ">", wantID: otherID},
		{name: "id", target: otherID, wantID: otherID},
		{name: "username", target: "other", wantID: otherID},
		{name: "display name", target: "BUDDY", wantID: otherID},
		{name: "unknown name", target: "ghost", wantErr: ErrUserNotFound},
		{name: "unknown id", target: "199999999999999999", wantErr: ErrUserNotFound},
		{name: "owner", target: ownerID, wantErr: ErrAlreadyAdded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ticket := f.open(t)

			id, err := f.svc.AddUser(context.Background(), ticket.ChannelID, owner, tt.target, "needs context")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantID, id)

			got, _ := f.svc.TicketByChannel(ticket.ChannelID)
			require.Equal(t, []string{tt.wantID}, got.AddedUsers)

			perms, err := f.client.UserChannelPermissions(tt.wantID, ticket.ChannelID)
			require.NoError(t, err)
			require.NotZero(t, perms&discordgo.PermissionViewChannel)

			// A second add is rejected.
			_, err = f.svc.AddUser(context.Background(), ticket.ChannelID, owner, tt.target, "")
			require.ErrorIs(t, err, ErrAlreadyAdded)
		})
	}
}

func TestAddUser_Forbidden(t *testing.T) {
	f := newFixture(t)
	ticket := f.open(t)

	_, err := f.svc.AddUser(context.Background(), ticket.ChannelID, other, otherID, "")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	ticket := f.open(t)

	f.svc.now = func() time.Time { return ticket.CreatedAt.Time().Add(90 * time.Minute) }

	closed, err := f.svc.Close(context.Background(), ticket.ChannelID, staff, "resolved")
	require.NoError(t, err)
	require.Equal(t, entities.TicketStatusClosed, closed.Status)
	require.Equal(t, staffID, closed.ClosedBy)
	require.Equal(t, "resolved", closed.CloseReason)
	require.Equal(t, "1h 30m", closed.Duration)

	// The record moved from active to closed.
	_, ok := f.svc.TicketByChannel(ticket.ChannelID)
	require.False(t, ok)
	require.Empty(t, f.svc.ActiveTickets(testGuild))
	closedTickets := f.svc.ClosedTickets(testGuild)
	require.Len(t, closedTickets, 1)
	require.Equal(t, ticket.ID, closedTickets[0].ID)

	// Deletion is scheduled durably.
	jobs := f.scheduler.Jobs()
	require.Len(t, jobs, 1)
	require.Equal(t, tasks.KindDeleteTicketChannel, jobs[0].Kind)
	require.Equal(t, CloseDelay, jobs[0].Delay)

	require.Len(t, f.client.DMs[ownerID], 1)
	require.Equal(t, []string{events.TicketCreated, events.TicketClosed}, f.events.Names())

	// The log channel has the create embed and the close embed with the transcript.
	logged := f.client.SentTo(testLog)
	require.Len(t, logged, 2)
	require.Len(t, logged[1].Files, 1)

	// A closed ticket cannot be closed again.
	_, err = f.svc.Close(context.Background(), ticket.ChannelID, staff, "")
	require.ErrorIs(t, err, ErrNotTicket)

	// The owner may open a new ticket once the old one is closed.
	f.open(t)
}

func TestClose_DMFailureIgnored(t *testing.T) {
	f := newFixture(t)
	f.client.DMErr = discordtest.ErrForbidden
	ticket := f.open(t)

	_, err := f.svc.Close(context.Background(), ticket.ChannelID, owner, "")
	require.NoError(t, err)
}

func TestClose_Forbidden(t *testing.T) {
	f := newFixture(t)
	ticket := f.open(t)

	_, err := f.svc.Close(context.Background(), ticket.ChannelID, other, "")
	require.ErrorIs(t, err, ErrForbidden)
	require.Len(t, f.svc.ActiveTickets(testGuild), 1)
}

func TestClose_NoCloseDelay(t *testing.T) {
	f := newFixture(t)
	ticket := f.open(t)

	require.ErrorIs(t, f.svc.RemoveCloseDelay(context.Background(), ticket.ChannelID, other), ErrForbidden)
	require.NoError(t, f.svc.RemoveCloseDelay(context.Background(), ticket.ChannelID, staff))

	closed, err := f.svc.Close(context.Background(), ticket.ChannelID, staff, "")
	require.NoError(t, err)
	require.True(t, closed.NoCloseDelay)
	require.Empty(t, f.scheduler.Jobs())
	require.Empty(t, f.client.DeletedChannels())
}

func TestHandleDeleteChannel(t *testing.T) {
	f := newFixture(t)
	ticket := f.open(t)

	_, err := f.svc.Close(context.Background(), ticket.ChannelID, owner, "")
	require.NoError(t, err)

	task := &tasks.Task{Kind: tasks.KindDeleteTicketChannel}
	task.Payload = mustJSON(t, f.scheduler.Jobs()[0].Payload)

	require.NoError(t, f.svc.HandleDeleteChannel(context.Background(), task))
	require.Equal(t, []string{ticket.ChannelID}, f.client.DeletedChannels())

	// Running again after a restart is harmless.
	require.NoError(t, f.svc.HandleDeleteChannel(context.Background(), task))
}

func TestHandleDeleteChannel_DelayRemovedAfterClose(t *testing.T) {
	f := newFixture(t)
	ticket := f.open(t)

	closed, err := f.svc.Close(context.Background(), ticket.ChannelID, owner, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.RemoveCloseDelay(context.Background(), closed.ID, staff))

	task := &tasks.Task{Kind: tasks.KindDeleteTicketChannel}
	task.Payload = mustJSON(t, f.scheduler.Jobs()[0].Payload)

	require.NoError(t, f.svc.HandleDeleteChannel(context.Background(), task))
	require.Empty(t, f.client.DeletedChannels())
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestHandleChannelDeleted(t *testing.T) {
	f := newFixture(t)
	ticket := f.open(t)

	require.NoError(t, f.svc.HandleChannelDeleted(context.Background(), ticket.ChannelID))

	_, ok := f.svc.TicketByChannel(ticket.ChannelID)
	require.False(t, ok)
	closed := f.svc.ClosedTickets(testGuild)
	require.Len(t, closed, 1)
	require.Equal(t, "Channel deleted", closed[0].CloseReason)
	require.Empty(t, f.scheduler.Jobs())

	// Channels that are not tickets are ignored.
	require.NoError(t, f.svc.HandleChannelDeleted(context.Background(), "random-channel"))
	require.Len(t, f.svc.ClosedTickets(testGuild), 1)
}
