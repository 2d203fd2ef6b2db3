package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Jacobbrewer1/hound/pkg/commands"
	"github.com/Jacobbrewer1/hound/pkg/dataaccess"
	"github.com/Jacobbrewer1/hound/pkg/discord/discordtest"
	"github.com/Jacobbrewer1/hound/pkg/entities"
	"github.com/Jacobbrewer1/hound/pkg/events"
	"github.com/Jacobbrewer1/hound/pkg/moderation"
	"github.com/Jacobbrewer1/hound/pkg/notify"
	"github.com/Jacobbrewer1/hound/pkg/roles"
	"github.com/Jacobbrewer1/hound/pkg/tasks"
	"github.com/Jacobbrewer1/hound/pkg/tickets"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const (
	testGuild    = "guild-1"
	testPassword = "hunter2"
)

type fixture struct {
	srv *Server
	hub *Hub
	svc Services
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := dataaccess.NewFileStore(l, t.TempDir())
	require.NoError(t, err)

	queue, err := tasks.Open(l, filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = queue.Close() })

	client := discordtest.New()
	hub := NewHub(l)
	t.Cleanup(hub.Close)

	svc := Services{
		Tickets:    tickets.NewService(l, store, client, queue, hub),
		Roles:      roles.NewService(l, store, client),
		Moderation: moderation.NewService(l, store, client, queue, hub),
		Notify:     notify.NewService(l, store, client, nil),
		Commands:   commands.NewRegistry(l, store, events.Nop{}),
	}
	require.NoError(t, commands.RegisterBuiltins(svc.Commands, commands.BuiltinOptions{Prefix: "!"}))

	if cfg.JWTSecret == nil {
		cfg.JWTSecret = []byte("test-secret")
	}
	if cfg.Password == "" {
		cfg.Password = testPassword
	}

	return &fixture{
		srv: NewServer(l, cfg, svc, hub, func() BotStatus {
			return BotStatus{Online: true, Guilds: 1, User: "hound#0001"}
		}),
		hub: hub,
		svc: svc,
	}
}

func (f *fixture) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, target, rdr)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	return w
}

func (f *fixture) login(t *testing.T) string {
	t.Helper()

	w := f.do(t, http.MethodPost, "/api/auth/login", "", &loginRequest{Password: testPassword})
	require.Equal(t, http.StatusOK, w.Code)

	resp := new(loginResponse)
	require.NoError(t, json.NewDecoder(w.Body).Decode(resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestLogin(t *testing.T) {
	f := newFixture(t, Config{})

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "correct password", body: `{"password":"hunter2"}`, want: http.StatusOK},
		{name: "wrong password", body: `{"password":"hunter3"}`, want: http.StatusUnauthorized},
		{name: "empty password", body: `{"password":""}`, want: http.StatusUnauthorized},
		{name: "unknown field", body: `{"user":"admin"}`, want: http.StatusBadRequest},
		{name: "malformed", body: `{`, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			f.srv.ServeHTTP(w, req)
			require.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t, Config{})
	token := f.login(t)

	other := NewAuth([]byte("other-secret"), testPassword, time.Hour)
	forged, _, err := other.Login(testPassword)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{name: "no token", want: http.StatusUnauthorized},
		{name: "garbage token", token: "not-a-jwt", want: http.StatusUnauthorized},
		{name: "wrong secret", token: forged, want: http.StatusUnauthorized},
		{name: "valid token", token: token, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodGet, "/api/tickets?guildId="+testGuild, tt.token, nil)
			require.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAuth_ExpiredToken(t *testing.T) {
	a := NewAuth([]byte("secret"), testPassword, time.Minute)
	issued := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return issued }

	token, expires, err := a.Login(testPassword)
	require.NoError(t, err)
	require.Equal(t, issued.Add(time.Minute), expires)
	require.NoError(t, a.Verify(token))

	a.now = func() time.Time { return issued.Add(2 * time.Minute) }
	require.Error(t, a.Verify(token))
}

func TestGuildIDRequired(t *testing.T) {
	f := newFixture(t, Config{})
	token := f.login(t)

	for _, target := range []string{
		"/api/ticket/config",
		"/api/tickets",
		"/api/button-roles",
		"/api/reaction-roles",
		"/api/moderation/warnings",
		"/api/notifications",
		"/api/notifications/rss",
		"/api/commands",
		"/api/stats",
	} {
		w := f.do(t, http.MethodGet, target, token, nil)
		require.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestTicketConfigRoundTrip(t *testing.T) {
	f := newFixture(t, Config{})
	token := f.login(t)
	target := "/api/ticket/config?guildId=" + testGuild

	w := f.do(t, http.MethodGet, target, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cfg := new(entities.TicketConfig)
	require.NoError(t, json.NewDecoder(w.Body).Decode(cfg))
	require.False(t, cfg.Enabled)

	cfg.Enabled = true
	cfg.MaxTicketsPerUser = 3
	cfg.SupportRoles = []string{"role-support"}
	w = f.do(t, http.MethodPost, target, token, cfg)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, target, token, nil)
	got := new(entities.TicketConfig)
	require.NoError(t, json.NewDecoder(w.Body).Decode(got))
	require.True(t, got.Enabled)
	require.Equal(t, 3, got.MaxTicketsPerUser)
	require.Equal(t, []string{"role-support"}, got.SupportRoles)

	cfg.MaxTicketsPerUser = 0
	w = f.do(t, http.MethodPost, target, token, cfg)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTicketTypes(t *testing.T) {
	f := newFixture(t, Config{})
	token := f.login(t)
	target := "/api/ticket/types?guildId=" + testGuild

	w := f.do(t, http.MethodPost, target, token, &entities.TicketType{Name: "Bug Report"})
	require.Equal(t, http.StatusCreated, w.Code)
	created := new(entities.TicketType)
	require.NoError(t, json.NewDecoder(w.Body).Decode(created))
	require.Equal(t, "bug-report", created.ID)

	w = f.do(t, http.MethodDelete, "/api/ticket/types/"+created.ID+"?guildId="+testGuild, token, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodDelete, "/api/ticket/types/"+created.ID+"?guildId="+testGuild, token, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestWarnEscalates(t *testing.T) {
	f := newFixture(t, Config{})
	token := f.login(t)
	target := "/api/moderation/warn?guildId=" + testGuild

	var last *warnResponse
	for i := 0; i < 3; i++ {
		w := f.do(t, http.MethodPost, target, token, &warnRequest{UserID: "user-1", Reason: "spam"})
		require.Equal(t, http.StatusCreated, w.Code)
		last = new(warnResponse)
		require.NoError(t, json.NewDecoder(w.Body).Decode(last))
		require.Equal(t, DashboardModeratorID, last.Warning.ModeratorID)
	}
	require.NotNil(t, last.Punishment)
	require.Equal(t, entities.PunishmentMute, last.Punishment.Type)

	w := f.do(t, http.MethodGet, "/api/moderation/warnings?guildId="+testGuild+"&userId=user-1", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var warnings []entities.Warning
	require.NoError(t, json.NewDecoder(w.Body).Decode(&warnings))
	require.Len(t, warnings, 3)

	w = f.do(t, http.MethodDelete, "/api/moderation/warnings/"+warnings[0].ID+"?guildId="+testGuild, token, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, 2, f.svc.Moderation.ActiveWarnings(testGuild, "user-1"))

	w = f.do(t, http.MethodPost, target, token, &warnRequest{Reason: "no user"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPunish_InvalidDuration(t *testing.T) {
	f := newFixture(t, Config{})
	token := f.login(t)

	w := f.do(t, http.MethodPost, "/api/moderation/punishments?guildId="+testGuild, token, &punishRequest{
		UserID:   "user-1",
		Type:     entities.PunishmentMute,
		Duration: "forever",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCustomCommands(t *testing.T) {
	f := newFixture(t, Config{})
	token := f.login(t)
	target := "/api/commands?guildId=" + testGuild

	w := f.do(t, http.MethodPost, target, token, &commandRequest{Name: "rules", Response: "Be nice."})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodPost, target, token, &commandRequest{Name: "ping", Response: "shadowed"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, target, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := new(commandsResponse)
	require.NoError(t, json.NewDecoder(w.Body).Decode(resp))
	require.Len(t, resp.Custom, 1)
	require.Equal(t, "rules", resp.Custom[0].Name)

	names := make([]string, 0, len(resp.Builtin))
	for _, c := range resp.Builtin {
		names = append(names, c.Name)
	}
	require.Contains(t, names, "ping")
	require.Contains(t, names, "roll")

	w = f.do(t, http.MethodDelete, "/api/commands/rules?guildId="+testGuild, token, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(t, http.MethodDelete, "/api/commands/rules?guildId="+testGuild, token, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestStats(t *testing.T) {
	f := newFixture(t, Config{})
	token := f.login(t)

	_, _, err := f.svc.Moderation.Warn(context.Background(), testGuild, "user-1", "mod-1", "spam")
	require.NoError(t, err)

	w := f.do(t, http.MethodGet, "/api/stats?guildId="+testGuild, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := new(Stats)
	require.NoError(t, json.NewDecoder(w.Body).Decode(st))
	require.Equal(t, 1, st.Warnings)
	require.Equal(t, 1, st.ActiveWarnings)
	require.True(t, st.Bot.Online)
	require.Zero(t, st.ActiveTickets)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, Config{RateLimit: 0.001, Burst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := f.do(t, http.MethodGet, "/api/tickets?guildId="+testGuild, "", nil)
		codes = append(codes, w.Code)
	}
	require.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}

func TestNotFound(t *testing.T) {
	f := newFixture(t, Config{})

	w := f.do(t, http.MethodGet, "/api/nothing", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPatch, "/api/auth/login", "", nil)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestSocket(t *testing.T) {
	f := newFixture(t, Config{})
	token := f.login(t)

	ts := httptest.NewServer(f.srv)
	t.Cleanup(ts.Close)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws?token="

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"bad", nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return f.hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	f.hub.Emit(events.TicketCreated, map[string]string{"ticketId": "ticket-1"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	frame := new(Frame)
	require.NoError(t, json.Unmarshal(msg, frame))
	require.Equal(t, events.TicketCreated, frame.Event)
	require.Equal(t, map[string]any{"ticketId": "ticket-1"}, frame.Data)

	_ = conn.Close()
	require.Eventually(t, func() bool { return f.hub.Clients() == 0 }, time.Second, 10*time.Millisecond)
}
