// Package dashboard serves the REST API and live event socket used by the web dashboard.
package dashboard

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Jacobbrewer1/hound/pkg/commands"
	"github.com/Jacobbrewer1/hound/pkg/logging"
	"github.com/Jacobbrewer1/hound/pkg/moderation"
	"github.com/Jacobbrewer1/hound/pkg/notify"
	"github.com/Jacobbrewer1/hound/pkg/request"
	"github.com/Jacobbrewer1/hound/pkg/roles"
	"github.com/Jacobbrewer1/hound/pkg/tickets"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
)

// DashboardModeratorID is the moderator recorded for actions taken from the dashboard.
const DashboardModeratorID = "dashboard"

// Config configures the dashboard API.
type Config struct {
	// JWTSecret signs the dashboard tokens.
	JWTSecret []byte

	// Password is the dashboard login password. An empty password disables login.
	Password string

	// TokenTTL is how long a token is valid for.
	TokenTTL time.Duration

	// RateLimit is the sustained requests per second allowed per client, with Burst on top.
	// Zero disables rate limiting.
	RateLimit float64
	Burst     int
}

// Services are the engines the API exposes.
type Services struct {
	Tickets    *tickets.Service
	Roles      *roles.Service
	Moderation *moderation.Service
	Notify     *notify.Service
	Commands   *commands.Registry
}

// BotStatus is the bot connection state reported by the stats endpoint and botStatus events.
type BotStatus struct {
	Online bool   `json:"online"`
	Guilds int    `json:"guilds"`
	User   string `json:"user,omitempty"`
}

// Server is the dashboard API.
type Server struct {
	l       *slog.Logger
	r       *mux.Router
	auth    *Auth
	limiter *limiter
	hub     *Hub
	svc     Services

	// status reports the bot connection, nil when unknown.
	status func() BotStatus
}

// NewServer builds the API routes.
func NewServer(l *slog.Logger, cfg Config, svc Services, hub *Hub, status func() BotStatus) *Server {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	s := &Server{
		l:       l.With(slog.String(logging.KeyComponent, "dashboard")),
		r:       mux.NewRouter(),
		auth:    NewAuth(cfg.JWTSecret, cfg.Password, ttl),
		limiter: newLimiter(limit, cfg.Burst),
		hub:     hub,
		svc:     svc,
		status:  status,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.r.ServeHTTP(w, r)
}

func (s *Server) routes() {
	api := s.r.PathPrefix("/api").Subrouter()

	// Authentication.
	api.HandleFunc("/auth/login", s.middleware(s.login, authOptionNone)).Methods(http.MethodPost)

	// Tickets.
	api.HandleFunc("/ticket/config", s.middleware(s.getTicketConfig, authOptionToken)).Methods(http.MethodGet)
	api.HandleFunc("/ticket/config", s.middleware(s.saveTicketConfig, authOptionToken)).Methods(http.MethodPost)
	api.HandleFunc("/tickets", s.middleware(s.listTickets, authOptionToken)).Methods(http.MethodGet)
	api.HandleFunc("/ticket/deploy", s.middleware(s.deployTicketPanel, authOptionToken)).Methods(http.MethodPost)
	api.HandleFunc("/ticket/types", s.middleware(s.listTicketTypes, authOptionToken)).Methods(http.MethodGet)
	api.HandleFunc("/ticket/types", s.middleware(s.createTicketType, authOptionToken)).Methods(http.MethodPost)
	api.HandleFunc("/ticket/types/{id}", s.middleware(s.updateTicketType, authOptionToken)).Methods(http.MethodPut)
	api.HandleFunc("/ticket/types/{id}", s.middleware(s.deleteTicketType, authOptionToken)).Methods(http.MethodDelete)
	api.HandleFunc("/ticket/{id}/close", s.middleware(s.closeTicket, authOptionToken)).Methods(http.MethodPost)

	// Roles.
	api.HandleFunc("/button-roles", s.middleware(s.listButtonRoles, authOptionToken)).Methods(http.MethodGet)
	api.HandleFunc("/button-roles", s.middleware(s.createButtonRoles, authOptionToken)).Methods(http.MethodPost)
	api.HandleFunc("/button-roles/{id}", s.middleware(s.updateButtonRoles, authOptionToken)).Methods(http.MethodPut)
	api.HandleFunc("/button-roles/{id}", s.middleware(s.deleteButtonRoles, authOptionToken)).Methods(http.MethodDelete)
	api.HandleFunc("/button-roles/{id}/deploy", s.middleware(s.deployButtonRoles, authOptionToken)).Methods(http.MethodPost)
	api.HandleFunc("/reaction-roles", s.middleware(s.listReactionRoles, authOptionToken)).Methods(http.MethodGet)
	api.HandleFunc("/reaction-roles", s.middleware(s.createReactionRole, authOptionToken)).Methods(http.MethodPost)
	api.HandleFunc("/reaction-roles", s.middleware(s.deleteReactionRole, authOptionToken)).Methods(http.MethodDelete)
	api.HandleFunc("/roles/logging", s.middleware(s.getRoleLogConfig, authOptionToken)).Methods(http.MethodGet)
	api.HandleFunc("/roles/logging", s.middleware(s.saveRoleLogConfig, authOptionToken)).Methods(http.MethodPost)
	api.HandleFunc("/roles/automation", s.middleware(s.listRules, authOptionToken)).Methods(http.MethodGet)
	api.HandleFunc("/roles/automation", s.middleware(s.createRule, authOptionToken)).Methods(http.MethodPost)
	api.HandleFunc("/roles/automation/{id}", s.middleware(s.deleteRule, authOptionToken)).Methods(http.MethodDelete)

	// Moderation.
	api.HandleFunc("/moderation/warnings", s.middleware(s.listWarnings, authOptionToken)).Methods(http.MethodGet)
	api.HandleFunc("/moderation/warn", s.middleware(s.warn, authOptionToken)).Methods(http.MethodPost)
	api.HandleFunc("/moderation/warnings/{id}", s.middleware(s.removeWarning, authOptionToken)).Methods(http.MethodDelete)
	api.HandleFunc("/moderation/punishments", s.middleware(s.listPunishments, authOptionToken)).Methods(http.MethodGet)
	api.HandleFunc("/moderation/punishments", s.middleware(s.punish, authOptionToken)).Methods(http.MethodPost)
	api.HandleFunc("/moderation/punishments/{id}", s.middleware(s.removePunishment, authOptionToken)).Methods(http.MethodDelete)
	api.HandleFunc("/moderation/automod", s.middleware(s.getAutoMod, authOptionToken)).Methods(http.MethodGet)
	api.HandleFunc("/moderation/automod", s.middleware(s.saveAutoMod, authOptionToken)).Methods(http.MethodPost)
	api.HandleFunc("/moderation/logs", s.middleware(s.moderationLogs, authOptionToken)).Methods(http.MethodGet)

	// Notifications.
	api.HandleFunc("/notifications", s.middleware(s.listScheduled, authOptionToken)).Methods(http.MethodGet)
	api.HandleFunc("/notifications", s.middleware(s.createScheduled, authOptionToken)).Methods(http.MethodPost)
	api.HandleFunc("/notifications/rss", s.middleware(s.listFeeds, authOptionToken)).Methods(http.MethodGet)
	api.HandleFunc("/notifications/rss", s.middleware(s.createFeed, authOptionToken)).Methods(http.MethodPost)
	api.HandleFunc("/notifications/rss/{id}", s.middleware(s.deleteFeed, authOptionToken)).Methods(http.MethodDelete)
	api.HandleFunc("/notifications/{id}", s.middleware(s.deleteScheduled, authOptionToken)).Methods(http.MethodDelete)

	// Commands and stats.
	api.HandleFunc("/commands", s.middleware(s.listCommands, authOptionToken)).Methods(http.MethodGet)
	api.HandleFunc("/commands", s.middleware(s.createCommand, authOptionToken)).Methods(http.MethodPost)
	api.HandleFunc("/commands/{name}", s.middleware(s.deleteCommand, authOptionToken)).Methods(http.MethodDelete)
	api.HandleFunc("/stats", s.middleware(s.stats, authOptionToken)).Methods(http.MethodGet)

	// Live events. Browsers cannot set headers on sockets, the token comes in the query.
	api.HandleFunc("/ws", s.middleware(s.hub.Serve, authOptionToken)).Methods(http.MethodGet)

	s.r.NotFoundHandler = request.NotFoundHandler(s.l)
	s.r.MethodNotAllowedHandler = request.MethodNotAllowedHandler(s.l)
}

// guildID reads the required guildId query parameter.
func guildID(r *http.Request) (string, bool) {
	id := r.URL.Query().Get("guildId")
	return id, id != ""
}

// fail maps an engine error to a response. Unexpected errors are logged and hidden.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.l.Error("Error handling dashboard request", slog.String(logging.KeyError, err.Error()))
		request.Error(s.l, w, status, request.ErrInternalServer.Error())
		return
	}
	request.Error(s.l, w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tickets.ErrInvalid),
		errors.Is(err, tickets.ErrCategoryNotFound),
		errors.Is(err, roles.ErrInvalid),
		errors.Is(err, moderation.ErrInvalid),
		errors.Is(err, notify.ErrInvalid),
		errors.Is(err, commands.ErrInvalid),
		errors.Is(err, commands.ErrDuplicate):
		return http.StatusBadRequest
	case errors.Is(err, tickets.ErrNotTicket),
		errors.Is(err, tickets.ErrTypeNotFound),
		errors.Is(err, roles.ErrBindingNotFound),
		errors.Is(err, roles.ErrSetupNotFound),
		errors.Is(err, roles.ErrRuleNotFound),
		errors.Is(err, moderation.ErrNotFound),
		errors.Is(err, notify.ErrNotFound),
		errors.Is(err, commands.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, tickets.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, tickets.ErrDisabled),
		errors.Is(err, tickets.ErrTicketLimit):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
