package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/Jacobbrewer1/hound/pkg/commands"
	"github.com/Jacobbrewer1/hound/pkg/dashboard"
	"github.com/Jacobbrewer1/hound/pkg/dataaccess"
	"github.com/Jacobbrewer1/hound/pkg/logging"
	"github.com/Jacobbrewer1/hound/pkg/request"
	"github.com/Jacobbrewer1/hound/pkg/tasks"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// PathMetrics is the path for metrics.
	PathMetrics = "/metrics"

	// PathHealth is the path for health check.
	PathHealth = "/health"

	// shutdownTimeout bounds the graceful shutdown.
	shutdownTimeout = 10 * time.Second

	// commandRetryDelay is the wait before slash command registration is retried.
	commandRetryDelay = 5 * time.Second
)

type App struct {
	// l is the logger.
	l *slog.Logger

	// ctx is cancelled when the application shuts down.
	ctx context.Context

	cfg *Config

	// r is the router for the monitoring server.
	r *mux.Router

	// s is the discord session.
	s *discordgo.Session

	store dataaccess.DocumentStore
	queue *tasks.Queue
	hub   *dashboard.Hub
	svc   dashboard.Services

	// eventNotifier is the channel for notifying of events.
	eventNotifier chan any

	statusMut sync.RWMutex
	status    dashboard.BotStatus
	guilds    map[string]bool
}

// NewApp creates a new instance of App.
func NewApp(
	l *slog.Logger,
	cfg *Config,
	r *mux.Router,
	s *discordgo.Session,
	store dataaccess.DocumentStore,
	queue *tasks.Queue,
	hub *dashboard.Hub,
	svc dashboard.Services,
) *App {
	return &App{
		l:      l,
		ctx:    context.Background(),
		cfg:    cfg,
		r:      r,
		s:      s,
		store:  store,
		queue:  queue,
		hub:    hub,
		svc:    svc,
		guilds: make(map[string]bool),
	}
}

// Run starts the bot and its servers and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.ctx = ctx

	// Default the number of guilds to 0.
	TotalDiscordGuilds.Set(0)

	if err := a.load(ctx); err != nil {
		return err
	}
	if err := a.registerCommands(); err != nil {
		return fmt.Errorf("error registering commands: %w", err)
	}

	a.queue.Handle(tasks.KindDeleteTicketChannel, a.svc.Tickets.HandleDeleteChannel)
	a.queue.Handle(tasks.KindDeleteMessage, a.svc.Moderation.HandleDeleteMessage)
	a.queue.Handle(tasks.KindUnban, a.svc.Moderation.HandleUnban)

	// Create event notifier. It is buffered to prevent blocking.
	a.eventNotifier = make(chan any, 100)
	a.s.SetEventNotifier(a.eventNotifier)
	go a.eventListener()

	a.registerDiscordHandlers()

	// Open websocket.
	if err := a.s.Open(); err != nil {
		return fmt.Errorf("error opening connection to Discord: %w", err)
	}
	a.l.Info("Bot is now running.")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.queue.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := a.svc.Notify.Start(ctx); err != nil {
			a.l.Error("Error running notifications", slog.String(logging.KeyError, err.Error()))
		}
	}()

	monitoring := a.monitoringServer()
	api := a.dashboardServer()
	a.serve("monitoring", monitoring)
	a.serve("dashboard", api)

	<-ctx.Done()
	a.l.Info("Shutting down")

	a.shutdown(monitoring, api)
	wg.Wait()
	return nil
}

// load reads the persisted state of every engine.
func (a *App) load(ctx context.Context) error {
	loaders := []struct {
		name string
		load func(context.Context) error
	}{
		{"tickets", a.svc.Tickets.Load},
		{"roles", a.svc.Roles.Load},
		{"moderation", a.svc.Moderation.Load},
		{"notifications", a.svc.Notify.Load},
		{"commands", a.svc.Commands.Load},
	}
	for _, ld := range loaders {
		if err := ld.load(ctx); err != nil {
			return fmt.Errorf("error loading %s: %w", ld.name, err)
		}
	}
	return nil
}

func (a *App) registerCommands() error {
	if err := commands.RegisterBuiltins(a.svc.Commands, commands.BuiltinOptions{
		Prefix:  a.cfg.Prefix,
		Latency: a.s.HeartbeatLatency,
	}); err != nil {
		return err
	}
	for _, d := range a.slashDescriptors() {
		if err := a.svc.Commands.Register(d); err != nil {
			return fmt.Errorf("error registering %s: %w", d.Name, err)
		}
	}
	return nil
}

// registerGuildCommands replaces the slash commands of a guild. A failure is retried once.
func (a *App) registerGuildCommands(guildID string) {
	defs := a.svc.Commands.SlashDefinitions()

	_, err := a.s.ApplicationCommandBulkOverwrite(a.cfg.ApplicationId, guildID, defs)
	if err == nil {
		return
	}
	a.l.Warn("Error registering slash commands, retrying",
		slog.String(logging.KeyGuild, guildID),
		slog.String(logging.KeyError, err.Error()),
	)

	go func() {
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(commandRetryDelay):
		}
		if _, err := a.s.ApplicationCommandBulkOverwrite(a.cfg.ApplicationId, guildID, defs); err != nil {
			a.l.Error("Error registering slash commands",
				slog.String(logging.KeyGuild, guildID),
				slog.String(logging.KeyError, err.Error()),
			)
		}
	}()
}

func (a *App) monitoringServer() *http.Server {
	a.r.HandleFunc(PathMetrics, promhttp.Handler().ServeHTTP).Methods(http.MethodGet)
	a.r.HandleFunc(PathHealth, middlewareHttp(a.l, a.healthCheck())).Methods(http.MethodGet)

	a.r.NotFoundHandler = request.NotFoundHandler(a.l)
	a.r.MethodNotAllowedHandler = request.MethodNotAllowedHandler(a.l)

	return &http.Server{
		Addr:              ":" + a.cfg.MonitoringPort,
		Handler:           a.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (a *App) dashboardServer() *http.Server {
	api := dashboard.NewServer(a.l, dashboard.Config{
		JWTSecret: []byte(a.cfg.Dashboard.JWTSecret),
		Password:  a.cfg.Dashboard.Password,
		TokenTTL:  a.cfg.Dashboard.TokenTTL,
		RateLimit: a.cfg.Dashboard.RateLimit,
		Burst:     a.cfg.Dashboard.Burst,
	}, a.svc, a.hub, a.botStatus)
	if a.cfg.Dashboard.Password == "" {
		a.l.Warn("No dashboard password is set, dashboard login is disabled")
	}

	return &http.Server{
		Addr:              ":" + a.cfg.DashboardPort,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (a *App) serve(name string, svr *http.Server) {
	go func() {
		a.l.Info("Starting "+name+" server", slog.String("addr", svr.Addr))
		if err := svr.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.l.Error("Error running "+name+" server", slog.String(logging.KeyError, err.Error()))
			a.l.Warn(name + " server will not be available")
		}
	}()
}

func (a *App) shutdown(servers ...*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, svr := range servers {
		if err := svr.Shutdown(ctx); err != nil {
			a.l.Error("Error stopping server", slog.String(logging.KeyError, err.Error()))
		}
	}

	a.statusMut.Lock()
	a.status.Online = false
	a.statusMut.Unlock()
	a.emitStatus()
	a.hub.Close()

	// Write anything still waiting for the debounce.
	flushers := []struct {
		name  string
		flush func(context.Context) error
	}{
		{"moderation", a.svc.Moderation.Flush},
		{"notifications", a.svc.Notify.Flush},
		{"commands", a.svc.Commands.Flush},
	}
	for _, f := range flushers {
		if err := f.flush(ctx); err != nil {
			a.l.Error("Error saving "+f.name, slog.String(logging.KeyError, err.Error()))
		}
	}

	// Reset the total number of guilds to 0.
	TotalDiscordGuilds.Set(0)

	// Close the connection to Discord.
	if err := a.s.Close(); err != nil {
		a.l.Error("Error closing connection to Discord", slog.String(logging.KeyError, err.Error()))
	}
}
