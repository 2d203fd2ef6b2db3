//go:build wireinject
// +build wireinject

package main

import (
	"context"

	"github.com/Jacobbrewer1/hound/pkg/commands"
	"github.com/Jacobbrewer1/hound/pkg/dashboard"
	"github.com/Jacobbrewer1/hound/pkg/discord"
	"github.com/Jacobbrewer1/hound/pkg/events"
	"github.com/Jacobbrewer1/hound/pkg/logging"
	"github.com/Jacobbrewer1/hound/pkg/moderation"
	"github.com/Jacobbrewer1/hound/pkg/notify"
	"github.com/Jacobbrewer1/hound/pkg/roles"
	"github.com/Jacobbrewer1/hound/pkg/tasks"
	"github.com/Jacobbrewer1/hound/pkg/tickets"
	"github.com/google/wire"
	"github.com/gorilla/mux"
)

func InitializeApp(ctx context.Context) (*App, func(), error) {
	wire.Build(
		wire.Value(logging.Name(AppName)),
		logging.NewConfig,
		logging.CommonLogger,
		loadConfig,
		newSession,
		discord.NewClient,
		newDocumentStore,
		newTaskQueue,
		wire.Bind(new(tasks.Scheduler), new(*tasks.Queue)),
		dashboard.NewHub,
		wire.Bind(new(events.Emitter), new(*dashboard.Hub)),
		tickets.NewService,
		roles.NewService,
		moderation.NewService,
		notify.NewFeedFetcher,
		notify.NewService,
		commands.NewRegistry,
		wire.Struct(new(dashboard.Services), "*"),
		mux.NewRouter,
		NewApp,
	)
	return nil, nil, nil
}
