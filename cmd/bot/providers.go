package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/Jacobbrewer1/hound/pkg/dataaccess"
	"github.com/Jacobbrewer1/hound/pkg/dataaccess/connection"
	"github.com/Jacobbrewer1/hound/pkg/logging"
	"github.com/Jacobbrewer1/hound/pkg/tasks"
)

// taskDatabase is the file name of the task database inside the data directory.
const taskDatabase = "tasks.db"

func newSession(cfg *Config) (*discordgo.Session, error) {
	dg, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.MakeIntent(discordgo.IntentsAll)
	return dg, nil
}

// newDocumentStore opens the configured document store. The cleanup disconnects MongoDB.
func newDocumentStore(ctx context.Context, l *slog.Logger, cfg *Config) (dataaccess.DocumentStore, func(), error) {
	if cfg.StorageBackend != StorageMongo {
		store, err := dataaccess.NewFileStore(l, cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		l.Info("Using file storage", slog.String("dir", cfg.DataDir))
		return store, func() {}, nil
	}

	conn := &connection.MongoDB{ConnectionString: cfg.MongoUri}
	client, err := conn.Connect(ctx)
	if err != nil {
		return nil, nil, err
	}
	l.Info("Using MongoDB storage")

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(ctx); err != nil {
			l.Error("Error disconnecting from MongoDB", slog.String(logging.KeyError, err.Error()))
		}
	}
	return dataaccess.NewMongoStore(l, client), cleanup, nil
}

func newTaskQueue(l *slog.Logger, cfg *Config) (*tasks.Queue, func(), error) {
	q, err := tasks.Open(l, filepath.Join(cfg.DataDir, taskDatabase))
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := q.Close(); err != nil {
			l.Error("Error closing task database", slog.String(logging.KeyError, err.Error()))
		}
	}
	return q, cleanup, nil
}
