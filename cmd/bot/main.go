package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Jacobbrewer1/hound/pkg/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := InitializeApp(ctx)
	if err != nil {
		log.Fatalln(err)
	}

	a.l.Info("Starting application")
	err = a.Run(ctx)
	cleanup()
	if err != nil {
		a.l.Error("Error running application", slog.String(logging.KeyError, err.Error()))
		os.Exit(1)
	}
}
