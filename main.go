package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	assistant "github.com/km-arc/go-assistant/app"
	appproviders "github.com/km-arc/go-assistant/app/providers"
	"github.com/km-arc/go-assistant/framework/app"
	"github.com/km-arc/go-assistant/framework/config"
)

func main() {
	cfg, err := config.Load() // reads .env when present
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	application := app.New(cfg,
		app.WithProviders(appproviders.All()...),
		app.WithRoutes(assistant.Routes),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
