package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"github.com/sylphx/lens/internal/app"
	"github.com/sylphx/lens/pkg/config"
	"github.com/sylphx/lens/pkg/logger"
	"github.com/sylphx/lens/pkg/shutdown"
	"github.com/sylphx/lens/pkg/state"
)

// build metadata, set via ldflags during release
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load(".env")
	flags := config.ParseCommandFlags()

	eff, err := config.LoadEffective(flags)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.InitWithLevel(eff.Config.Logging.Level)

	if err := state.EnsureStateDirs(eff.DBPath); err != nil {
		shutdown.Abort("state_dirs_init_failed", err, eff.DBPath)
	}

	a, err := app.New(eff, version, commit, buildDate)
	if err != nil {
		shutdown.Abort("app_init_failed", err, eff.DBPath)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		shutdown.Abort("server_failed", err, eff.DBPath)
	}
	logger.Info("shutdown_complete")
}
