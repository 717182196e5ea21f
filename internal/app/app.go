// Package app wires the data layer together: store, registry,
// generated resource APIs, event bus, optimistic manager and the HTTP
// surface, and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/joho/godotenv"

	"github.com/sylphx/lens/internal/retention"
	"github.com/sylphx/lens/pkg/banner"
	"github.com/sylphx/lens/pkg/config"
	"github.com/sylphx/lens/pkg/loader"
	"github.com/sylphx/lens/pkg/logger"
	"github.com/sylphx/lens/pkg/optimistic"
	"github.com/sylphx/lens/pkg/pubsub"
	"github.com/sylphx/lens/pkg/resource"
	"github.com/sylphx/lens/pkg/schema"
	"github.com/sylphx/lens/pkg/store"
	"github.com/sylphx/lens/pkg/strategy"
	"github.com/sylphx/lens/pkg/subscribe"
	"github.com/sylphx/lens/pkg/transport"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	registry *schema.Registry
	db       *store.Pebble
	bus      *pubsub.Bus
	service  *resource.Service
	manager  *optimistic.Manager
	handler  *transport.Handler
	router   *subscribe.Router
	strat    strategy.Strategy

	srv             *http.Server
	cancelRetention context.CancelFunc
}

// New initializes resources that do not require a running context: the
// store, the schema registry and the generated service. Call Run to
// start the HTTP server and background jobs.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")
	cfg := eff.Config

	strat, err := strategy.ForName(cfg.Strategy.Default)
	if err != nil {
		return nil, fmt.Errorf("invalid default strategy: %w", err)
	}

	registry, err := buildRegistry()
	if err != nil {
		return nil, fmt.Errorf("schema registry: %w", err)
	}

	db, err := store.OpenPebble(eff.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}

	bus := pubsub.New(pubsub.Options{
		Buffer: cfg.Publish.Buffer,
		RPS:    cfg.Publish.RPS,
		Burst:  cfg.Publish.Burst,
	})

	channels := subscribe.ChannelFunc(subscribe.DefaultChannel)
	service, err := resource.NewService(resource.Deps{
		Registry: registry,
		Store:    db,
		Bus:      bus,
		Channels: channels,
		LoaderOpts: loader.Options{
			Wait:         cfg.Loader.Wait.Duration(),
			MaxBatchSize: cfg.Loader.MaxBatchSize,
			DisableCache: cfg.Loader.DisableCache,
		},
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	manager := optimistic.NewManager(optimistic.Options{
		OpTimeout:     cfg.Optimistic.OpTimeout.Duration(),
		SweepInterval: cfg.Optimistic.SweepInterval.Duration(),
		Runner:        &optimistic.BusRunner{Bus: bus},
	})

	a := &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		registry:  registry,
		db:        db,
		bus:       bus,
		service:   service,
		manager:   manager,
		router:    subscribe.NewRouterWith(channels),
		strat:     strat,
	}
	a.handler = &transport.Handler{
		Registry:   registry,
		Service:    service,
		Optimistic: manager,
	}
	return a, nil
}

// Run starts background jobs and the HTTP server, and blocks until ctx
// is cancelled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	go a.manager.Start(ctx)

	cancelRetention, err := retention.Start(ctx, a.eff.Config.Optimistic.Retention, a.manager)
	if err != nil {
		return err
	}
	a.cancelRetention = cancelRetention

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.Close()
		return nil
	case err := <-errCh:
		a.Close()
		return err
	}
}

// Close releases everything New and Run acquired.
func (a *App) Close() {
	if a.cancelRetention != nil {
		a.cancelRetention()
	}
	if a.srv != nil {
		_ = a.srv.Close()
	}
	a.bus.Close()
	if err := a.db.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
	}
}

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "none" && a.commit != "" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "unknown" && a.buildDate != "" {
		verStr += " @ " + a.buildDate
	}
	banner.Print(a.eff, verStr)
}
