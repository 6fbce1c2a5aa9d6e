// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/fieldcheck/internal/api"
	"github.com/tomtom215/fieldcheck/internal/cache"
	"github.com/tomtom215/fieldcheck/internal/config"
	"github.com/tomtom215/fieldcheck/internal/database"
	"github.com/tomtom215/fieldcheck/internal/events"
	"github.com/tomtom215/fieldcheck/internal/extract"
	"github.com/tomtom215/fieldcheck/internal/logging"
	"github.com/tomtom215/fieldcheck/internal/metrics"
	"github.com/tomtom215/fieldcheck/internal/models"
	"github.com/tomtom215/fieldcheck/internal/notify"
	"github.com/tomtom215/fieldcheck/internal/quality"
	"github.com/tomtom215/fieldcheck/internal/supervisor"
	"github.com/tomtom215/fieldcheck/internal/supervisor/services"
	fcsync "github.com/tomtom215/fieldcheck/internal/sync"
	"github.com/tomtom215/fieldcheck/internal/upstream"
	ws "github.com/tomtom215/fieldcheck/internal/websocket"
)

// Set at build time with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "unknown"
)

const checkpointInterval = 15 * time.Minute

// app holds the components shared by server and one-shot modes.
type app struct {
	cfg      *config.Config
	db       *database.DB
	bus      *events.Bus
	hub      *ws.Hub
	syncSvc  *fcsync.Service
	metrics  *cache.Cache
	filters  *cache.Cache
	notifier *notify.Notifier
}

func main() {
	once := flag.Bool("once", false, "run a single sync in the foreground and exit")
	resource := flag.String("resource", string(models.ResourceJobs), "resource for -once: jobs or organizations")
	mode := flag.String("mode", string(models.SyncModeDifferential), "mode for -once: full or differential")
	flag.Parse()

	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	logging.Info().
		Str("version", version).
		Str("commit", commit).
		Str("db_path", cfg.Database.Path).
		Strs("allowed_categories", cfg.Rules.AllowedCategories).
		Bool("notifications", cfg.Notify.Enabled()).
		Msg("Starting Fieldcheck")
	metrics.AppInfo.WithLabelValues(version, commit).Set(1)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	a, err := build(ctx, cfg)
	if err != nil {
		stop()
		logging.Fatal().Err(err).Msg("Failed to initialize")
	}

	var code int
	if *once {
		code = a.runOnce(ctx, models.SyncResource(*resource), models.SyncMode(*mode))
	} else {
		a.serve(ctx)
	}

	stop()
	a.close()
	os.Exit(code)
}

// build opens the database and wires the sync pipeline to the event bus.
func build(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, err
	}
	db.SetConflictRetry(cfg.Sync.RetryAttempts, cfg.Sync.RetryDelay)
	logging.Info().Msg("Database initialized")

	bus, err := events.New(events.ConfigFromEvents(&cfg.Events))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if cfg.Events.NATS.Enabled {
		fwd, err := events.NewNATSForwarder(ctx, &cfg.Events.NATS)
		switch {
		case errors.Is(err, events.ErrNATSNotCompiled):
			logging.Warn().Msg("NATS forwarding configured but binary built without -tags nats")
		case err != nil:
			logging.Warn().Err(err).Str("url", cfg.Events.NATS.URL).Msg("NATS forwarding disabled")
		default:
			bus.SetForwarder(fwd)
			logging.Info().Str("url", cfg.Events.NATS.URL).Msg("Forwarding events to NATS JetStream")
		}
	}

	var client upstream.API = upstream.NewClient(&cfg.Upstream)
	if cfg.Upstream.CircuitBreaker.Enabled {
		client = upstream.NewBreakerClient(client, &cfg.Upstream.CircuitBreaker)
	}

	rules := extract.NewRules(&cfg.Rules)
	opts := fcsync.OptionsFromConfig(cfg)
	jobs := fcsync.NewEngine(client, db, quality.New(&cfg.Rules), rules, opts)
	orgs := fcsync.NewOrganizationEngine(client, db, rules, opts)
	jobs.SetEventPublisher(bus)
	orgs.SetEventPublisher(bus)

	hub := ws.NewHub()
	a := &app{
		cfg:     cfg,
		db:      db,
		bus:     bus,
		hub:     hub,
		syncSvc: fcsync.NewService(jobs, orgs, hub.BroadcastSyncProgress),
		metrics: cache.New("metrics", cfg.API.MetricsCacheTTL),
		filters: cache.New("filters", cfg.API.FiltersCacheTTL),
	}

	if cfg.Notify.Enabled() {
		a.notifier = notify.New(&cfg.Notify, cfg.Upstream.WebURL, db)
		bus.OnFlagRaised("notifier", a.notifier.HandleFlagRaised)
		logging.Info().Str("channel", a.notifier.Channel()).Msg("Billing notifications enabled")
	}
	bus.OnSyncCompleted("websocket-hub", hub.HandleSyncCompleted)
	bus.OnSyncCompleted("cache-metrics", a.metrics.HandleSyncCompleted)
	bus.OnSyncCompleted("cache-filters", a.filters.HandleSyncCompleted)

	return a, nil
}

// serve runs every service under the supervisor tree until ctx ends.
func (a *app) serve(ctx context.Context) {
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	handler := api.NewHandler(a.cfg, api.Deps{
		Store:        a.db,
		Sync:         a.syncSvc,
		Hub:          a.hub,
		MetricsCache: a.metrics,
		FiltersCache: a.filters,
		Version:      version,
	})
	server := &http.Server{
		Addr:              a.cfg.Server.Addr(),
		Handler:           api.NewRouter(handler, a.cfg),
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	tree.AddDataService(services.NewCheckpointService(a.db, checkpointInterval))
	tree.AddDataService(a.metrics)
	tree.AddDataService(a.filters)

	tree.AddMessagingService(a.bus)
	tree.AddMessagingService(a.hub)
	tree.AddMessagingService(services.NewSyncService(a.syncSvc, a.cfg.Server.ShutdownTimeout))
	if a.cfg.Sync.Enabled {
		tree.AddMessagingService(fcsync.NewScheduler(a.syncSvc, fcsync.ScheduleFromConfig(&a.cfg.Sync)))
	} else {
		logging.Info().Msg("Scheduled sync disabled; runs only via POST /api/v1/sync")
	}

	tree.AddAPIService(services.NewHTTPServerService(server, a.cfg.Server.ShutdownTimeout))

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}
	logging.Info().Msg("Fieldcheck stopped")
}

// runOnce runs one sync in the foreground and returns the process exit code.
func (a *app) runOnce(ctx context.Context, resource models.SyncResource, mode models.SyncMode) int {
	if !resource.Valid() || !mode.Valid() {
		logging.Error().Str("resource", string(resource)).Str("mode", string(mode)).Msg("Invalid -resource or -mode")
		return 2
	}

	busCtx, stopBus := context.WithCancel(context.Background())
	busDone := make(chan struct{})
	go func() {
		defer close(busDone)
		_ = a.bus.Serve(busCtx)
	}()
	// GoChannel drops messages published before the router subscribes.
	select {
	case <-a.bus.Running():
	case <-ctx.Done():
	}

	stats, err := a.syncSvc.Run(ctx, resource, mode)

	// Closing the bus waits for in-flight handlers, so notifications go out first.
	if cerr := a.bus.Close(); cerr != nil {
		logging.Warn().Err(cerr).Msg("Event bus close error")
	}
	stopBus()
	<-busDone

	if err != nil {
		logging.Error().Err(err).Str("resource", string(resource)).Msg("Sync failed")
		return 1
	}
	logging.Info().
		Str("resource", string(resource)).
		Str("mode", string(mode)).
		Int("processed", stats.Processed).
		Int("flags_created", stats.FlagsCreated).
		Msg("Sync complete")
	return 0
}

func (a *app) close() {
	if err := a.bus.Close(); err != nil {
		logging.Debug().Err(err).Msg("Event bus close")
	}
	if err := a.db.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing database")
	}
}
