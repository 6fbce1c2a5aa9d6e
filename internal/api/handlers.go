// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package api

import (
	"context"
	"net/http"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/tomtom215/fieldcheck/internal/cache"
	"github.com/tomtom215/fieldcheck/internal/config"
	"github.com/tomtom215/fieldcheck/internal/models"
	fcsync "github.com/tomtom215/fieldcheck/internal/sync"
	ws "github.com/tomtom215/fieldcheck/internal/websocket"
)

// Store is the subset of the database the API reads and writes.
type Store interface {
	Ping(ctx context.Context) error
	QueryJobs(ctx context.Context, filter *models.JobFilter) (*models.JobPage, error)
	GetJobDetail(ctx context.Context, jobUID string) (*models.JobDetail, error)
	ResolveJobFlags(ctx context.Context, jobUID string) (int, error)
	ResolveFlag(ctx context.Context, id int64) (bool, error)
	QueryMetrics(ctx context.Context, filter *models.JobFilter) (*models.Metrics, error)
	FilterOptions(ctx context.Context) (*models.FilterOptions, error)
	AssetsWithCounts(ctx context.Context) ([]models.AssetCount, error)
	SearchSerials(ctx context.Context, serials []string) ([]models.SerialMatch, error)
	QueryOrganizations(ctx context.Context, filter *models.OrganizationFilter) (*models.OrganizationPage, error)
	RecentSyncLogs(ctx context.Context, limit int) ([]models.SyncLog, error)
	LastSyncTime(ctx context.Context, resource models.SyncResource) (*time.Time, error)
	PruneOutOfScope(ctx context.Context, allowList []string) (int, error)
}

// SyncController starts background runs and reports engine state.
type SyncController interface {
	Trigger(resource models.SyncResource, mode models.SyncMode) error
	Status() []fcsync.Status
}

// Deps are the collaborators a Handler serves from.
type Deps struct {
	Store        Store
	Sync         SyncController
	Hub          *ws.Hub
	MetricsCache *cache.Cache
	FiltersCache *cache.Cache
	Version      string
}

// Handler holds the HTTP handlers of the reporting API.
type Handler struct {
	store        Store
	sync         SyncController
	hub          *ws.Hub
	metricsCache *cache.Cache
	filtersCache *cache.Cache
	version      string

	apiCfg            config.APIConfig
	allowedCategories []string
	upgrader          gorillaws.Upgrader
	startTime         time.Time
}

// NewHandler builds a Handler. Missing caches are created with the configured TTLs.
func NewHandler(cfg *config.Config, deps Deps) *Handler {
	h := &Handler{
		store:             deps.Store,
		sync:              deps.Sync,
		hub:               deps.Hub,
		metricsCache:      deps.MetricsCache,
		filtersCache:      deps.FiltersCache,
		version:           deps.Version,
		apiCfg:            cfg.API,
		allowedCategories: cfg.Rules.AllowedCategories,
		upgrader:          newUpgrader(cfg.Security.CORSOrigins),
		startTime:         time.Now(),
	}
	if h.metricsCache == nil {
		h.metricsCache = cache.New("metrics", cfg.API.MetricsCacheTTL)
	}
	if h.filtersCache == nil {
		h.filtersCache = cache.New("filters", cfg.API.FiltersCacheTTL)
	}
	if h.version == "" {
		h.version = "dev"
	}
	return h
}

// newUpgrader accepts WebSocket handshakes from the configured origins. "*" allows
// any origin; a missing Origin header is rejected.
func newUpgrader(origins []string) gorillaws.Upgrader {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return gorillaws.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return false
			}
			return allowed["*"] || allowed[origin]
		},
	}
}
