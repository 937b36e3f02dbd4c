// Package app assembles the resolution service from configuration. Both the
// HTTP server and the command-line resolver start from here.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"comfydeps/internal/config"
	"comfydeps/internal/files"
	"comfydeps/internal/loaders"
	"comfydeps/internal/logging"
	"comfydeps/internal/nodes"
	"comfydeps/internal/observability"
	"comfydeps/internal/registry"
	"comfydeps/internal/repository"
	"comfydeps/internal/revision"
	"comfydeps/internal/services"
)

// App holds the wired service and the resources it owns.
type App struct {
	Service *services.ResolutionService
	Metrics *observability.Metrics
	Store   repository.ResolutionStore

	pool *pgxpool.Pool
}

// Close releases the database pool, if any.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// New wires registry access, revision pinning, file extraction and the
// optional Postgres store according to cfg.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*App, error) {
	metrics, err := observability.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	fetcher := registry.NewFetcher(
		cfg.Registry.ExtensionMapURL,
		cfg.Registry.CatalogURL,
		cfg.Registry.Timeout,
		logger,
		registry.WithBlacklist(cfg.Registry.Blacklist...),
		registry.WithFetchHook(func(document string, err error) {
			metrics.RecordRegistryFetch(context.Background(), document, err)
		}),
	)
	source := registry.NewCache(fetcher, cfg.Registry.CacheTTL)

	github := revision.NewGitHubClient(cfg.GitHub.APIURL, cfg.GitHub.Token, cfg.GitHub.Timeout)
	revisions := revision.NewResolver(github, logger)
	revisions.OnLiveLookup(func(err error) {
		metrics.RecordLiveLookup(context.Background(), err)
	})

	resolver := nodes.NewResolver(revisions, logger, cfg.Files.Concurrency)

	hasher := files.LocalHasher{Root: cfg.Files.Root}
	var upload files.UploadFunc
	if cfg.Files.UploadDir != "" {
		upload = files.DirUploader{
			SourceRoot: cfg.Files.Root,
			Dir:        cfg.Files.UploadDir,
			BaseURL:    cfg.Files.UploadBaseURL,
		}.Upload
	}
	extractor := files.NewExtractor(hasher.Hash, upload, cfg.Files.Concurrency)

	opts := []services.Option{
		services.WithMetrics(metrics),
		services.WithTimeout(cfg.Resolver.Timeout),
		services.WithManualRepos(cfg.Resolver.ManualRepos),
	}

	if cfg.Loaders.OverlayFile != "" {
		modelTable, inputTable, err := loaders.LoadOverlay(cfg.Loaders.OverlayFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load loader overlay: %w", err)
		}
		opts = append(opts, services.WithTables(modelTable, inputTable))
		logger.Info("Loader overlay applied", "file", cfg.Loaders.OverlayFile)
	}

	a := &App{Metrics: metrics}
	if cfg.DB.Enable {
		pool, err := InitDatabase(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		store := repository.NewPostgresResolutionStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		a.pool = pool
		a.Store = store
		opts = append(opts, services.WithStore(store))
		logger.Info("Database connected", "host", cfg.DB.Host, "name", cfg.DB.Name)
	}

	a.Service = services.NewResolutionService(source, resolver, extractor, logger, opts...)
	return a, nil
}

// InitDatabase opens and pings a connection pool.
func InitDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
