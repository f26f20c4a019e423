package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/upb/fleet-gateway/config"
	"github.com/upb/fleet-gateway/internal/observability"
	"github.com/upb/fleet-gateway/middleware"
	"github.com/upb/fleet-gateway/repositories/postgres"
	"github.com/upb/fleet-gateway/services/fallback"
	"github.com/upb/fleet-gateway/services/fleet"
	"github.com/upb/fleet-gateway/services/geocoding"
	"github.com/upb/fleet-gateway/services/providers"
	"github.com/upb/fleet-gateway/services/ratelimit"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	DB      *postgres.DB // nil unless the postgres snapshot backend is selected
	Logger  *zap.Logger
	Metrics *observability.MetricsProvider

	// Snapshots
	Snapshots      fallback.Store
	SnapshotWriter fallback.Writer // nil for the none backend
	Invoker        *fallback.Invoker

	// Upstreams
	FleetClient *fleet.Client
	Fleet       *fleet.Service
	Geocoding   *geocoding.Service

	// Auth; nil when API_JWT_SECRET is unset
	AuthMiddleware *middleware.AuthMiddleware

	// Inbound rate limiting; nil when RATE_LIMIT_PER_MINUTE is zero
	RateLimiter         *ratelimit.RateLimitService
	RateLimitMiddleware *middleware.RateLimitMiddleware
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetricsProvider(cfg.Observability.MetricsEnabled),
	}

	if err := deps.initSnapshots(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize snapshots: %w", err)
	}

	if err := deps.initInvoker(); err != nil {
		deps.closeDB()
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	deps.initUpstreams(cfg)
	deps.initAuth(cfg)
	deps.initRateLimit(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.String("snapshot_backend", cfg.Snapshots.Backend),
		zap.Bool("auth_enabled", cfg.AuthEnabled()),
		zap.Bool("metrics_enabled", deps.Metrics.Enabled()))
	return deps, nil
}

// initSnapshots selects the snapshot store for the configured backend
func (d *Dependencies) initSnapshots(ctx context.Context, cfg *config.Config) error {
	switch cfg.Snapshots.Backend {
	case config.SnapshotBackendFile:
		store := fallback.NewFileStore(cfg.Snapshots.Dir, d.Logger)
		d.Snapshots = store
		d.SnapshotWriter = store
		d.Logger.Info("using file snapshots", zap.String("dir", store.Dir()))

	case config.SnapshotBackendPostgres:
		db, err := postgres.NewDB(cfg.Database, d.Logger)
		if err != nil {
			return err
		}
		if err := db.InitSchema(ctx, cfg.Snapshots.Table); err != nil {
			_ = db.Close()
			return err
		}
		repo := postgres.NewSnapshotRepository(db, cfg.Snapshots.Table, d.Logger)
		d.DB = db
		d.Snapshots = repo
		d.SnapshotWriter = repo
		d.Logger.Info("using postgres snapshots", zap.String("table", cfg.Snapshots.Table))

	case config.SnapshotBackendNone:
		d.Snapshots = fallback.NewMemoryStore(nil)
		d.Logger.Warn("snapshots disabled, upstream failures will not be masked")

	default:
		return fmt.Errorf("unknown snapshot backend %q", cfg.Snapshots.Backend)
	}
	return nil
}

func (d *Dependencies) initInvoker() error {
	upstream, err := observability.NewUpstreamMetrics(d.Metrics)
	if err != nil {
		return err
	}
	d.Invoker = fallback.NewInvoker(d.Snapshots,
		observability.LogObserver(d.Logger),
		upstream.Observer(),
	)
	return nil
}

func (d *Dependencies) initUpstreams(cfg *config.Config) {
	d.FleetClient = fleet.NewClient(fleet.Config{
		ProviderConfig: providers.ProviderConfig{
			BaseURL:    cfg.Fleet.BaseURL,
			Timeout:    cfg.Fleet.Timeout,
			MaxRetries: cfg.Fleet.MaxRetries,
			RetryDelay: cfg.Fleet.RetryDelay,
			UserAgent:  userAgent(cfg),
		},
		Database: cfg.Fleet.Database,
		UserName: cfg.Fleet.UserName,
		Password: cfg.Fleet.Password,
	}, d.Logger.Named("fleet"))
	d.Fleet = fleet.NewService(d.FleetClient, d.Invoker, d.Logger)

	ua := cfg.Geocoding.UserAgent
	if ua == "" {
		ua = userAgent(cfg)
	}
	geocoder := geocoding.NewClient(geocoding.Config{
		ProviderConfig: providers.ProviderConfig{
			BaseURL:   cfg.Geocoding.BaseURL,
			APIKey:    cfg.Geocoding.APIKey,
			Timeout:   cfg.Geocoding.Timeout,
			UserAgent: ua,
		},
		RatePerSecond: cfg.Geocoding.RatePerSecond,
		Language:      cfg.Geocoding.Language,
	}, d.Logger.Named("geocoding"))
	d.Geocoding = geocoding.NewService(geocoder, d.Logger)
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	if !cfg.AuthEnabled() {
		d.Logger.Warn("API_JWT_SECRET not set, /api/v1 is unauthenticated")
		return
	}
	validator := middleware.NewHMACValidator(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	d.AuthMiddleware = middleware.NewAuthMiddleware(validator, d.Logger)
	d.Logger.Info("bearer token auth enabled")
}

func (d *Dependencies) initRateLimit(cfg *config.Config) {
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		return
	}
	d.RateLimiter = ratelimit.NewRateLimitService(ratelimit.RateLimitConfig{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
	}, d.Logger)
	d.RateLimitMiddleware = middleware.NewRateLimitMiddleware(d.RateLimiter, d.Logger)
	d.Logger.Info("inbound rate limit enabled",
		zap.Int("per_minute", cfg.RateLimit.RequestsPerMinute),
		zap.Int("burst", cfg.RateLimit.Burst))
}

// SQLDB returns the underlying pool, or nil when no database is in use.
func (d *Dependencies) SQLDB() *sql.DB {
	if d.DB == nil {
		return nil
	}
	return d.DB.DB
}

func userAgent(cfg *config.Config) string {
	return "fleet-gateway/" + cfg.Version
}

func (d *Dependencies) closeDB() {
	if d.DB != nil {
		_ = d.DB.Close()
		d.DB = nil
	}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if err := d.Metrics.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.DB = nil
	}

	_ = d.Logger.Sync()

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %w", errors.Join(errs...))
	}
	return nil
}
