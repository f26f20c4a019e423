package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/fleet-gateway/app"
	"github.com/upb/fleet-gateway/handlers"
	"github.com/upb/fleet-gateway/utils"
)

const defaultRequestTimeout = 60 * time.Second

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	cfg := deps.Config
	r := chi.NewRouter()

	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", utils.DataSourceHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	health := handlers.NewHealthHandler(deps.SQLDB(), deps.Logger)
	status := handlers.NewStatusHandler(handlers.StatusInfo{
		Version:         cfg.Version,
		Environment:     cfg.Environment,
		SnapshotBackend: cfg.Snapshots.Backend,
		AuthEnabled:     deps.AuthMiddleware != nil,
	}, deps.Metrics, deps.Logger)
	fleet := handlers.NewFleetHandler(deps.Fleet, deps.Logger)
	geocode := handlers.NewGeocodeHandler(deps.Geocoding, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	r.Route("/api/v1", func(r chi.Router) {
		if deps.AuthMiddleware != nil {
			r.Use(deps.AuthMiddleware.RequireAuth)
		}
		if deps.RateLimitMiddleware != nil {
			r.Use(deps.RateLimitMiddleware.Limit)
		}

		r.Get("/status", status.HandleStatus)

		r.Get("/vehicles", fleet.HandleVehicles)
		r.Get("/vehicles/status", fleet.HandleVehicleStatuses)
		r.Get("/fleet", fleet.HandleOverview)

		r.Get("/geocode/reverse", geocode.HandleReverse)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}
