package handlers

import (
	"context"
	"net/http"

	"github.com/upb/fleet-gateway/internal/observability"
	"github.com/upb/fleet-gateway/services/fallback"
	"github.com/upb/fleet-gateway/services/fleet"
	"github.com/upb/fleet-gateway/utils"
	"go.uber.org/zap"
)

// FleetService serves normalized fleet data.
type FleetService interface {
	Vehicles(ctx context.Context) (fallback.Result[[]fleet.Vehicle], error)
	VehicleStatuses(ctx context.Context) (fallback.Result[[]fleet.VehicleStatus], error)
	Overview(ctx context.Context) (fallback.Result[[]fleet.VehicleOverview], error)
}

// FleetHandler handles fleet HTTP requests
type FleetHandler struct {
	service FleetService
	logger  *zap.Logger
}

// NewFleetHandler creates a new FleetHandler
func NewFleetHandler(service FleetService, logger *zap.Logger) *FleetHandler {
	return &FleetHandler{
		service: service,
		logger:  logger,
	}
}

// HandleVehicles handles GET /api/v1/vehicles
func (h *FleetHandler) HandleVehicles(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Vehicles(r.Context())
	writeFleetResult(w, r, h.logger, "vehicles", result, err)
}

// HandleVehicleStatuses handles GET /api/v1/vehicles/status
func (h *FleetHandler) HandleVehicleStatuses(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.VehicleStatuses(r.Context())
	writeFleetResult(w, r, h.logger, "vehicle_status", result, err)
}

// HandleOverview handles GET /api/v1/fleet
func (h *FleetHandler) HandleOverview(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Overview(r.Context())
	writeFleetResult(w, r, h.logger, "fleet_overview", result, err)
}

func writeFleetResult[T any](w http.ResponseWriter, r *http.Request, logger *zap.Logger, resource string, result fallback.Result[T], err error) {
	log := observability.WithContext(r.Context(), logger)
	if err != nil {
		HandleServiceError(w, err, log)
		return
	}

	if result.FromCache {
		log.Warn("serving snapshot data", zap.String("resource", resource))
	}
	if err := utils.WriteResult(w, result.Data, result.FromCache); err != nil {
		log.Error("failed to write response", zap.String("resource", resource), zap.Error(err))
	}
}
