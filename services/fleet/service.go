package fleet

import (
	"context"

	"github.com/upb/fleet-gateway/services"
	"github.com/upb/fleet-gateway/services/fallback"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Snapshot keys. Each key is paired by hand with the live operation whose
// result shape its snapshot must have; nothing checks the pairing.
const (
	KeyDevices = "devices" // []Device, from Source.GetDevices
	KeyStatus  = "status"  // []DeviceStatusInfo, from Source.GetDeviceStatus
)

// Keys lists every snapshot key the service reads.
var Keys = []string{KeyDevices, KeyStatus}

// Source is the live fleet-telemetry upstream.
type Source interface {
	GetDevices(ctx context.Context) ([]Device, error)
	GetDeviceStatus(ctx context.Context) ([]DeviceStatusInfo, error)
}

// Service serves normalized fleet data, falling back to snapshots when the
// upstream is unreachable.
type Service struct {
	source  Source
	invoker *fallback.Invoker
	logger  *zap.Logger
}

// NewService creates a new fleet service
func NewService(source Source, invoker *fallback.Invoker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		source:  source,
		invoker: invoker,
		logger:  logger,
	}
}

// Vehicles returns the normalized vehicle list.
func (s *Service) Vehicles(ctx context.Context) (fallback.Result[[]Vehicle], error) {
	result, err := fallback.Run(ctx, s.invoker, KeyDevices, s.source.GetDevices)
	if err != nil {
		return fallback.Result[[]Vehicle]{}, services.ErrFleetUnavailable.Wrap(err).WithDetail("key", KeyDevices)
	}
	return fallback.Map(result, NormalizeDevices), nil
}

// VehicleStatuses returns the normalized latest status of every vehicle.
func (s *Service) VehicleStatuses(ctx context.Context) (fallback.Result[[]VehicleStatus], error) {
	result, err := fallback.Run(ctx, s.invoker, KeyStatus, s.source.GetDeviceStatus)
	if err != nil {
		return fallback.Result[[]VehicleStatus]{}, services.ErrFleetUnavailable.Wrap(err).WithDetail("key", KeyStatus)
	}
	return fallback.Map(result, NormalizeStatuses), nil
}

// Overview fetches vehicles and statuses concurrently and joins them.
// The result is marked as cached when either half was served from a snapshot.
func (s *Service) Overview(ctx context.Context) (fallback.Result[[]VehicleOverview], error) {
	var (
		vehicles fallback.Result[[]Vehicle]
		statuses fallback.Result[[]VehicleStatus]
	)

	// Both halves run to completion; a failure in one does not cancel the other.
	var g errgroup.Group
	g.Go(func() error {
		var err error
		vehicles, err = s.Vehicles(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		statuses, err = s.VehicleStatuses(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fallback.Result[[]VehicleOverview]{}, err
	}

	overview := fallback.Result[[]VehicleOverview]{
		Data:      JoinOverview(vehicles.Data, statuses.Data),
		FromCache: vehicles.FromCache || statuses.FromCache,
	}
	s.logger.Debug("fleet overview assembled",
		zap.Int("vehicles", len(overview.Data)),
		zap.Bool("vehicles_from_cache", vehicles.FromCache),
		zap.Bool("status_from_cache", statuses.FromCache))

	return overview, nil
}
