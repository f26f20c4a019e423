package geocoding

import (
	"context"

	"github.com/upb/fleet-gateway/services"
	"github.com/upb/fleet-gateway/services/providers"
	"go.uber.org/zap"
)

// Reverser resolves coordinates to a place.
type Reverser interface {
	Reverse(ctx context.Context, lat, lng float64) (*Place, error)
}

// Service exposes reverse geocoding with domain errors. Lookups always go to
// the live provider; there is no snapshot fallback for places.
type Service struct {
	reverser Reverser
	logger   *zap.Logger
}

// NewService creates a new geocoding service
func NewService(reverser Reverser, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{reverser: reverser, logger: logger}
}

// Reverse validates the coordinates and resolves them.
func (s *Service) Reverse(ctx context.Context, lat, lng float64) (*Place, error) {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, services.ErrInvalidCoordinates
	}

	place, err := s.reverser.Reverse(ctx, lat, lng)
	if err != nil {
		switch providers.ErrorCode(err) {
		case CodeNotFound:
			return nil, services.ErrPlaceNotFound
		case CodeRateLimited:
			return nil, services.WrapError(services.ErrorTypeRateLimit, "geocoding request quota exhausted", err)
		}
		s.logger.Warn("reverse geocoding failed",
			zap.Float64("lat", lat),
			zap.Float64("lng", lng),
			zap.Error(err))
		return nil, services.ErrGeocoderUnavailable.Wrap(err)
	}
	return place, nil
}
