package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/upb/fleet-gateway/internal/observability"
	"github.com/upb/fleet-gateway/services/geocoding"
	"github.com/upb/fleet-gateway/utils"
	"go.uber.org/zap"
)

// Geocoder resolves coordinates to places.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (*geocoding.Place, error)
}

// ReverseGeocodeQuery is the query string of GET /api/v1/geocode/reverse
type ReverseGeocodeQuery struct {
	Lat string `query:"lat" validate:"required,latitude"`
	Lng string `query:"lng" validate:"required,longitude"`
}

// GeocodeHandler handles geocoding HTTP requests
type GeocodeHandler struct {
	geocoder Geocoder
	logger   *zap.Logger
}

// NewGeocodeHandler creates a new GeocodeHandler
func NewGeocodeHandler(geocoder Geocoder, logger *zap.Logger) *GeocodeHandler {
	return &GeocodeHandler{
		geocoder: geocoder,
		logger:   logger,
	}
}

// HandleReverse handles GET /api/v1/geocode/reverse?lat=&lng=
func (h *GeocodeHandler) HandleReverse(w http.ResponseWriter, r *http.Request) {
	log := observability.WithContext(r.Context(), h.logger)

	query := ReverseGeocodeQuery{
		Lat: r.URL.Query().Get("lat"),
		Lng: r.URL.Query().Get("lng"),
	}
	if err := utils.ValidateStruct(&query); err != nil {
		HandleValidationError(w, err, log)
		return
	}

	// validated above
	lat, _ := strconv.ParseFloat(query.Lat, 64)
	lng, _ := strconv.ParseFloat(query.Lng, 64)

	place, err := h.geocoder.Reverse(r.Context(), lat, lng)
	if err != nil {
		HandleServiceError(w, err, log)
		return
	}

	if err := utils.WriteOK(w, place); err != nil {
		log.Error("failed to write geocode response", zap.Error(err))
	}
}
