package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/fleet-gateway/services"
	"github.com/upb/fleet-gateway/services/fallback"
	"github.com/upb/fleet-gateway/services/fleet"
	"github.com/upb/fleet-gateway/utils"
	"go.uber.org/zap"
)

type MockFleetService struct {
	mock.Mock
}

func (m *MockFleetService) Vehicles(ctx context.Context) (fallback.Result[[]fleet.Vehicle], error) {
	args := m.Called(ctx)
	return args.Get(0).(fallback.Result[[]fleet.Vehicle]), args.Error(1)
}

func (m *MockFleetService) VehicleStatuses(ctx context.Context) (fallback.Result[[]fleet.VehicleStatus], error) {
	args := m.Called(ctx)
	return args.Get(0).(fallback.Result[[]fleet.VehicleStatus]), args.Error(1)
}

func (m *MockFleetService) Overview(ctx context.Context) (fallback.Result[[]fleet.VehicleOverview], error) {
	args := m.Called(ctx)
	return args.Get(0).(fallback.Result[[]fleet.VehicleOverview]), args.Error(1)
}

type fleetEnvelope[T any] struct {
	Data      T    `json:"data"`
	FromCache bool `json:"fromCache"`
}

func TestFleetHandler_HandleVehicles(t *testing.T) {
	tests := []struct {
		name      string
		fromCache bool
	}{
		{name: "live data", fromCache: false},
		{name: "snapshot data", fromCache: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockFleetService)
			svc.On("Vehicles", mock.Anything).Return(fallback.Result[[]fleet.Vehicle]{
				Data:      []fleet.Vehicle{{ID: "b1", Name: "Truck 1", VIN: "VIN1"}},
				FromCache: tt.fromCache,
			}, nil)
			handler := NewFleetHandler(svc, zap.NewNop())

			w := httptest.NewRecorder()
			handler.HandleVehicles(w, httptest.NewRequest(http.MethodGet, "/api/v1/vehicles", nil))

			assert.Equal(t, http.StatusOK, w.Code)
			var body fleetEnvelope[[]fleet.Vehicle]
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.fromCache, body.FromCache)
			require.Len(t, body.Data, 1)
			assert.Equal(t, "VIN1", body.Data[0].VIN)

			if tt.fromCache {
				assert.Equal(t, utils.DataSourceCache, w.Header().Get(utils.DataSourceHeader))
			} else {
				assert.Empty(t, w.Header().Get(utils.DataSourceHeader))
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestFleetHandler_HandleVehiclesUpstreamFailure(t *testing.T) {
	svc := new(MockFleetService)
	svc.On("Vehicles", mock.Anything).Return(fallback.Result[[]fleet.Vehicle]{},
		services.ErrFleetUnavailable.Wrap(errors.New("connection refused")))
	handler := NewFleetHandler(svc, zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleVehicles(w, httptest.NewRequest(http.MethodGet, "/api/v1/vehicles", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	var response utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "upstream_unavailable", response.Error)
}

func TestFleetHandler_HandleVehicleStatuses(t *testing.T) {
	svc := new(MockFleetService)
	svc.On("VehicleStatuses", mock.Anything).Return(fallback.Result[[]fleet.VehicleStatus]{
		Data: []fleet.VehicleStatus{{VehicleID: "b1", Latitude: 1.5, IsDriving: true}},
	}, nil)
	handler := NewFleetHandler(svc, zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleVehicleStatuses(w, httptest.NewRequest(http.MethodGet, "/api/v1/vehicles/status", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var body fleetEnvelope[[]fleet.VehicleStatus]
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.False(t, body.FromCache)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "b1", body.Data[0].VehicleID)
}

func TestFleetHandler_HandleOverview(t *testing.T) {
	svc := new(MockFleetService)
	svc.On("Overview", mock.Anything).Return(fallback.Result[[]fleet.VehicleOverview]{
		Data: []fleet.VehicleOverview{
			{Vehicle: fleet.Vehicle{ID: "b1"}, Status: &fleet.VehicleStatus{VehicleID: "b1", Speed: 30}},
			{Vehicle: fleet.Vehicle{ID: "b2"}},
		},
		FromCache: true,
	}, nil)
	handler := NewFleetHandler(svc, zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleOverview(w, httptest.NewRequest(http.MethodGet, "/api/v1/fleet", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, utils.DataSourceCache, w.Header().Get(utils.DataSourceHeader))

	var body fleetEnvelope[[]map[string]interface{}]
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.True(t, body.FromCache)
	require.Len(t, body.Data, 2)
	assert.Equal(t, "b1", body.Data[0]["id"])
	assert.NotNil(t, body.Data[0]["status"])
	assert.NotContains(t, body.Data[1], "status")
}

func TestFleetHandler_EmptyListIsNotNull(t *testing.T) {
	svc := new(MockFleetService)
	svc.On("Vehicles", mock.Anything).Return(fallback.Result[[]fleet.Vehicle]{Data: fleet.NormalizeDevices(nil)}, nil)
	handler := NewFleetHandler(svc, zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleVehicles(w, httptest.NewRequest(http.MethodGet, "/api/v1/vehicles", nil))

	assert.JSONEq(t, `{"data":[],"fromCache":false}`, w.Body.String())
}
