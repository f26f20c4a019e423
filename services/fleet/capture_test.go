package fleet

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/fleet-gateway/services"
	"github.com/upb/fleet-gateway/services/fallback"
	"github.com/upb/fleet-gateway/utils"
)

func TestCapture_WritesEveryKey(t *testing.T) {
	source := new(MockSource)
	source.On("GetDevices", mock.Anything).Return([]Device{{ID: "b1", Name: "Truck 1"}}, nil)
	source.On("GetDeviceStatus", mock.Anything).Return([]DeviceStatusInfo{{Device: EntityRef{ID: "b1"}, Speed: 12}}, nil)
	store := fallback.NewMemoryStore(nil)

	captured, err := Capture(context.Background(), source, store, CaptureOptions{Keys: Keys}, nil)

	require.NoError(t, err)
	require.Len(t, captured, 2)
	assert.Equal(t, KeyDevices, captured[0].Key)
	assert.Equal(t, KeyStatus, captured[1].Key)

	devices, ok := fallback.LoadAs[[]Device](context.Background(), store, KeyDevices)
	require.True(t, ok)
	assert.Equal(t, "Truck 1", devices[0].Name)

	statuses, ok := fallback.LoadAs[[]DeviceStatusInfo](context.Background(), store, KeyStatus)
	require.True(t, ok)
	assert.Equal(t, 12.0, statuses[0].Speed)
}

func TestCapture_CapturedSnapshotServesFallback(t *testing.T) {
	live := new(MockSource)
	live.On("GetDevices", mock.Anything).Return([]Device{{ID: "b1", Name: "Truck 1"}}, nil)
	store := fallback.NewMemoryStore(nil)
	_, err := Capture(context.Background(), live, store, CaptureOptions{Keys: []string{KeyDevices}}, nil)
	require.NoError(t, err)

	down := new(MockSource)
	down.On("GetDevices", mock.Anything).Return(nil, errUpstream)
	svc := NewService(down, fallback.NewInvoker(store), nil)

	result, err := svc.Vehicles(context.Background())

	require.NoError(t, err)
	assert.True(t, result.FromCache)
	assert.Equal(t, "Truck 1", result.Data[0].Name)
}

func TestCapture_FailedKeyKeepsExistingSnapshot(t *testing.T) {
	source := new(MockSource)
	source.On("GetDevices", mock.Anything).Return(nil, errUpstream)
	source.On("GetDeviceStatus", mock.Anything).Return([]DeviceStatusInfo{}, nil)
	store := fallback.NewMemoryStore(map[string][]byte{
		KeyDevices: []byte(`[{"id":"old"}]`),
	})

	captured, err := Capture(context.Background(), source, store, CaptureOptions{Keys: Keys}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, errUpstream)
	require.Len(t, captured, 1)
	assert.Equal(t, KeyStatus, captured[0].Key)

	raw, ok := store.Load(context.Background(), KeyDevices)
	require.True(t, ok)
	assert.JSONEq(t, `[{"id":"old"}]`, string(raw))
}

func TestCapture_ValidatesKeys(t *testing.T) {
	tests := []struct {
		name string
		keys []string
	}{
		{"no keys", nil},
		{"unknown key", []string{"devices", "trips"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := new(MockSource)

			_, err := Capture(context.Background(), source, fallback.NewMemoryStore(nil), CaptureOptions{Keys: tt.keys}, nil)

			require.Error(t, err)
			assert.True(t, utils.IsValidationError(err))
			source.AssertNotCalled(t, "GetDevices", mock.Anything)
		})
	}
}

func TestCapture_RequiresWriter(t *testing.T) {
	_, err := Capture(context.Background(), new(MockSource), nil, CaptureOptions{Keys: Keys}, nil)

	assert.Error(t, err)
}

type failingWriter struct{}

func (failingWriter) Save(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func TestCapture_WriteFailure(t *testing.T) {
	source := new(MockSource)
	source.On("GetDevices", mock.Anything).Return([]Device{}, nil)

	captured, err := Capture(context.Background(), source, failingWriter{}, CaptureOptions{Keys: []string{KeyDevices}}, nil)

	assert.Empty(t, captured)
	assert.ErrorContains(t, err, "disk full")
	assert.ErrorIs(t, err, services.ErrSnapshotWriteFailed)
	assert.True(t, services.IsInternalError(err))
}
