package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/upb/fleet-gateway/services"
	"github.com/upb/fleet-gateway/services/fallback"
	"github.com/upb/fleet-gateway/utils"
	"go.uber.org/zap"
)

// CaptureOptions selects which snapshots to refresh.
type CaptureOptions struct {
	Keys []string `json:"keys" validate:"required,min=1,dive,oneof=devices status"`
}

// Capture calls the live operation paired with each key and stores its raw
// result as that key's snapshot. A key whose live call fails is skipped and
// its existing snapshot is left untouched; the remaining keys still run.
func Capture(ctx context.Context, source Source, writer fallback.Writer, opts CaptureOptions, logger *zap.Logger) ([]fallback.SnapshotInfo, error) {
	if err := utils.ValidateStruct(&opts); err != nil {
		return nil, err
	}
	if writer == nil {
		return nil, errors.New("snapshot backend is not writable")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		captured []fallback.SnapshotInfo
		errs     []error
	)
	for _, key := range opts.Keys {
		data, err := fetchRaw(ctx, source, key)
		if err != nil {
			logger.Error("live fetch failed, snapshot not refreshed", zap.String("key", key), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		if err := writer.Save(ctx, key, data); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, services.ErrSnapshotWriteFailed.Wrap(err)))
			continue
		}
		captured = append(captured, fallback.SnapshotInfo{
			Key:        key,
			Size:       len(data),
			CapturedAt: time.Now().UTC(),
		})
	}

	return captured, errors.Join(errs...)
}

func fetchRaw(ctx context.Context, source Source, key string) ([]byte, error) {
	var (
		value interface{}
		err   error
	)
	switch key {
	case KeyDevices:
		value, err = source.GetDevices(ctx)
	case KeyStatus:
		value, err = source.GetDeviceStatus(ctx)
	default:
		return nil, fmt.Errorf("unknown snapshot key %q", key)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(value)
}
