package observability

import (
	"context"

	"go.uber.org/zap"

	"github.com/upb/fleet-gateway/services/fallback"
)

// LogObserver logs degraded invocations: a warning when a snapshot was
// served, an error when neither the upstream nor a snapshot could answer.
func LogObserver(logger *zap.Logger) fallback.Observer {
	return func(ctx context.Context, key string, outcome fallback.Outcome, err error) {
		log := WithContext(ctx, logger)
		switch outcome {
		case fallback.OutcomeCache:
			log.Warn("upstream unavailable, serving snapshot",
				zap.String("key", key),
				zap.String("source", string(outcome)),
				zap.Error(err))
		case fallback.OutcomeFailed:
			log.Error("upstream unavailable and no snapshot",
				zap.String("key", key),
				zap.String("source", string(outcome)),
				zap.Error(err))
		default:
			log.Debug("upstream call succeeded", zap.String("key", key))
		}
	}
}
