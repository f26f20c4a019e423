package handlers

import (
	"context"
	"net/http"

	"github.com/upb/fleet-gateway/internal/observability"
	"github.com/upb/fleet-gateway/utils"
	"go.uber.org/zap"
)

// UpstreamCounter reports how upstream calls have settled so far.
type UpstreamCounter interface {
	Collect(ctx context.Context) ([]observability.UpstreamCount, error)
}

// StatusInfo is the static part of the status response.
type StatusInfo struct {
	Version         string `json:"version"`
	Environment     string `json:"environment"`
	SnapshotBackend string `json:"snapshotBackend"`
	AuthEnabled     bool   `json:"authEnabled"`
}

// StatusResponse is the body of GET /api/v1/status
type StatusResponse struct {
	StatusInfo
	Upstream []observability.UpstreamCount `json:"upstream,omitempty"`
}

// StatusHandler reports application status information
type StatusHandler struct {
	info    StatusInfo
	counter UpstreamCounter
	logger  *zap.Logger
}

// NewStatusHandler creates a new StatusHandler. counter may be nil.
func NewStatusHandler(info StatusInfo, counter UpstreamCounter, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		info:    info,
		counter: counter,
		logger:  logger,
	}
}

// HandleStatus handles GET /api/v1/status
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	response := StatusResponse{StatusInfo: h.info}

	if h.counter != nil {
		counts, err := h.counter.Collect(r.Context())
		if err != nil {
			h.logger.Warn("failed to collect upstream counters", zap.Error(err))
		}
		response.Upstream = counts
	}

	if err := utils.WriteOK(w, response); err != nil {
		h.logger.Error("failed to write status response", zap.Error(err))
	}
}
