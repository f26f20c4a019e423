package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/upb/fleet-gateway/services"
	"github.com/upb/fleet-gateway/services/ratelimit"
	"github.com/upb/fleet-gateway/utils"
	"go.uber.org/zap"
)

// RateLimiter decides whether a caller may proceed.
type RateLimiter interface {
	CheckLimit(ctx context.Context, req ratelimit.RateLimitRequest) *ratelimit.RateLimitResult
}

// RateLimitMiddleware rejects callers that exceed their request budget.
type RateLimitMiddleware struct {
	limiter RateLimiter
	logger  *zap.Logger
}

// NewRateLimitMiddleware creates a new RateLimitMiddleware
func NewRateLimitMiddleware(limiter RateLimiter, logger *zap.Logger) *RateLimitMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimitMiddleware{limiter: limiter, logger: logger}
}

// Limit enforces the limit per client. Authenticated callers are keyed by
// token subject, everyone else by remote address.
func (m *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		req := ratelimit.RateLimitRequest{ClientIP: clientIP(r)}
		if claims := GetClaimsFromContext(ctx); claims != nil {
			req.Subject = claims.Sub
		}

		result := m.limiter.CheckLimit(ctx, req)
		if result.Allowed {
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.RequestsRemaining))
			next.ServeHTTP(w, r)
			return
		}

		retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
		m.logger.Warn("rate limit exceeded",
			zap.String("request_id", GetRequestIDFromContext(ctx)),
			zap.String("client_ip", req.ClientIP),
			zap.String("subject", req.Subject),
			zap.String("reason", result.ViolationReason))

		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		_ = utils.WriteTooManyRequests(w, services.ErrRateLimitExceeded.Message, map[string]interface{}{
			"reason":            result.ViolationReason,
			"retryAfterSeconds": retryAfter,
		})
	})
}

// clientIP strips the port from RemoteAddr, which chi's RealIP has already
// rewritten from proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
