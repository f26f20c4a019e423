package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitConfig bounds how often one client may call the API.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// RateLimitRequest represents a rate limit check request
type RateLimitRequest struct {
	ClientIP string
	Subject  string // bearer token subject, when authenticated
}

// RateLimitResult represents the result of a rate limit check
type RateLimitResult struct {
	Allowed           bool
	RequestsRemaining int
	RetryAfter        time.Duration
	ViolationReason   string
}

type scopeLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitService keeps one token bucket per client scope in memory.
type RateLimitService struct {
	config RateLimitConfig
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	scopes map[string]*scopeLimiter
}

// NewRateLimitService creates a new RateLimitService instance
func NewRateLimitService(config RateLimitConfig, logger *zap.Logger) *RateLimitService {
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimitService{
		config: config,
		logger: logger,
		now:    time.Now,
		scopes: make(map[string]*scopeLimiter),
	}
}

// Enabled reports whether any limit is configured.
func (s *RateLimitService) Enabled() bool {
	return s != nil && s.config.RequestsPerMinute > 0
}

// CheckLimit consumes one request from the caller's bucket.
func (s *RateLimitService) CheckLimit(_ context.Context, req RateLimitRequest) *RateLimitResult {
	if !s.Enabled() {
		return &RateLimitResult{Allowed: true}
	}

	now := s.now()
	limiter := s.limiterFor(s.buildScopeKey(req), now)

	reservation := limiter.ReserveN(now, 1)
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return &RateLimitResult{
			Allowed:         false,
			RetryAfter:      delay,
			ViolationReason: fmt.Sprintf("exceeded %d requests per minute", s.config.RequestsPerMinute),
		}
	}

	return &RateLimitResult{
		Allowed:           true,
		RequestsRemaining: int(math.Floor(limiter.TokensAt(now))),
	}
}

func (s *RateLimitService) limiterFor(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	scope, ok := s.scopes[key]
	if !ok {
		perSecond := rate.Limit(float64(s.config.RequestsPerMinute) / 60)
		scope = &scopeLimiter{limiter: rate.NewLimiter(perSecond, s.config.Burst)}
		s.scopes[key] = scope
	}
	scope.lastSeen = now
	return scope.limiter
}

// buildScopeKey builds a unique key for the rate limit scope
func (s *RateLimitService) buildScopeKey(req RateLimitRequest) string {
	if req.Subject != "" {
		return "sub:" + req.Subject
	}
	return "ip:" + req.ClientIP
}

// CleanupIdleScopes forgets scopes not seen for longer than idle.
func (s *RateLimitService) CleanupIdleScopes(idle time.Duration) int {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, scope := range s.scopes {
		if scope.lastSeen.Before(cutoff) {
			delete(s.scopes, key)
			removed++
		}
	}
	return removed
}

// StartCleanupWorker periodically drops idle scopes until ctx is done.
func (s *RateLimitService) StartCleanupWorker(ctx context.Context, interval time.Duration, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("started rate limit cleanup worker",
		zap.Duration("interval", interval),
		zap.Duration("idle", idle))

	for {
		select {
		case <-ticker.C:
			if removed := s.CleanupIdleScopes(idle); removed > 0 {
				s.logger.Debug("dropped idle rate limit scopes", zap.Int("removed", removed))
			}
		case <-ctx.Done():
			s.logger.Info("stopping rate limit cleanup worker")
			return
		}
	}
}
