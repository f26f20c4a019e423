package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(perMinute, burst int) (*RateLimitService, *time.Time) {
	now := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
	s := NewRateLimitService(RateLimitConfig{RequestsPerMinute: perMinute, Burst: burst}, zap.NewNop())
	s.now = func() time.Time { return now }
	return s, &now
}

func TestRateLimitService_BuildScopeKey(t *testing.T) {
	s, _ := newTestService(60, 1)

	t.Run("without subject", func(t *testing.T) {
		assert.Equal(t, "ip:10.0.0.1", s.buildScopeKey(RateLimitRequest{ClientIP: "10.0.0.1"}))
	})

	t.Run("with subject", func(t *testing.T) {
		assert.Equal(t, "sub:dispatch-ui", s.buildScopeKey(RateLimitRequest{ClientIP: "10.0.0.1", Subject: "dispatch-ui"}))
	})
}

func TestRateLimitService_Disabled(t *testing.T) {
	s, _ := newTestService(0, 0)

	for i := 0; i < 100; i++ {
		assert.True(t, s.CheckLimit(context.Background(), RateLimitRequest{ClientIP: "a"}).Allowed)
	}
	assert.False(t, s.Enabled())

	var nilService *RateLimitService
	assert.True(t, nilService.CheckLimit(context.Background(), RateLimitRequest{}).Allowed)
}

func TestRateLimitService_CheckLimit(t *testing.T) {
	s, now := newTestService(60, 2)
	req := RateLimitRequest{ClientIP: "10.0.0.1"}

	first := s.CheckLimit(context.Background(), req)
	require.True(t, first.Allowed)
	assert.Equal(t, 1, first.RequestsRemaining)

	second := s.CheckLimit(context.Background(), req)
	require.True(t, second.Allowed)
	assert.Equal(t, 0, second.RequestsRemaining)

	third := s.CheckLimit(context.Background(), req)
	assert.False(t, third.Allowed)
	assert.Equal(t, time.Second, third.RetryAfter)
	assert.Equal(t, "exceeded 60 requests per minute", third.ViolationReason)

	// other clients have their own bucket
	assert.True(t, s.CheckLimit(context.Background(), RateLimitRequest{ClientIP: "10.0.0.2"}).Allowed)

	*now = now.Add(time.Second)
	assert.True(t, s.CheckLimit(context.Background(), req).Allowed)
}

func TestRateLimitService_RejectionDoesNotConsume(t *testing.T) {
	s, now := newTestService(60, 1)
	req := RateLimitRequest{ClientIP: "10.0.0.1"}

	require.True(t, s.CheckLimit(context.Background(), req).Allowed)
	for i := 0; i < 5; i++ {
		require.False(t, s.CheckLimit(context.Background(), req).Allowed)
	}

	*now = now.Add(time.Second)
	assert.True(t, s.CheckLimit(context.Background(), req).Allowed)
}

func TestRateLimitService_CleanupIdleScopes(t *testing.T) {
	s, now := newTestService(60, 1)
	s.CheckLimit(context.Background(), RateLimitRequest{ClientIP: "old"})
	*now = now.Add(10 * time.Minute)
	s.CheckLimit(context.Background(), RateLimitRequest{ClientIP: "fresh"})

	removed := s.CleanupIdleScopes(5 * time.Minute)

	assert.Equal(t, 1, removed)
	assert.Len(t, s.scopes, 1)
	assert.Contains(t, s.scopes, "ip:fresh")
}

func TestRateLimitService_CleanupWorkerStops(t *testing.T) {
	s := NewRateLimitService(RateLimitConfig{RequestsPerMinute: 60}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		s.StartCleanupWorker(ctx, time.Millisecond, time.Minute)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
