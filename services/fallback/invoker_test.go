package fallback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type device struct {
	ID string `json:"id"`
}

type status struct {
	DeviceID string  `json:"deviceId"`
	Speed    float64 `json:"speed"`
}

// countingStore records how often it is consulted.
type countingStore struct {
	Store
	mu    sync.Mutex
	calls int
}

func (s *countingStore) Load(ctx context.Context, key string) ([]byte, bool) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.Store.Load(ctx, key)
}

type storeFunc func(ctx context.Context, key string) ([]byte, bool)

func (f storeFunc) Load(ctx context.Context, key string) ([]byte, bool) {
	return f(ctx, key)
}

func liveOK[T any](v T) Operation[T] {
	return func(context.Context) (T, error) { return v, nil }
}

func liveErr[T any](err error) Operation[T] {
	return func(context.Context) (T, error) {
		var zero T
		return zero, err
	}
}

func TestInvoke_LivePreferred(t *testing.T) {
	tests := []struct {
		name      string
		snapshots map[string][]byte
	}{
		{"snapshot present", map[string][]byte{"devices": []byte(`[{"id":"V1"}]`)}},
		{"snapshot absent", nil},
		{"snapshot corrupt", map[string][]byte{"devices": []byte(`{not json`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &countingStore{Store: NewMemoryStore(tt.snapshots)}

			result, err := Invoke(context.Background(), store, "devices", liveOK([]device{{ID: "V2"}}))

			require.NoError(t, err)
			assert.Equal(t, []device{{ID: "V2"}}, result.Data)
			assert.False(t, result.FromCache)
			assert.True(t, result.FromLive())
			assert.Zero(t, store.calls, "store must not be consulted after a live success")
		})
	}
}

func TestInvoke_FallbackOnFailure(t *testing.T) {
	store := NewMemoryStore(map[string][]byte{
		"devices": []byte(`[{"id":"V1"}]`),
	})

	result, err := Invoke(context.Background(), store, "devices", liveErr[[]device](errors.New("upstream timeout")))

	require.NoError(t, err)
	assert.Equal(t, []device{{ID: "V1"}}, result.Data)
	assert.True(t, result.FromCache)
	assert.False(t, result.FromLive())
}

func TestInvoke_PropagatesLiveErrorWhenSnapshotAbsent(t *testing.T) {
	liveFailure := errors.New("auth failed")

	tests := []struct {
		name  string
		store Store
	}{
		{"no snapshot for key", NewMemoryStore(map[string][]byte{"devices": []byte(`[{"id":"V1"}]`)})},
		{"empty store", NewMemoryStore(nil)},
		{"nil store", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Invoke(context.Background(), tt.store, "status", liveErr[[]status](liveFailure))

			require.Error(t, err)
			assert.Same(t, liveFailure, err)
			assert.Equal(t, "auth failed", err.Error())
			assert.Nil(t, result.Data)
			assert.False(t, result.FromCache)
		})
	}
}

func TestInvoke_PreservesWrappedErrorKind(t *testing.T) {
	sentinel := errors.New("dial tcp: connection refused")
	liveFailure := fmt.Errorf("get devices: %w", sentinel)

	_, err := Invoke(context.Background(), NewMemoryStore(nil), "devices", liveErr[[]device](liveFailure))

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, liveFailure.Error(), err.Error())
}

func TestInvoke_CorruptSnapshotIsAbsent(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"malformed json", []byte(`[{"id":`)},
		{"wrong shape", []byte(`{"id":"V1"}`)},
		{"wrong field type", []byte(`[{"id":42}]`)},
		{"empty", []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			liveFailure := errors.New("upstream timeout")
			store := NewMemoryStore(map[string][]byte{"devices": tt.data})

			assert.NotPanics(t, func() {
				_, err := Invoke(context.Background(), store, "devices", liveErr[[]device](liveFailure))
				assert.Same(t, liveFailure, err)
			})
		})
	}
}

func TestInvoke_KeysMapToTheirOwnSnapshots(t *testing.T) {
	store := NewMemoryStore(map[string][]byte{
		"devices": []byte(`[{"id":"V1"}]`),
		"status":  []byte(`[{"deviceId":"V1","speed":42.5}]`),
	})
	failure := errors.New("upstream down")

	devices, err := Invoke(context.Background(), store, "devices", liveErr[[]device](failure))
	require.NoError(t, err)
	assert.Equal(t, []device{{ID: "V1"}}, devices.Data)

	statuses, err := Invoke(context.Background(), store, "status", liveErr[[]status](failure))
	require.NoError(t, err)
	assert.Equal(t, []status{{DeviceID: "V1", Speed: 42.5}}, statuses.Data)

	_, err = Invoke(context.Background(), store, "trips", liveErr[[]device](failure))
	assert.Same(t, failure, err)
}

func TestInvoke_LiveCalledOnce(t *testing.T) {
	calls := 0
	live := func(context.Context) ([]device, error) {
		calls++
		return nil, errors.New("boom")
	}

	_, _ = Invoke(context.Background(), NewMemoryStore(nil), "devices", live)

	assert.Equal(t, 1, calls)
}

func TestInvoke_FallbackAfterDeadlineExpired(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "devices.json", `[{"id":"V1"}]`)
	store := NewFileStore(dir, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	live := func(ctx context.Context) ([]device, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	res, err := Invoke(ctx, store, "devices", live)

	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, []device{{ID: "V1"}}, res.Data)
}

func TestInvoke_SnapshotReadSurvivesCancellation(t *testing.T) {
	var loadErr error
	store := storeFunc(func(ctx context.Context, key string) ([]byte, bool) {
		loadErr = ctx.Err()
		return []byte(`[{"deviceId":"V1","speed":3}]`), true
	})
	ctx, cancel := context.WithCancel(context.Background())
	live := func(context.Context) ([]status, error) {
		cancel()
		return nil, context.Canceled
	}

	res, err := Invoke(ctx, store, "status", live)

	require.NoError(t, err)
	assert.NoError(t, loadErr)
	assert.True(t, res.FromCache)
	assert.Equal(t, 3.0, res.Data[0].Speed)
}

func TestInvoke_PassesContextToLive(t *testing.T) {
	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "marker")

	var seen any
	_, err := Invoke(ctx, nil, "devices", func(ctx context.Context) ([]device, error) {
		seen = ctx.Value(ctxKey{})
		return nil, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "marker", seen)
}

func TestInvoke_ConcurrentInvocations(t *testing.T) {
	store := NewMemoryStore(map[string][]byte{
		"devices": []byte(`[{"id":"V1"}]`),
		"status":  []byte(`[{"deviceId":"V1","speed":10}]`),
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			res, err := Invoke(context.Background(), store, "devices", liveErr[[]device](errors.New("down")))
			assert.NoError(t, err)
			assert.Equal(t, "V1", res.Data[0].ID)
		}()
		go func() {
			defer wg.Done()
			res, err := Invoke(context.Background(), store, "status", liveErr[[]status](errors.New("down")))
			assert.NoError(t, err)
			assert.Equal(t, 10.0, res.Data[0].Speed)
		}()
	}
	wg.Wait()
}

func TestRun_NotifiesObservers(t *testing.T) {
	store := NewMemoryStore(map[string][]byte{"devices": []byte(`[{"id":"V1"}]`)})
	failure := errors.New("upstream timeout")

	type event struct {
		key     string
		outcome Outcome
		err     error
	}
	var events []event
	inv := NewInvoker(store, func(_ context.Context, key string, outcome Outcome, err error) {
		events = append(events, event{key, outcome, err})
	})

	_, err := Run(context.Background(), inv, "devices", liveOK([]device{{ID: "V2"}}))
	require.NoError(t, err)

	res, err := Run(context.Background(), inv, "devices", liveErr[[]device](failure))
	require.NoError(t, err)
	assert.True(t, res.FromCache)

	_, err = Run(context.Background(), inv, "status", liveErr[[]status](failure))
	assert.Same(t, failure, err)

	require.Len(t, events, 3)
	assert.Equal(t, event{"devices", OutcomeLive, nil}, events[0])
	assert.Equal(t, event{"devices", OutcomeCache, failure}, events[1])
	assert.Equal(t, event{"status", OutcomeFailed, failure}, events[2])
	assert.Same(t, store, inv.Store())
}
