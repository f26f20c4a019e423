package fallback

import (
	"context"
)

// Result is the value handed back to callers together with where it came from.
type Result[T any] struct {
	Data      T
	FromCache bool
}

// FromLive reports whether Data came from the live upstream call.
func (r Result[T]) FromLive() bool {
	return !r.FromCache
}

// Operation performs one live upstream call.
type Operation[T any] func(ctx context.Context) (T, error)

// Invoke runs live once. On success its value is returned as live data and the
// store is not consulted. On failure the snapshot stored under key is returned
// instead; when there is none, the error from live is returned unchanged.
// The snapshot read ignores cancellation of ctx, so a live call cut short by
// the request deadline still falls back.
func Invoke[T any](ctx context.Context, store Store, key string, live Operation[T]) (Result[T], error) {
	data, err := live(ctx)
	if err == nil {
		return Result[T]{Data: data}, nil
	}

	snapshot, ok := LoadAs[T](context.WithoutCancel(ctx), store, key)
	if !ok {
		return Result[T]{}, err
	}
	return Result[T]{Data: snapshot, FromCache: true}, nil
}

// Outcome describes how an invocation settled.
type Outcome string

const (
	OutcomeLive   Outcome = "live"
	OutcomeCache  Outcome = "cache"
	OutcomeFailed Outcome = "failed"
)

// Observer is notified after every invocation made through an Invoker.
// err is the live-call error and is nil for OutcomeLive.
type Observer func(ctx context.Context, key string, outcome Outcome, err error)

// Invoker binds a Store so call sites only name the key and the operation.
type Invoker struct {
	store     Store
	observers []Observer
}

// NewInvoker creates an Invoker reading snapshots from store.
func NewInvoker(store Store, observers ...Observer) *Invoker {
	return &Invoker{
		store:     store,
		observers: observers,
	}
}

// Store returns the snapshot store used by the invoker.
func (i *Invoker) Store() Store {
	return i.store
}

// Run is Invoke against the invoker's store, followed by observer notification.
func Run[T any](ctx context.Context, inv *Invoker, key string, live Operation[T]) (Result[T], error) {
	var liveErr error
	result, err := Invoke(ctx, inv.store, key, func(ctx context.Context) (T, error) {
		data, err := live(ctx)
		liveErr = err
		return data, err
	})

	outcome := OutcomeLive
	switch {
	case err != nil:
		outcome = OutcomeFailed
	case result.FromCache:
		outcome = OutcomeCache
	}
	for _, observe := range inv.observers {
		observe(ctx, key, outcome, liveErr)
	}

	return result, err
}

// Map transforms the data of a result, keeping its origin.
func Map[T, U any](r Result[T], fn func(T) U) Result[U] {
	return Result[U]{
		Data:      fn(r.Data),
		FromCache: r.FromCache,
	}
}
