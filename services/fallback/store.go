// Package fallback implements the live-first, snapshot-second fetch policy used for
// every call to the fleet-telemetry upstream.
//
// A snapshot is a previously captured copy of a successful upstream response. It is
// provisioned out-of-band and is only ever read here.
package fallback

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// Store retrieves raw snapshots by logical key.
//
// Load must never fail: a missing, unreadable or otherwise broken snapshot is
// reported as absent (nil, false).
type Store interface {
	Load(ctx context.Context, key string) ([]byte, bool)
}

// Writer persists snapshots. Only the provisioning command uses it; the
// fetch policy never writes.
type Writer interface {
	Save(ctx context.Context, key string, data []byte) error
}

// SnapshotInfo describes a stored snapshot without its payload.
type SnapshotInfo struct {
	Key        string    `json:"key"`
	Size       int       `json:"size"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Lister enumerates stored snapshots, ordered by key.
type Lister interface {
	List(ctx context.Context) ([]SnapshotInfo, error)
}

// LoadAs loads the snapshot stored under key and decodes it into T.
// A nil store, a missing snapshot and a snapshot that does not decode into T
// are all reported as absent.
func LoadAs[T any](ctx context.Context, store Store, key string) (T, bool) {
	var zero T
	if store == nil || key == "" {
		return zero, false
	}

	raw, ok := store.Load(ctx, key)
	if !ok || len(raw) == 0 {
		return zero, false
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return zero, false
	}
	return value, true
}
