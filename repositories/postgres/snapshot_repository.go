package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/upb/fleet-gateway/services/fallback"
	"go.uber.org/zap"
)

// DefaultSnapshotTable is used when no table name is configured.
const DefaultSnapshotTable = "fleet_snapshots"

// SnapshotRepository keeps fallback snapshots in a Postgres table keyed by
// logical key. Reads never fail: any problem is reported as a missing snapshot.
type SnapshotRepository struct {
	db     *DB
	table  string
	logger *zap.Logger
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *DB, table string, logger *zap.Logger) *SnapshotRepository {
	if table == "" {
		table = DefaultSnapshotTable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotRepository{
		db:     db,
		table:  table,
		logger: logger,
	}
}

// Load returns the payload stored under key.
func (r *SnapshotRepository) Load(ctx context.Context, key string) ([]byte, bool) {
	if r == nil || r.db == nil || key == "" {
		return nil, false
	}

	query := fmt.Sprintf(`SELECT payload FROM %s WHERE key = $1`, r.table)

	var payload []byte
	err := r.db.QueryRowContext(ctx, query, key).Scan(&payload)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug("snapshot lookup failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(payload) == 0 {
		return nil, false
	}
	return payload, true
}

// Save stores data under key, replacing any previous snapshot.
func (r *SnapshotRepository) Save(ctx context.Context, key string, data []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (key, payload, size_bytes, captured_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET
			payload = EXCLUDED.payload,
			size_bytes = EXCLUDED.size_bytes,
			captured_at = EXCLUDED.captured_at
	`, r.table)

	if _, err := r.db.ExecContext(ctx, query, key, data, len(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save snapshot %q: %w", key, err)
	}

	r.logger.Info("snapshot saved", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

// List returns metadata for every stored snapshot, ordered by key. Size is
// the length of the payload as it was saved, not of the stored JSONB.
func (r *SnapshotRepository) List(ctx context.Context) ([]fallback.SnapshotInfo, error) {
	query := fmt.Sprintf(`SELECT key, size_bytes, captured_at FROM %s ORDER BY key`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []fallback.SnapshotInfo
	for rows.Next() {
		var info fallback.SnapshotInfo
		if err := rows.Scan(&info.Key, &info.Size, &info.CapturedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return snapshots, nil
}
