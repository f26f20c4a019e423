package fallback

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// snapshotExt is appended to a key to form its file name.
const snapshotExt = ".json"

var validKey = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// FileStore keeps one JSON file per key inside a directory: <dir>/<key>.json.
type FileStore struct {
	dir    string
	logger *zap.Logger
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		dir:    dir,
		logger: logger,
	}
}

// Dir returns the snapshot directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Load reads the snapshot file for key.
func (s *FileStore) Load(ctx context.Context, key string) ([]byte, bool) {
	path, err := s.path(key)
	if err != nil {
		s.logger.Debug("snapshot key rejected", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Debug("snapshot unavailable",
			zap.String("key", key),
			zap.String("path", path),
			zap.Error(err))
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}
	return data, true
}

// Save writes data as the snapshot for key, replacing any previous file.
func (s *FileStore) Save(ctx context.Context, key string, data []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}

	s.logger.Info("snapshot saved", zap.String("key", key), zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

// List describes every snapshot file in the directory. A missing directory
// holds no snapshots.
func (s *FileStore) List(ctx context.Context) ([]SnapshotInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	var snapshots []SnapshotInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, snapshotExt) || strings.HasPrefix(name, ".") {
			continue
		}
		key := strings.TrimSuffix(name, snapshotExt)
		if !validKey.MatchString(key) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		snapshots = append(snapshots, SnapshotInfo{
			Key:        key,
			Size:       int(info.Size()),
			CapturedAt: info.ModTime().UTC(),
		})
	}

	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Key < snapshots[j].Key })
	return snapshots, nil
}

func (s *FileStore) path(key string) (string, error) {
	if !validKey.MatchString(key) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid snapshot key %q", key)
	}
	return filepath.Join(s.dir, key+snapshotExt), nil
}
