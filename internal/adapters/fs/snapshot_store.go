package fs

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/trebuchet-org/treb-runner/internal/domain"
	"github.com/trebuchet-org/treb-runner/internal/domain/config"
	"github.com/trebuchet-org/treb-runner/internal/usecase"
)

const (
	snapshotPrefix = "snapshot_"
	snapshotExt    = ".json"

	// ContainerSnapshotDir is where node containers see the snapshot directory
	ContainerSnapshotDir = "/anvil/snapshots"
)

// SnapshotStoreAdapter keeps node state dumps under <root>/<mode>/
type SnapshotStoreAdapter struct {
	root string
	keep int
	now  func() time.Time
}

// NewSnapshotStoreAdapter creates a new SnapshotStoreAdapter
func NewSnapshotStoreAdapter(cfg *config.RuntimeConfig) *SnapshotStoreAdapter {
	root := cfg.Node.SnapshotDir
	if root == "" {
		root = filepath.Join(cfg.DataDir, "snapshots")
	}
	keep := cfg.Node.SnapshotKeep
	if keep <= 0 {
		keep = 5
	}
	return &SnapshotStoreAdapter{root: root, keep: keep, now: time.Now}
}

// Dir returns the host directory of a mode's snapshots
func (s *SnapshotStoreAdapter) Dir(mode domain.NodeMode) string {
	return filepath.Join(s.root, string(mode))
}

// ContainerDir returns the mount point of Dir inside the node container
func (s *SnapshotStoreAdapter) ContainerDir() string {
	return ContainerSnapshotDir
}

// ContainerPath maps a snapshot onto its path inside the node container
func (s *SnapshotStoreAdapter) ContainerPath(snap *domain.NodeSnapshot) string {
	return path.Join(ContainerSnapshotDir, snap.File)
}

// Save writes a new snapshot and prunes all but the newest ones
func (s *SnapshotStoreAdapter) Save(mode domain.NodeMode, state []byte) (*domain.NodeSnapshot, error) {
	dir := s.Dir(mode)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	created := s.now()
	name := fmt.Sprintf("%s%d%s", snapshotPrefix, created.UnixNano(), snapshotExt)
	p := filepath.Join(dir, name)
	if err := writeFileAtomic(p, state); err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}

	snaps, err := s.List(mode)
	if err != nil {
		return nil, err
	}
	for _, old := range snaps[min(s.keep, len(snaps)):] {
		if err := os.Remove(old.Path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to prune snapshot %s: %w", old.File, err)
		}
	}

	return &domain.NodeSnapshot{
		File:      name,
		Path:      p,
		SizeBytes: int64(len(state)),
		CreatedAt: created,
	}, nil
}

// Latest returns the newest snapshot or domain.ErrNotFound
func (s *SnapshotStoreAdapter) Latest(mode domain.NodeMode) (*domain.NodeSnapshot, error) {
	snaps, err := s.List(mode)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("no %s snapshots: %w", mode, domain.ErrNotFound)
	}
	return &snaps[0], nil
}

// List returns the snapshots of a mode, newest first
func (s *SnapshotStoreAdapter) List(mode domain.NodeMode) ([]domain.NodeSnapshot, error) {
	dir := s.Dir(mode)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	var snaps []domain.NodeSnapshot
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		snaps = append(snaps, domain.NodeSnapshot{
			File:      name,
			Path:      filepath.Join(dir, name),
			SizeBytes: info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	// names embed the creation time, so they order more precisely than mtimes
	sort.Slice(snaps, func(i, j int) bool {
		return snapshotStamp(snaps[i].File) > snapshotStamp(snaps[j].File)
	})
	return snaps, nil
}

// DeleteAll removes every snapshot of a mode
func (s *SnapshotStoreAdapter) DeleteAll(mode domain.NodeMode) (int, error) {
	snaps, err := s.List(mode)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, snap := range snaps {
		if err := os.Remove(snap.Path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to delete snapshot %s: %w", snap.File, err)
		}
		removed++
	}
	return removed, nil
}

func snapshotStamp(name string) int64 {
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), snapshotExt)
	n, _ := strconv.ParseInt(stamp, 10, 64)
	return n
}

// writeFileAtomic writes through a temp file in the same directory
func writeFileAtomic(p string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(p), "."+filepath.Base(p)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}

// Ensure SnapshotStoreAdapter implements NodeSnapshotStore
var _ usecase.NodeSnapshotStore = (*SnapshotStoreAdapter)(nil)
