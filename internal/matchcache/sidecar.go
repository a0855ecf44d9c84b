package matchcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"dentarch/internal/fileutil"
)

// sidecarStore keeps one JSON file inside each patient folder, keyed by the
// folder's absolute path at save time. Writes take a flock and replace the
// file atomically so a concurrent reader never sees a truncated snapshot.
type sidecarStore struct {
	name string
}

func newSidecarStore(name string) *sidecarStore {
	return &sidecarStore{name: name}
}

func (s *sidecarStore) pathFor(folderPath string) string {
	return filepath.Join(filepath.Clean(folderPath), s.name)
}

func (s *sidecarStore) Load(_ context.Context, folderPath string) (*Snapshot, error) {
	data, err := os.ReadFile(s.pathFor(folderPath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sidecar: %w", err)
	}

	var records map[string]*Snapshot
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse sidecar: %w", err)
	}

	cleaned := filepath.Clean(folderPath)
	snap := records[cleaned]
	if snap == nil && len(records) == 1 {
		// The folder was relocated since the save; the sidecar traveled
		// with it, so the single record is still ours.
		for _, only := range records {
			snap = only
		}
	}
	if snap == nil {
		return nil, nil
	}
	snap.normalize()
	snap.rebase(cleaned)
	return snap, nil
}

func (s *sidecarStore) Save(_ context.Context, snap *Snapshot) error {
	path := s.pathFor(snap.FolderPath)

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock sidecar: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	records := map[string]*Snapshot{filepath.Clean(snap.FolderPath): snap}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	return nil
}

func (s *sidecarStore) Delete(_ context.Context, folderPath string) error {
	path := s.pathFor(folderPath)
	for _, target := range []string{path, path + ".lock"} {
		if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove sidecar: %w", err)
		}
	}
	return nil
}

func (s *sidecarStore) Close() error { return nil }
