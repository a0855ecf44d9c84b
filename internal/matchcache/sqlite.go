package matchcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// centralizedStore keeps every snapshot in one SQLite database keyed by the
// patient folder's absolute path. It is the legacy backend; relocating a
// folder orphans its record here, which the sidecar backend avoids.
type centralizedStore struct {
	db   *sql.DB
	path string
}

func openCentralized(path string) (*centralizedStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	const schema = `CREATE TABLE IF NOT EXISTS match_cache (
        folder_path TEXT PRIMARY KEY,
        payload     TEXT NOT NULL,
        updated_at  TEXT NOT NULL
    )`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create match_cache table: %w", err)
	}
	return &centralizedStore{db: db, path: path}, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *centralizedStore) Load(ctx context.Context, folderPath string) (*Snapshot, error) {
	ctx = ensureContext(ctx)
	var payload string
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`SELECT payload FROM match_cache WHERE folder_path = ?`,
			filepath.Clean(folderPath),
		).Scan(&payload)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cache record: %w", err)
	}

	snap := &Snapshot{}
	if err := json.Unmarshal([]byte(payload), snap); err != nil {
		return nil, fmt.Errorf("parse cache record: %w", err)
	}
	snap.normalize()
	return snap, nil
}

func (s *centralizedStore) Save(ctx context.Context, snap *Snapshot) error {
	ctx = ensureContext(ctx)
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode cache record: %w", err)
	}
	return retryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx,
			`INSERT INTO match_cache (folder_path, payload, updated_at)
             VALUES (?, ?, ?)
             ON CONFLICT(folder_path) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
			filepath.Clean(snap.FolderPath),
			string(payload),
			time.Now().UTC().Format(time.RFC3339Nano),
		)
		return execErr
	})
}

func (s *centralizedStore) Delete(ctx context.Context, folderPath string) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx,
			`DELETE FROM match_cache WHERE folder_path = ?`, filepath.Clean(folderPath))
		return execErr
	})
}

func (s *centralizedStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Stats reports the record count and database size of the centralized store.
func (s *centralizedStore) Stats(ctx context.Context) (records int, sizeBytes int64, err error) {
	ctx = ensureContext(ctx)
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM match_cache`).Scan(&records); err != nil {
		return 0, 0, fmt.Errorf("count cache records: %w", err)
	}
	if info, statErr := os.Stat(s.path); statErr == nil {
		sizeBytes = info.Size()
	}
	return records, sizeBytes, nil
}
