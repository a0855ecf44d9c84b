// Package fingerprint computes a change-detecting hash over a folder's file
// metadata. The hash covers relative path, modification time, and size for
// every file in the tree, so additions, removals, renames, and any touch
// that changes size or mtime invalidate it. It deliberately never reads file
// contents: a same-size same-mtime content swap is invisible, an accepted
// tradeoff for speed on large DICOM series.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Compute hashes the folder's metadata. Filenames listed in excludeNames
// (for example the cache sidecar and its lock file) are skipped so writing
// the cache does not invalidate it. Unreadable subtrees are skipped rather
// than failing the whole fingerprint; a missing root is an error.
func Compute(folderPath string, excludeNames ...string) (string, error) {
	info, err := os.Stat(folderPath)
	if err != nil {
		return "", fmt.Errorf("stat folder: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", folderPath)
	}

	excluded := make(map[string]struct{}, len(excludeNames))
	for _, name := range excludeNames {
		if name = strings.TrimSpace(name); name != "" {
			excluded[name] = struct{}{}
		}
	}

	// The directory's own mtime is deliberately not hashed: writing the
	// sidecar (or its lock file) into the folder touches it, which would
	// invalidate the cache on every save. The per-file rows already cover
	// every addition, removal, and rename.
	hasher := sha256.New()

	var rows []string
	walkErr := filepath.WalkDir(folderPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, skip := excluded[d.Name()]; skip {
			return nil
		}
		fileInfo, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(folderPath, path)
		if err != nil {
			return nil
		}
		rows = append(rows, fmt.Sprintf("%s:%d:%d", filepath.ToSlash(rel), fileInfo.ModTime().UnixNano(), fileInfo.Size()))
		return nil
	})
	if walkErr != nil {
		return "", fmt.Errorf("walk folder: %w", walkErr)
	}

	sort.Strings(rows)
	hasher.Write([]byte(strings.Join(rows, "|")))
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
