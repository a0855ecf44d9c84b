package fingerprint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"dentarch/internal/testsupport"
)

func compute(t *testing.T, folder string) string {
	t.Helper()
	hash, err := Compute(folder, ".dentarch_cache.json")
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	return hash
}

func TestComputeIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "a.jpg"), 100)
	testsupport.WriteFile(t, filepath.Join(dir, "sub", "b.stl"), 200)

	first := compute(t, dir)
	second := compute(t, dir)
	if first != second {
		t.Errorf("fingerprint not deterministic: %s vs %s", first, second)
	}
}

func TestComputeSensitivity(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "a.jpg"), 100)
	testsupport.WriteFile(t, filepath.Join(dir, "b.jpg"), 100)
	base := compute(t, dir)

	// Addition
	testsupport.WriteFile(t, filepath.Join(dir, "c.jpg"), 50)
	withAdded := compute(t, dir)
	if withAdded == base {
		t.Error("adding a file should change the fingerprint")
	}

	// Removal
	if err := os.Remove(filepath.Join(dir, "c.jpg")); err != nil {
		t.Fatal(err)
	}
	if got := compute(t, dir); got != base {
		t.Error("removing the added file should restore the fingerprint")
	}

	// Rename
	if err := os.Rename(filepath.Join(dir, "b.jpg"), filepath.Join(dir, "renamed.jpg")); err != nil {
		t.Fatal(err)
	}
	if got := compute(t, dir); got == base {
		t.Error("renaming a file should change the fingerprint")
	}
}

func TestComputeMetadataOnlyGap(t *testing.T) {
	// Known gap: a content swap that preserves size and mtime is invisible.
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.stl")
	if err := os.WriteFile(path, []byte("aaaaaaaa"), 0o644); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	base := compute(t, dir)

	if err := os.WriteFile(path, []byte("bbbbbbbb"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, info.ModTime(), info.ModTime()); err != nil {
		t.Fatal(err)
	}
	if got := compute(t, dir); got != base {
		t.Error("same-size same-mtime content swap should not change the fingerprint")
	}

	// The gap is bounded: let the size change and the swap is visible again.
	if err := os.WriteFile(path, []byte("ccc"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, info.ModTime(), info.ModTime()); err != nil {
		t.Fatal(err)
	}
	if got := compute(t, dir); got == base {
		t.Error("size change must be visible even with a restored mtime")
	}
}

func TestComputeExcludesSidecar(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "a.jpg"), 100)
	base := compute(t, dir)

	if err := os.WriteFile(filepath.Join(dir, ".dentarch_cache.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := compute(t, dir); got != base {
		t.Error("writing the sidecar should not invalidate the fingerprint")
	}
}

func TestComputeMtimeSensitivity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")
	testsupport.WriteFile(t, path, 100)
	base := compute(t, dir)

	future := time.Now().Add(2 * time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
	if got := compute(t, dir); got == base {
		t.Error("touching a file's mtime should change the fingerprint")
	}
}

func TestComputeMissingFolder(t *testing.T) {
	if _, err := Compute(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("missing folder should return an error")
	}
}
