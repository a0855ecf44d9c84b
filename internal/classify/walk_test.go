package classify

import (
	"path/filepath"
	"testing"

	"dentarch/internal/testsupport"
)

func TestWalkExcludesSidecarAndTmp(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "photo.jpg"), 64)
	testsupport.WriteFile(t, filepath.Join(dir, ".dentarch_cache.json"), 32)
	testsupport.WriteFile(t, filepath.Join(dir, "tmp", "patient.nii.gz"), 64)

	c := newTestClassifier(t)
	inv, err := c.Walk(dir)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if len(inv.MainFiles) != 1 || filepath.Base(inv.MainFiles[0]) != "photo.jpg" {
		t.Errorf("main files = %v, want only photo.jpg", inv.MainFiles)
	}
}

func TestWalkFirstFolderMatchWins(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteDICOM(t, filepath.Join(dir, "3D_Volume", "a.dcm"))
	testsupport.WriteDICOM(t, filepath.Join(dir, "CT_Export", "b.dcm"))
	testsupport.WriteFile(t, filepath.Join(dir, "Scan", "u.stl"), 64)

	c := newTestClassifier(t)
	inv, err := c.Walk(dir)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if filepath.Base(inv.CBCTFolder) != "3D_Volume" {
		t.Errorf("cbct folder = %q, want first match 3D_Volume", inv.CBCTFolder)
	}
	// The losing candidate's files stay visible through the main walk.
	found := false
	for _, f := range inv.MainFiles {
		if filepath.Base(f) == "b.dcm" {
			found = true
		}
	}
	if !found {
		t.Errorf("files of non-selected candidate folder missing from main files: %v", inv.MainFiles)
	}
	if filepath.Base(inv.IOSFolder) != "Scan" {
		t.Errorf("ios folder = %q", inv.IOSFolder)
	}
}
