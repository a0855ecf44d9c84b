package zippkg

import (
	"archive/zip"
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"

	"dentarch/internal/patient"
	"dentarch/internal/services"
	"dentarch/internal/testsupport"
)

func classified(path string, dataType patient.DataType) *patient.File {
	f := patient.NewFile(path)
	f.Type = dataType
	f.Status = patient.StatusMatched
	return f
}

func TestPackageWritesSlotGroupedArchive(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteDICOM(t, filepath.Join(dir, "cbct", "slice.dcm"))
	testsupport.WriteFile(t, filepath.Join(dir, "upper.stl"), 256)
	testsupport.WriteFile(t, filepath.Join(dir, "photo.jpg"), 128)
	testsupport.WriteFile(t, filepath.Join(dir, "secret.jpg"), 128)

	p := patient.New(dir)
	p.CBCTFiles = []*patient.File{classified(filepath.Join(dir, "cbct", "slice.dcm"), patient.CBCTDicom)}
	p.IOSUpper = classified(filepath.Join(dir, "upper.stl"), patient.IOSUpper)
	p.IntraoralPhotos = []*patient.File{
		classified(filepath.Join(dir, "photo.jpg"), patient.IntraoralPhoto),
		classified(filepath.Join(dir, "secret.jpg"), patient.IntraoralPhoto),
	}
	p.IntraoralPhotos[1].Excluded = true

	out, err := New(nil).Package(context.Background(), p)
	if err != nil {
		t.Fatalf("Package failed: %v", err)
	}
	if p.ZipPath != out || p.ZipInfo["files"] != "3" {
		t.Errorf("zip state not recorded: %q %v", p.ZipPath, p.ZipInfo)
	}

	reader, err := zip.OpenReader(out)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer reader.Close()
	var names []string
	for _, f := range reader.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	want := []string{"cbct/slice.dcm", "intraoral_photo/photo.jpg", "ios_upper/upper.stl"}
	if len(names) != len(want) {
		t.Fatalf("entries = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestPackageDisambiguatesDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteDICOM(t, filepath.Join(dir, "a", "slice.dcm"))
	testsupport.WriteDICOM(t, filepath.Join(dir, "b", "slice.dcm"))

	p := patient.New(dir)
	p.CBCTFiles = []*patient.File{
		classified(filepath.Join(dir, "a", "slice.dcm"), patient.CBCTDicom),
		classified(filepath.Join(dir, "b", "slice.dcm"), patient.CBCTDicom),
	}

	out, err := New(nil).Package(context.Background(), p)
	if err != nil {
		t.Fatalf("Package failed: %v", err)
	}
	reader, err := zip.OpenReader(out)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	seen := map[string]bool{}
	for _, f := range reader.File {
		if seen[f.Name] {
			t.Errorf("duplicate entry %q", f.Name)
		}
		seen[f.Name] = true
	}
	if len(seen) != 2 {
		t.Errorf("entries = %v, want 2 distinct", seen)
	}
}

func TestPackageEmptyPatientFails(t *testing.T) {
	p := patient.New(t.TempDir())
	_, err := New(nil).Package(context.Background(), p)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
}
