package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"dentarch/internal/classify"
	"dentarch/internal/config"
	"dentarch/internal/matchcache"
	"dentarch/internal/patient"
	"dentarch/internal/testsupport"
)

type fixture struct {
	cfg        *config.Config
	classifier *classify.Classifier
	cache      *matchcache.Cache
	reconciler *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	classifier, err := classify.New(cfg, nil)
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}
	cache, err := matchcache.New(cfg, nil)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	return &fixture{cfg: cfg, classifier: classifier, cache: cache, reconciler: New(nil)}
}

func (fx *fixture) analyzeWithCache(t *testing.T, dir string) *patient.Patient {
	t.Helper()
	ctx := context.Background()
	if snap := fx.cache.Get(ctx, dir); snap != nil {
		inv, err := fx.classifier.Walk(dir)
		if err != nil {
			t.Fatalf("walk: %v", err)
		}
		return fx.reconciler.Apply(inv, snap)
	}
	p := fx.classifier.Classify(dir)
	if err := fx.cache.Put(ctx, p); err != nil {
		t.Fatalf("cache put: %v", err)
	}
	return p
}

func TestManualOverrideSurvivesReanalysis(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	dir := t.TempDir()
	// Both names carry the panoramic keyword; heuristics would give v1 the
	// slot every time.
	testsupport.WriteFile(t, filepath.Join(dir, "panoramic_v1.jpg"), 64)
	testsupport.WriteFile(t, filepath.Join(dir, "panoramic_v2.jpg"), 64)

	p := fx.analyzeWithCache(t, dir)
	if p.Orthopantomography == nil || p.Orthopantomography.Filename() != "panoramic_v1.jpg" {
		t.Fatalf("precondition: v1 should win the slot, got %+v", p.Orthopantomography)
	}

	v2 := filepath.Join(dir, "panoramic_v2.jpg")
	if err := fx.reconciler.Reassign(p, v2, patient.Orthopantomography); err != nil {
		t.Fatalf("Reassign failed: %v", err)
	}
	if err := fx.cache.Put(ctx, p); err != nil {
		t.Fatalf("cache save after reassign: %v", err)
	}

	// Re-analysis must serve the manual assignment from cache.
	again := fx.analyzeWithCache(t, dir)
	slot := again.Orthopantomography
	if slot == nil || slot.Filename() != "panoramic_v2.jpg" {
		t.Fatalf("manual assignment lost on re-analysis: %+v", slot)
	}
	if slot.Status != patient.StatusManual || slot.Confidence != 1.0 {
		t.Errorf("manual status not restored: %s/%.1f", slot.Status, slot.Confidence)
	}
	// The displaced v1 is in unmatched, not gone, and keeps its old type
	// for display.
	if len(again.Unmatched) != 1 || again.Unmatched[0].Filename() != "panoramic_v1.jpg" {
		t.Fatalf("displaced occupant lost: %+v", again.Unmatched)
	}
	if got := len(again.AllFiles()); got != 2 {
		t.Errorf("file count = %d, want 2", got)
	}
}

func TestDisplacementKeepsFileCount(t *testing.T) {
	fx := newFixture(t)
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "opt_scan.jpg"), 64)
	testsupport.WriteFile(t, filepath.Join(dir, "notes.txt"), 32)

	p := fx.classifier.Classify(dir)
	before := len(p.AllFiles())

	// Move the unmatched text file into the occupied panoramic slot.
	if err := fx.reconciler.Reassign(p, filepath.Join(dir, "notes.txt"), patient.Orthopantomography); err != nil {
		t.Fatalf("Reassign failed: %v", err)
	}
	if got := p.Orthopantomography; got == nil || got.Filename() != "notes.txt" {
		t.Fatalf("reassigned file should hold the slot, got %+v", got)
	}
	displaced := false
	for _, f := range p.Unmatched {
		if f.Filename() == "opt_scan.jpg" {
			displaced = true
		}
	}
	if !displaced {
		t.Error("previous occupant should be displaced into unmatched")
	}
	if got := len(p.AllFiles()); got != before {
		t.Errorf("file count changed %d -> %d", before, got)
	}
}

func TestNewFileBecomesUnmatched(t *testing.T) {
	fx := newFixture(t)
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "tele.jpg"), 64)

	p := fx.analyzeWithCache(t, dir)
	if p.Teleradiography == nil {
		t.Fatal("precondition: keyword file should classify")
	}

	// Drop a new image in. The fingerprint changes, so the cache misses;
	// reconciliation against the stale snapshot must still never classify
	// the newcomer.
	snap := matchcache.FromPatient(p, "stale")
	testsupport.WriteFile(t, filepath.Join(dir, "new_photo.jpg"), 64)
	inv, err := fx.classifier.Walk(dir)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}

	merged := fx.reconciler.Apply(inv, snap)
	if merged.Teleradiography == nil || merged.Teleradiography.Filename() != "tele.jpg" {
		t.Errorf("cached classification lost: %+v", merged.Teleradiography)
	}
	if len(merged.Unmatched) != 1 || merged.Unmatched[0].Filename() != "new_photo.jpg" {
		t.Fatalf("new file should be unmatched, got %+v", merged.Unmatched)
	}
	if merged.Unmatched[0].Status != patient.StatusUnmatched {
		t.Errorf("new file status = %s", merged.Unmatched[0].Status)
	}
}

func TestCachedUnmatchedStaysUnmatched(t *testing.T) {
	fx := newFixture(t)
	dir := t.TempDir()
	// The filename carries a keyword, but the cache says unmatched; the
	// cache wins.
	testsupport.WriteFile(t, filepath.Join(dir, "tele.jpg"), 64)

	p := patient.New(dir)
	f := patient.NewFile(filepath.Join(dir, "tele.jpg"))
	p.Unmatched = append(p.Unmatched, f)
	snap := matchcache.FromPatient(p, "irrelevant")

	inv, err := fx.classifier.Walk(dir)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	merged := fx.reconciler.Apply(inv, snap)
	if merged.Teleradiography != nil {
		t.Error("cache-unmatched file must not be re-classified")
	}
	if len(merged.Unmatched) != 1 {
		t.Fatalf("unmatched = %+v", merged.Unmatched)
	}
}

func TestInvalidCachedTypeFallsBackToUnmatched(t *testing.T) {
	fx := newFixture(t)
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "a.jpg"), 64)

	path := filepath.Join(dir, "a.jpg")
	snap := &matchcache.Snapshot{
		Version:    matchcache.SchemaVersion,
		FolderPath: dir,
		MatchedFiles: map[string]matchcache.FileEntry{
			path: {DataType: "sinus_lift_scan", Status: "matched", Slot: matchcache.SlotIntraoral},
		},
	}

	inv, err := fx.classifier.Walk(dir)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	merged := fx.reconciler.Apply(inv, snap)
	if len(merged.IntraoralPhotos) != 0 {
		t.Error("unknown type must not be routed into a slot")
	}
	if len(merged.Unmatched) != 1 {
		t.Fatalf("file with unknown cached type should fall back to unmatched, got %+v", merged.Unmatched)
	}
}

func TestReassignMissingFileFailsCleanly(t *testing.T) {
	fx := newFixture(t)
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "a.jpg"), 64)

	p := fx.classifier.Classify(dir)
	target := filepath.Join(dir, "a.jpg")
	if err := os.Remove(target); err != nil {
		t.Fatal(err)
	}

	before := len(p.AllFiles())
	if err := fx.reconciler.Reassign(p, target, patient.Teleradiography); err == nil {
		t.Fatal("reassigning a deleted file should fail")
	}
	if got := len(p.AllFiles()); got != before {
		t.Errorf("failed reassignment mutated the aggregate: %d -> %d", before, got)
	}
}

func TestRemoveMissing(t *testing.T) {
	fx := newFixture(t)
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "keep.jpg"), 64)
	testsupport.WriteFile(t, filepath.Join(dir, "gone.jpg"), 64)

	p := fx.classifier.Classify(dir)
	if err := os.Remove(filepath.Join(dir, "gone.jpg")); err != nil {
		t.Fatal(err)
	}

	removed := fx.reconciler.RemoveMissing(p)
	if len(removed) != 1 || filepath.Base(removed[0]) != "gone.jpg" {
		t.Fatalf("removed = %v", removed)
	}
	for _, f := range p.AllFiles() {
		if f.Filename() == "gone.jpg" {
			t.Error("missing file still in aggregate")
		}
	}
}

func TestSetExcludedKeepsSlot(t *testing.T) {
	fx := newFixture(t)
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "tele.jpg"), 64)

	p := fx.classifier.Classify(dir)
	if err := fx.reconciler.SetExcluded(p, filepath.Join(dir, "tele.jpg"), true); err != nil {
		t.Fatalf("SetExcluded failed: %v", err)
	}
	if p.Teleradiography == nil || !p.Teleradiography.Excluded {
		t.Errorf("excluded file should keep its slot with the flag set: %+v", p.Teleradiography)
	}
}
