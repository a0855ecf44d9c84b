package project

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"dentarch/internal/patient"
	"dentarch/internal/testsupport"
)

func newTestService(t *testing.T, opts ...testsupport.ConfigOption) *Service {
	t.Helper()
	svc, err := NewService(testsupport.NewConfig(t, opts...), nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func seedProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, id := range []string{"rossi_mario", "bianchi_anna", "verdi_luca"} {
		testsupport.WriteDICOM(t, filepath.Join(root, id, "cbct", "slice.dcm"))
		testsupport.WriteFile(t, filepath.Join(root, id, "scan", "upper.stl"), 128)
		testsupport.WriteFile(t, filepath.Join(root, id, "tele.jpg"), 64)
	}
	testsupport.WriteFile(t, filepath.Join(root, "tmp", "export.zip"), 64)
	testsupport.WriteFile(t, filepath.Join(root, "index.csv"), 32)
	return root
}

func TestDiscoverPatientFolders(t *testing.T) {
	root := seedProject(t)
	folders, err := DiscoverPatientFolders(root)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(folders) != 3 {
		t.Fatalf("folders = %v, want 3 patient dirs", folders)
	}
	if filepath.Base(folders[0]) != "bianchi_anna" {
		t.Errorf("folders not sorted: %v", folders)
	}
}

func TestAnalyzeProjectParallelMatchesSequential(t *testing.T) {
	root := seedProject(t)
	ctx := context.Background()

	snapshot := func(svc *Service) map[string]map[string][2]string {
		proj, err := svc.AnalyzeProject(ctx, root, false)
		if err != nil {
			t.Fatalf("AnalyzeProject: %v", err)
		}
		out := map[string]map[string][2]string{}
		for _, p := range proj.Patients {
			files := map[string][2]string{}
			for _, f := range p.AllFiles() {
				files[f.Path] = [2]string{string(f.Type), string(f.Status)}
			}
			out[p.ID] = files
		}
		return out
	}

	sequential := snapshot(newTestService(t, testsupport.WithWorkers(1)))
	parallel := snapshot(newTestService(t, testsupport.WithWorkers(4)))
	if !reflect.DeepEqual(sequential, parallel) {
		t.Errorf("worker count changed results:\nseq: %v\npar: %v", sequential, parallel)
	}
}

func TestAnalyzeProjectOrderIsStable(t *testing.T) {
	root := seedProject(t)
	svc := newTestService(t, testsupport.WithWorkers(4))

	proj, err := svc.AnalyzeProject(context.Background(), root, false)
	if err != nil {
		t.Fatalf("AnalyzeProject: %v", err)
	}
	var ids []string
	for _, p := range proj.Patients {
		ids = append(ids, p.ID)
	}
	want := []string{"bianchi_anna", "rossi_mario", "verdi_luca"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("patient order = %v, want %v", ids, want)
	}
}

func TestAnalyzeProjectHonorsCancellation(t *testing.T) {
	root := seedProject(t)
	svc := newTestService(t, testsupport.WithWorkers(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	proj, err := svc.AnalyzeProject(ctx, root, false)
	if err != nil {
		t.Fatalf("AnalyzeProject: %v", err)
	}
	if len(proj.GlobalErrors) == 0 {
		t.Error("cancelled analysis should report interruption")
	}
}

func TestAnalyzePatientUsesCacheOnSecondRun(t *testing.T) {
	root := seedProject(t)
	svc := newTestService(t)
	ctx := context.Background()
	folder := filepath.Join(root, "rossi_mario")

	first := svc.AnalyzePatient(ctx, folder, true)
	if first.Teleradiography == nil {
		t.Fatal("precondition: tele.jpg should classify by keyword")
	}

	// Manual change, persisted. The second run must serve it from cache.
	if _, err := svc.Reassign(ctx, folder, filepath.Join(folder, "tele.jpg"), patient.Orthopantomography); err != nil {
		t.Fatalf("Reassign: %v", err)
	}
	second := svc.AnalyzePatient(ctx, folder, true)
	if second.Orthopantomography == nil || second.Orthopantomography.Status != patient.StatusManual {
		t.Errorf("cached manual assignment not served: %+v", second.Orthopantomography)
	}
	if second.Teleradiography != nil {
		t.Errorf("old slot should be empty after manual move: %+v", second.Teleradiography)
	}
}

func TestSetManuallyComplete(t *testing.T) {
	root := seedProject(t)
	svc := newTestService(t)
	ctx := context.Background()
	folder := filepath.Join(root, "verdi_luca")

	p, err := svc.SetManuallyComplete(ctx, folder, true, "records on paper")
	if err != nil {
		t.Fatalf("SetManuallyComplete: %v", err)
	}
	if !p.IsComplete() {
		t.Error("manual completion should win over missing slots")
	}
	again := svc.AnalyzePatient(ctx, folder, true)
	if !again.ManuallyComplete || again.ManualCompletionNote != "records on paper" {
		t.Errorf("manual completion not durable: %+v", again)
	}
}
