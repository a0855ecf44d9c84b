package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dentarch/internal/testsupport"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf("[paths]\nlog_dir = %q\n\n[logging]\nformat = \"json\"\n", filepath.Join(dir, "logs"))
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInitWritesSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCommand(t, "--config", path, "config", "init")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("output does not name the file: %q", out)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("sample config not written: %v", err)
	}

	if _, err := runCommand(t, "--config", path, "config", "init"); err == nil {
		t.Error("second init without --force should fail")
	}
	if _, err := runCommand(t, "--config", path, "config", "init", "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}
}

func TestConfigValidateAcceptsSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if _, err := runCommand(t, "--config", path, "config", "init"); err != nil {
		t.Fatal(err)
	}
	out, err := runCommand(t, "--config", path, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "valid") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestAnalyzeCommandJSON(t *testing.T) {
	configPath := writeTestConfig(t)
	folder := t.TempDir()
	testsupport.WriteDICOM(t, filepath.Join(folder, "cbct", "slice.dcm"))
	testsupport.WriteFile(t, filepath.Join(folder, "tele_rossi.jpg"), 64)

	out, err := runCommand(t, "--config", configPath, "--json", "analyze", folder)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	var view patientView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if view.ID != filepath.Base(folder) {
		t.Errorf("patient id = %q", view.ID)
	}
	if len(view.Files) != 2 {
		t.Errorf("files = %d, want 2", len(view.Files))
	}
	if view.Complete {
		t.Error("patient with two files should not be complete")
	}
}

func TestReassignCommandRejectsUnknownType(t *testing.T) {
	configPath := writeTestConfig(t)
	folder := t.TempDir()

	_, err := runCommand(t, "--config", configPath, "reassign", folder, "x.jpg", "nonsense")
	if err == nil || !strings.Contains(err.Error(), "unknown data type") {
		t.Fatalf("want unknown data type error, got %v", err)
	}
}
