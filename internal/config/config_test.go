package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Cache.Mode != "distributed" {
		t.Errorf("default cache mode = %q", cfg.Cache.Mode)
	}
	if cfg.Cache.MaxAgeDays != 30 {
		t.Errorf("default max age = %d", cfg.Cache.MaxAgeDays)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.toml")
	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Error("missing file should report exists=false")
	}
	if resolved == "" {
		t.Error("resolved path should not be empty")
	}
	if cfg.Scan.Workers != 4 {
		t.Errorf("defaults not applied, workers = %d", cfg.Scan.Workers)
	}
}

func TestLoadOverridesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[cache]
mode = "Centralized"
max_age_days = 7
centralized_path = "` + filepath.Join(dir, "store.db") + `"

[classifier]
image_extensions = ["JPG", ".png"]

[archive]
base_url = "https://archive.example.com/"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("file should have been found")
	}
	if cfg.Cache.Mode != "centralized" {
		t.Errorf("mode should be lowercased, got %q", cfg.Cache.Mode)
	}
	if cfg.Cache.MaxAgeDays != 7 {
		t.Errorf("max_age_days = %d", cfg.Cache.MaxAgeDays)
	}
	if got := cfg.Classifier.ImageExtensions[0]; got != ".jpg" {
		t.Errorf("extension should be normalized, got %q", got)
	}
	if strings.HasSuffix(cfg.Archive.BaseURL, "/") {
		t.Errorf("base url should have trailing slash trimmed: %q", cfg.Archive.BaseURL)
	}
	// Pattern tables keep their defaults when not overridden.
	if len(cfg.Patterns.Upper) == 0 {
		t.Error("pattern defaults lost on load")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad cache mode", func(c *Config) { c.Cache.Mode = "sideways" }},
		{"zero workers", func(c *Config) { c.Scan.Workers = 0 }},
		{"zero max age", func(c *Config) { c.Cache.MaxAgeDays = 0 }},
		{"empty patterns", func(c *Config) { c.Patterns.Upper = nil }},
		{"invalid regex", func(c *Config) { c.Patterns.Lower = []string{"("} }},
		{"no image extensions", func(c *Config) { c.Classifier.ImageExtensions = nil }},
	}
	for _, tc := range cases {
		cfg := Default()
		if err := cfg.normalize(); err != nil {
			t.Fatalf("%s: normalize failed: %v", tc.name, err)
		}
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestCreateSampleParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	if _, _, exists, err := Load(path); err != nil || !exists {
		t.Fatalf("sample config should load cleanly: exists=%v err=%v", exists, err)
	}
}
