// Package config loads and validates the dentarch configuration. Values come
// from a TOML file layered over built-in defaults; pattern tables and
// heuristic knobs are plain fields so the classifier receives an explicit
// struct rather than reading globals.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	LogDir string `toml:"log_dir"`
}

// Patterns contains the case-insensitive folder and filename pattern tables
// used by the classifier. Entries are regular expressions matched as
// substrings of the lowercased name.
type Patterns struct {
	CBCTFolders        []string `toml:"cbct_folders"`
	IOSFolders         []string `toml:"ios_folders"`
	Upper              []string `toml:"upper"`
	Lower              []string `toml:"lower"`
	Teleradiography    []string `toml:"teleradiography"`
	Orthopantomography []string `toml:"orthopantomography"`
}

// Classifier contains classification tunables.
type Classifier struct {
	ImageExtensions []string `toml:"image_extensions"`
	// GridSamples is the approximate per-axis sample count for pixel analysis.
	GridSamples int `toml:"grid_samples"`
}

// Cache contains matching-cache configuration.
type Cache struct {
	// Mode selects "distributed" (sidecar file per patient folder, default)
	// or "centralized" (single SQLite store, legacy).
	Mode            string `toml:"mode"`
	MaxAgeDays      int    `toml:"max_age_days"`
	SidecarName     string `toml:"sidecar_name"`
	CentralizedPath string `toml:"centralized_path"`
}

// Archive contains remote archive connection settings.
type Archive struct {
	BaseURL        string `toml:"base_url"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	ProjectSlug    string `toml:"project_slug"`
	UploadTimeout  int    `toml:"upload_timeout"`
	RetryAttempts  int    `toml:"retry_attempts"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Convert contains DICOM-to-NIfTI conversion settings.
type Convert struct {
	Binary  string `toml:"binary"`
	Timeout int    `toml:"timeout"`
}

// Scan contains project scanning settings.
type Scan struct {
	Workers int `toml:"workers"`
}

// Logging contains log output configuration.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for dentarch.
type Config struct {
	Paths      Paths      `toml:"paths"`
	Patterns   Patterns   `toml:"patterns"`
	Classifier Classifier `toml:"classifier"`
	Cache      Cache      `toml:"cache"`
	Archive    Archive    `toml:"archive"`
	Convert    Convert    `toml:"convert"`
	Scan       Scan       `toml:"scan"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/dentarch/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The bool reports
// whether a file was found; absence is not an error.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("dentarch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	for _, field := range []*string{&c.Paths.LogDir, &c.Cache.CentralizedPath} {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	c.Cache.Mode = strings.ToLower(strings.TrimSpace(c.Cache.Mode))
	c.Archive.BaseURL = strings.TrimRight(strings.TrimSpace(c.Archive.BaseURL), "/")
	for i, ext := range c.Classifier.ImageExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Classifier.ImageExtensions[i] = ext
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
