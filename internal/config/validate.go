package config

import (
	"fmt"
	"regexp"
	"strings"
)

// Validate checks configuration consistency. It is called by Load after
// normalization; commands constructing configs by hand should call it too.
func (c *Config) Validate() error {
	switch c.Cache.Mode {
	case "distributed", "centralized":
	default:
		return fmt.Errorf("cache.mode: unsupported value %q (want distributed or centralized)", c.Cache.Mode)
	}
	if c.Cache.MaxAgeDays <= 0 {
		return fmt.Errorf("cache.max_age_days must be positive, got %d", c.Cache.MaxAgeDays)
	}
	if strings.TrimSpace(c.Cache.SidecarName) == "" {
		return fmt.Errorf("cache.sidecar_name must not be empty")
	}
	if c.Cache.Mode == "centralized" && strings.TrimSpace(c.Cache.CentralizedPath) == "" {
		return fmt.Errorf("cache.centralized_path required in centralized mode")
	}
	if c.Scan.Workers <= 0 {
		return fmt.Errorf("scan.workers must be positive, got %d", c.Scan.Workers)
	}
	if c.Convert.Timeout <= 0 {
		return fmt.Errorf("convert.timeout must be positive, got %d", c.Convert.Timeout)
	}
	if c.Archive.UploadTimeout <= 0 {
		return fmt.Errorf("archive.upload_timeout must be positive, got %d", c.Archive.UploadTimeout)
	}
	if c.Classifier.GridSamples <= 0 {
		return fmt.Errorf("classifier.grid_samples must be positive, got %d", c.Classifier.GridSamples)
	}
	if len(c.Classifier.ImageExtensions) == 0 {
		return fmt.Errorf("classifier.image_extensions must not be empty")
	}

	for name, table := range map[string][]string{
		"patterns.cbct_folders":       c.Patterns.CBCTFolders,
		"patterns.ios_folders":        c.Patterns.IOSFolders,
		"patterns.upper":              c.Patterns.Upper,
		"patterns.lower":              c.Patterns.Lower,
		"patterns.teleradiography":    c.Patterns.Teleradiography,
		"patterns.orthopantomography": c.Patterns.Orthopantomography,
	} {
		if len(table) == 0 {
			return fmt.Errorf("%s must not be empty", name)
		}
		for _, pattern := range table {
			if _, err := regexp.Compile("(?i)" + pattern); err != nil {
				return fmt.Errorf("%s: invalid pattern %q: %w", name, pattern, err)
			}
		}
	}
	return nil
}
