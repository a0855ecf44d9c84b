// Package convert drives the external dcm2niix binary to turn a patient's
// CBCT DICOM series into a single compressed NIfTI volume under the
// project-reserved tmp folder.
package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"dentarch/internal/config"
	"dentarch/internal/logging"
	"dentarch/internal/patient"
	"dentarch/internal/services"
)

// Converter runs DICOM-to-NIfTI conversions with a per-run timeout.
type Converter struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

func New(cfg *config.Config, logger *slog.Logger) *Converter {
	return &Converter{
		binary:  cfg.Convert.Binary,
		timeout: time.Duration(cfg.Convert.Timeout) * time.Second,
		logger:  logging.NewComponentLogger(logger, "converter"),
	}
}

// Convert produces <folder>/tmp/<patientID>.nii.gz and records the outcome
// on the aggregate. An artifact already on disk is reused without invoking
// the tool. Failures are recoverable: the patient's classification state is
// untouched, only the conversion status changes.
func (c *Converter) Convert(ctx context.Context, p *patient.Patient) (string, error) {
	source := c.sourceFolder(p)
	if source == "" {
		return "", services.Wrap(services.ErrValidation, "converter", "convert", "patient has no CBCT data", nil)
	}

	outDir := filepath.Join(p.FolderPath, "tmp")
	outPath := filepath.Join(outDir, p.ID+".nii.gz")
	if _, err := os.Stat(outPath); err == nil {
		c.logger.Info("conversion artifact already present",
			logging.Args(logging.String("patient", p.ID), logging.String("path", outPath))...)
		p.NiftiPath = outPath
		p.NiftiStatus = patient.ConversionCompleted
		return outPath, nil
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, "converter", "convert", "create tmp folder", err)
	}

	p.NiftiStatus = patient.ConversionConverting
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(runCtx, c.binary, "-z", "y", "-f", p.ID, "-o", outDir, source)
	output, err := cmd.CombinedOutput()
	if err != nil {
		p.NiftiStatus = patient.ConversionFailed
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return "", services.Wrap(services.ErrTimeout, "converter", "convert",
				fmt.Sprintf("conversion exceeded %s", c.timeout), nil)
		}
		return "", services.Wrap(services.ErrExternalTool, "converter", "convert", tail(output), err)
	}
	if _, err := os.Stat(outPath); err != nil {
		p.NiftiStatus = patient.ConversionFailed
		return "", services.Wrap(services.ErrExternalTool, "converter", "convert", "tool reported success but produced no output", err)
	}

	p.NiftiPath = outPath
	p.NiftiStatus = patient.ConversionCompleted
	if p.NiftiInfo == nil {
		p.NiftiInfo = map[string]string{}
	}
	p.NiftiInfo["duration"] = time.Since(start).Round(time.Millisecond).String()
	p.NiftiInfo["source"] = source

	c.logger.Info("conversion completed",
		logging.Args(
			logging.String("patient", p.ID),
			logging.String("path", outPath),
			logging.Duration("duration", time.Since(start)),
		)...)
	return outPath, nil
}

func (c *Converter) sourceFolder(p *patient.Patient) string {
	if p.CBCTFolder != "" {
		return p.CBCTFolder
	}
	if len(p.CBCTFiles) > 0 {
		return filepath.Dir(p.CBCTFiles[0].Path)
	}
	return ""
}

// tail keeps the last lines of tool output for error messages.
func tail(output []byte) string {
	text := strings.TrimSpace(string(output))
	if text == "" {
		return "conversion tool failed"
	}
	lines := strings.Split(text, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, " | ")
}
