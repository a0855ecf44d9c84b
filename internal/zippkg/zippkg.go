// Package zippkg bundles a patient's syncable files into a single zip
// archive under the tmp folder, grouped by semantic slot.
package zippkg

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"dentarch/internal/export"
	"dentarch/internal/logging"
	"dentarch/internal/patient"
	"dentarch/internal/services"
)

// Packager writes patient data archives.
type Packager struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Packager {
	return &Packager{logger: logging.NewComponentLogger(logger, "packager")}
}

// Package writes <folder>/tmp/<patientID>_data.zip containing every
// syncable file from the patient's sync plan, one directory per slot. The
// archive is written to a temp file and renamed into place so a partial
// write never looks like a finished package. Cancellation is honored
// between files.
func (z *Packager) Package(ctx context.Context, p *patient.Patient) (string, error) {
	plan := export.BuildPlan(p)
	if len(plan.Items) == 0 {
		return "", services.Wrap(services.ErrValidation, "packager", "package", "patient has no syncable files", nil)
	}

	outDir := filepath.Join(p.FolderPath, "tmp")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, "packager", "package", "create tmp folder", err)
	}
	outPath := filepath.Join(outDir, p.ID+"_data.zip")

	tmp, err := os.CreateTemp(outDir, ".package-*.zip")
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "packager", "package", "create temp archive", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	start := time.Now()
	writer := zip.NewWriter(tmp)
	seen := map[string]int{}
	for _, item := range plan.Items {
		if err := ctx.Err(); err != nil {
			cleanup()
			return "", services.Wrap(services.ErrTransient, "packager", "package", "cancelled", err)
		}
		entryName := archiveName(seen, item.Slot, item.File.Filename())
		if err := addFile(writer, entryName, item.File.Path); err != nil {
			cleanup()
			return "", services.Wrap(services.ErrTransient, "packager", "package", "add "+entryName, err)
		}
	}
	if err := writer.Close(); err != nil {
		cleanup()
		return "", services.Wrap(services.ErrTransient, "packager", "package", "finalize archive", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", services.Wrap(services.ErrTransient, "packager", "package", "close temp archive", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", services.Wrap(services.ErrTransient, "packager", "package", "replace archive", err)
	}

	p.ZipPath = outPath
	if p.ZipInfo == nil {
		p.ZipInfo = map[string]string{}
	}
	p.ZipInfo["files"] = strconv.Itoa(len(plan.Items))
	if info, err := os.Stat(outPath); err == nil {
		p.ZipInfo["size_bytes"] = strconv.FormatInt(info.Size(), 10)
	}

	z.logger.Info("patient package written",
		logging.Args(
			logging.String("patient", p.ID),
			logging.String("path", outPath),
			logging.Int("files", len(plan.Items)),
			logging.Duration("duration", time.Since(start)),
		)...)
	return outPath, nil
}

// archiveName keys entries by slot directory and disambiguates duplicate
// basenames, which happen with exported DICOM series.
func archiveName(seen map[string]int, slot, filename string) string {
	name := path.Join(slot, filename)
	count := seen[name]
	seen[name] = count + 1
	if count == 0 {
		return name
	}
	ext := path.Ext(filename)
	base := filename[:len(filename)-len(ext)]
	return path.Join(slot, fmt.Sprintf("%s_%d%s", base, count, ext))
}

func addFile(writer *zip.Writer, entryName, sourcePath string) error {
	source, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer source.Close()

	entry, err := writer.Create(entryName)
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, source)
	return err
}
