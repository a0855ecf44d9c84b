// Package reconcile merges cached classification decisions onto the current
// contents of a patient folder, and hosts the manual mutation operations
// (reassignment, exclusion, missing-file removal). Files are moved between
// slots but never dropped.
package reconcile

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"dentarch/internal/classify"
	"dentarch/internal/logging"
	"dentarch/internal/matchcache"
	"dentarch/internal/patient"
	"dentarch/internal/services"
)

// Reconciler applies snapshots and manual operations to patient aggregates.
type Reconciler struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Reconciler {
	return &Reconciler{logger: logging.NewComponentLogger(logger, "reconciler")}
}

// Apply performs the three-way reconciliation between the files currently
// on disk and a cached snapshot:
//
//   - a file recorded in the snapshot is restored into the structural slot
//     it occupied at save time, with its type, status, and metadata;
//   - a file the snapshot lists as unmatched stays unmatched, even if the
//     heuristics would classify it today;
//   - a file on disk the snapshot has never seen becomes unmatched, never
//     silently classified.
//
// Cached entries whose file no longer exists are skipped. An entry carrying
// a data type this version does not know falls back to unmatched on its own
// without invalidating the rest of the snapshot.
func (r *Reconciler) Apply(inv *classify.Inventory, snap *matchcache.Snapshot) *patient.Patient {
	p := patient.New(inv.FolderPath)
	p.CBCTFolder = inv.CBCTFolder
	p.IOSFolder = inv.IOSFolder
	p.ValidationErrors = append(p.ValidationErrors, inv.Errors...)

	if snap.PatientID != "" {
		p.ID = snap.PatientID
	}
	p.ManuallyComplete = snap.ManuallyComplete
	p.ManualCompletionNote = snap.CompletionNote
	if snap.NiftiPath != "" {
		p.NiftiPath = snap.NiftiPath
	}
	if snap.NiftiStatus != "" {
		p.NiftiStatus = patient.ConversionStatus(snap.NiftiStatus)
	}
	p.ZipPath = snap.ZipPath

	for _, path := range inv.AllFiles() {
		entry, cached := snap.MatchedFiles[filepath.Clean(path)]
		if !cached {
			p.Unmatched = append(p.Unmatched, patient.NewFile(path))
			continue
		}
		r.restore(p, path, entry)
	}
	return p
}

func (r *Reconciler) restore(p *patient.Patient, path string, entry matchcache.FileEntry) {
	f := patient.NewFile(path)
	f.Confidence = entry.Confidence
	f.Excluded = entry.Excluded
	for k, v := range entry.Metadata {
		f.SetMeta(k, v)
	}

	if entry.DataType != "" {
		dataType, err := patient.ParseDataType(entry.DataType)
		if err != nil {
			r.logger.Warn("cached data type unknown, file falls back to unmatched",
				logging.Args(logging.String("file", path), logging.String("data_type", entry.DataType))...)
			p.Unmatched = append(p.Unmatched, f)
			return
		}
		f.Type = dataType
	}
	f.Status = patient.ParseMatchStatus(entry.Status)
	if f.Type == "" && f.Status == patient.StatusMatched {
		f.Status = patient.StatusUnmatched
	}

	switch entry.Slot {
	case matchcache.SlotCBCT:
		p.CBCTFiles = append(p.CBCTFiles, f)
	case matchcache.SlotIntraoral:
		p.IntraoralPhotos = append(p.IntraoralPhotos, f)
	case matchcache.SlotIOSUpper:
		r.restoreSingleton(p, &p.IOSUpper, f)
	case matchcache.SlotIOSLower:
		r.restoreSingleton(p, &p.IOSLower, f)
	case matchcache.SlotTeleradiography:
		r.restoreSingleton(p, &p.Teleradiography, f)
	case matchcache.SlotOrthopantomography:
		r.restoreSingleton(p, &p.Orthopantomography, f)
	default:
		p.Unmatched = append(p.Unmatched, f)
	}
}

// restoreSingleton defends against a malformed snapshot claiming one slot
// for two files. The duplicate goes to unmatched.
func (r *Reconciler) restoreSingleton(p *patient.Patient, slot **patient.File, f *patient.File) {
	if *slot != nil {
		r.logger.Warn("snapshot assigns two files to one slot",
			logging.Args(logging.String("kept", (*slot).Path), logging.String("demoted", f.Path))...)
		p.Unmatched = append(p.Unmatched, f)
		return
	}
	*slot = f
}

// Reassign moves a file into a new slot as a manual override: status MANUAL,
// confidence 1.0. A singleton occupant of the target slot is displaced into
// unmatched. Callers must persist the cache immediately afterwards.
func (r *Reconciler) Reassign(p *patient.Patient, filePath string, newType patient.DataType) error {
	f := p.FindFile(filePath)
	if f == nil {
		return services.Wrap(services.ErrNotFound, "reconciler", "reassign", "file not part of patient", nil)
	}
	if _, err := os.Stat(f.Path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrNotFound, "reconciler", "reassign", "file no longer exists on disk", nil)
		}
		return services.Wrap(services.ErrTransient, "reconciler", "reassign", "stat file", err)
	}

	p.Detach(f)
	f.Type = newType
	f.Status = patient.StatusManual
	f.Confidence = 1.0
	p.Route(f)

	r.logger.Info("file reassigned",
		logging.Args(
			logging.String("patient", p.ID),
			logging.String("file", f.Filename()),
			logging.String("data_type", string(newType)),
		)...)
	return nil
}

// SetExcluded flips the sync-exemption flag. The file keeps its slot.
func (r *Reconciler) SetExcluded(p *patient.Patient, filePath string, excluded bool) error {
	f := p.FindFile(filePath)
	if f == nil {
		return services.Wrap(services.ErrNotFound, "reconciler", "exclude", "file not part of patient", nil)
	}
	f.Excluded = excluded
	return nil
}

// RemoveMissing drops every record whose file is gone from disk and returns
// the removed paths. This is the only sanctioned way a file leaves the
// aggregate.
func (r *Reconciler) RemoveMissing(p *patient.Patient) []string {
	var removed []string
	for _, f := range p.AllFiles() {
		if _, err := os.Stat(f.Path); errors.Is(err, fs.ErrNotExist) {
			p.Detach(f)
			removed = append(removed, f.Path)
		}
	}
	if len(removed) > 0 {
		r.logger.Info("missing files removed",
			logging.Args(logging.String("patient", p.ID), logging.Int("count", len(removed)))...)
	}
	return removed
}
