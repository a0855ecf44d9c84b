// Package matchcache persists classification results keyed by a folder
// fingerprint. Two backends exist: a JSON sidecar written into each patient
// folder (default, survives folder relocation) and a centralized SQLite
// store keyed by absolute path (legacy).
package matchcache

import (
	"path/filepath"
	"strings"
	"time"

	"dentarch/internal/patient"
)

// SchemaVersion is written into every new snapshot. Loaders default-fill
// fields absent from older versions instead of failing.
const SchemaVersion = "1.1"

// Structural slot names recorded per file. Files are restored into the slot
// they actually occupied, not the slot their data type suggests, so a
// displaced singleton occupant survives a cache round-trip in the unmatched
// pool instead of fighting for its old slot again.
const (
	SlotCBCT               = "cbct_files"
	SlotIOSUpper           = "ios_upper"
	SlotIOSLower           = "ios_lower"
	SlotIntraoral          = "intraoral_photos"
	SlotTeleradiography    = "teleradiography"
	SlotOrthopantomography = "orthopantomography"
	SlotUnmatched          = "unmatched"
)

// FileEntry is the serialized classification state of one file.
type FileEntry struct {
	DataType   string            `json:"data_type,omitempty"`
	Confidence float64           `json:"confidence"`
	Status     string            `json:"status"`
	Excluded   bool              `json:"excluded,omitempty"`
	Slot       string            `json:"slot,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Snapshot is one cached patient record.
type Snapshot struct {
	Version    string    `json:"version"`
	PatientID  string    `json:"patient_id"`
	FolderPath string    `json:"folder_path"`
	FolderHash string    `json:"folder_hash"`
	Timestamp  time.Time `json:"timestamp"`

	MatchedFiles   map[string]FileEntry `json:"matched_files"`
	UnmatchedFiles []string             `json:"unmatched_files"`

	// ManualAssignments duplicates the MANUAL subset of MatchedFiles for
	// quick inspection of the sidecar by hand.
	ManualAssignments map[string]string `json:"manual_assignments,omitempty"`

	ManuallyComplete bool   `json:"manually_complete,omitempty"`
	CompletionNote   string `json:"completion_note,omitempty"`

	NiftiPath   string `json:"nifti_path,omitempty"`
	NiftiStatus string `json:"nifti_status,omitempty"`
	ZipPath     string `json:"zip_path,omitempty"`

	Uploaded        bool              `json:"uploaded,omitempty"`
	UploadID        string            `json:"upload_id,omitempty"`
	RemotePatientID int               `json:"remote_patient_id,omitempty"`
	UploadedAt      *time.Time        `json:"uploaded_at,omitempty"`
	UploadedHashes  map[string]string `json:"uploaded_hashes,omitempty"`
}

// FromPatient serializes an aggregate into a snapshot. Every file is
// recorded in MatchedFiles with its structural slot; UnmatchedFiles lists
// the unmatched pool's paths as older readers expect.
func FromPatient(p *patient.Patient, folderHash string) *Snapshot {
	snap := &Snapshot{
		Version:           SchemaVersion,
		PatientID:         p.ID,
		FolderPath:        p.FolderPath,
		FolderHash:        folderHash,
		Timestamp:         time.Now().UTC(),
		MatchedFiles:      map[string]FileEntry{},
		ManualAssignments: map[string]string{},
		ManuallyComplete:  p.ManuallyComplete,
		CompletionNote:    p.ManualCompletionNote,
		NiftiPath:         p.NiftiPath,
		NiftiStatus:       string(p.NiftiStatus),
		ZipPath:           p.ZipPath,
	}

	add := func(f *patient.File, slot string) {
		entry := FileEntry{
			DataType:   string(f.Type),
			Confidence: f.Confidence,
			Status:     string(f.Status),
			Excluded:   f.Excluded,
			Slot:       slot,
		}
		if len(f.Metadata) > 0 {
			entry.Metadata = make(map[string]string, len(f.Metadata))
			for k, v := range f.Metadata {
				entry.Metadata[k] = v
			}
		}
		snap.MatchedFiles[f.Path] = entry
		if f.Status == patient.StatusManual && f.Type != "" {
			snap.ManualAssignments[f.Path] = string(f.Type)
		}
	}

	for _, f := range p.CBCTFiles {
		add(f, SlotCBCT)
	}
	if p.IOSUpper != nil {
		add(p.IOSUpper, SlotIOSUpper)
	}
	if p.IOSLower != nil {
		add(p.IOSLower, SlotIOSLower)
	}
	for _, f := range p.IntraoralPhotos {
		add(f, SlotIntraoral)
	}
	if p.Teleradiography != nil {
		add(p.Teleradiography, SlotTeleradiography)
	}
	if p.Orthopantomography != nil {
		add(p.Orthopantomography, SlotOrthopantomography)
	}
	for _, f := range p.Unmatched {
		add(f, SlotUnmatched)
		snap.UnmatchedFiles = append(snap.UnmatchedFiles, f.Path)
	}
	return snap
}

// normalize default-fills fields missing from older schema versions and
// maps the legacy "exclude" pseudo-type onto the excluded flag.
func (s *Snapshot) normalize() {
	if s.Version == "" {
		s.Version = "1.0"
	}
	if s.MatchedFiles == nil {
		s.MatchedFiles = map[string]FileEntry{}
	}
	for path, entry := range s.MatchedFiles {
		if entry.DataType == "exclude" {
			// Pre-1.1 sync exemption encoded as a data type. The structural
			// slot is unrecoverable for those entries, so they surface as
			// excluded unmatched files for the operator to re-place.
			entry.DataType = ""
			entry.Excluded = true
			if entry.Slot == "" {
				entry.Slot = SlotUnmatched
			}
		}
		if entry.Slot == "" {
			entry.Slot = slotForDataType(entry.DataType)
		}
		if entry.Status == "" {
			entry.Status = string(patient.StatusMatched)
		}
		s.MatchedFiles[path] = entry
	}
	for _, path := range s.UnmatchedFiles {
		if _, ok := s.MatchedFiles[path]; !ok {
			s.MatchedFiles[path] = FileEntry{
				Status: string(patient.StatusUnmatched),
				Slot:   SlotUnmatched,
			}
		}
	}
}

// rebase rewrites absolute paths after a folder relocation. The sidecar
// travels with its folder, so a snapshot loaded from a different location
// than it was saved at just needs its prefix swapped.
func (s *Snapshot) rebase(folderPath string) {
	cleaned := filepath.Clean(folderPath)
	if s.FolderPath == cleaned {
		return
	}
	old := s.FolderPath
	rebaseOne := func(path string) string {
		rel, err := filepath.Rel(old, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
			return path
		}
		return filepath.Join(cleaned, rel)
	}

	rebased := make(map[string]FileEntry, len(s.MatchedFiles))
	for path, entry := range s.MatchedFiles {
		rebased[rebaseOne(path)] = entry
	}
	s.MatchedFiles = rebased
	for i, path := range s.UnmatchedFiles {
		s.UnmatchedFiles[i] = rebaseOne(path)
	}
	if len(s.ManualAssignments) > 0 {
		manual := make(map[string]string, len(s.ManualAssignments))
		for path, dt := range s.ManualAssignments {
			manual[rebaseOne(path)] = dt
		}
		s.ManualAssignments = manual
	}
	if s.NiftiPath != "" {
		s.NiftiPath = rebaseOne(s.NiftiPath)
	}
	if s.ZipPath != "" {
		s.ZipPath = rebaseOne(s.ZipPath)
	}
	s.FolderPath = cleaned
}

func slotForDataType(dataType string) string {
	switch patient.DataType(dataType) {
	case patient.CBCTDicom:
		return SlotCBCT
	case patient.IOSUpper:
		return SlotIOSUpper
	case patient.IOSLower:
		return SlotIOSLower
	case patient.IntraoralPhoto:
		return SlotIntraoral
	case patient.Teleradiography:
		return SlotTeleradiography
	case patient.Orthopantomography:
		return SlotOrthopantomography
	default:
		return SlotUnmatched
	}
}
