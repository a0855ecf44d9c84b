// Package patient defines the classified-file record and the per-patient
// and per-project aggregates produced by classification.
package patient

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DataType identifies the semantic slot a classified file belongs to.
type DataType string

const (
	CBCTDicom          DataType = "cbct_dicom"
	IOSUpper           DataType = "ios_upper"
	IOSLower           DataType = "ios_lower"
	IntraoralPhoto     DataType = "intraoral_photo"
	Teleradiography    DataType = "teleradiography"
	Orthopantomography DataType = "orthopantomography"
)

// ParseDataType validates a serialized data type value.
func ParseDataType(value string) (DataType, error) {
	switch DataType(strings.TrimSpace(value)) {
	case CBCTDicom:
		return CBCTDicom, nil
	case IOSUpper:
		return IOSUpper, nil
	case IOSLower:
		return IOSLower, nil
	case IntraoralPhoto:
		return IntraoralPhoto, nil
	case Teleradiography:
		return Teleradiography, nil
	case Orthopantomography:
		return Orthopantomography, nil
	default:
		return "", fmt.Errorf("unknown data type %q", value)
	}
}

// MatchStatus tracks the lifecycle of a file's classification.
type MatchStatus string

const (
	StatusUnmatched MatchStatus = "unmatched"
	StatusMatched   MatchStatus = "matched"
	StatusAmbiguous MatchStatus = "ambiguous"
	StatusManual    MatchStatus = "manual"
	StatusMissing   MatchStatus = "missing"
)

// ParseMatchStatus validates a serialized status value. Unknown values fall
// back to matched for compatibility with older cache files.
func ParseMatchStatus(value string) MatchStatus {
	switch MatchStatus(strings.TrimSpace(value)) {
	case StatusUnmatched, StatusMatched, StatusAmbiguous, StatusManual, StatusMissing:
		return MatchStatus(strings.TrimSpace(value))
	default:
		return StatusMatched
	}
}

// File is a single file within a patient folder. Identity is the cleaned
// absolute path. Confidence is advisory only; it never resolves conflicts.
// Excluded flags the file out of every sync and export list while keeping
// its structural slot.
type File struct {
	Path       string
	Type       DataType // empty when no classification exists
	Confidence float64
	Status     MatchStatus
	Excluded   bool
	Metadata   map[string]string
}

// NewFile builds an unmatched file record for the given path.
func NewFile(path string) *File {
	return &File{Path: filepath.Clean(path), Status: StatusUnmatched, Metadata: map[string]string{}}
}

func (f *File) Filename() string { return filepath.Base(f.Path) }

func (f *File) Ext() string { return strings.ToLower(filepath.Ext(f.Path)) }

// SetMeta records a metadata value, allocating the map on first use.
func (f *File) SetMeta(key, value string) {
	if f.Metadata == nil {
		f.Metadata = map[string]string{}
	}
	f.Metadata[key] = value
}

// ConversionStatus tracks the state of the derived NIfTI artifact.
type ConversionStatus string

const (
	ConversionPending    ConversionStatus = "pending"
	ConversionConverting ConversionStatus = "converting"
	ConversionCompleted  ConversionStatus = "completed"
	ConversionFailed     ConversionStatus = "failed"
)

// Patient aggregates every classified file belonging to one patient folder.
//
// Invariant: every file belonging to the patient appears in exactly one of
// the five singleton slots, CBCTFiles, IntraoralPhotos, or Unmatched.
type Patient struct {
	ID         string
	FolderPath string

	CBCTFolder string
	IOSFolder  string

	CBCTFiles          []*File
	IOSUpper           *File
	IOSLower           *File
	IntraoralPhotos    []*File
	Teleradiography    *File
	Orthopantomography *File
	Unmatched          []*File

	ValidationErrors []string

	ManuallyComplete     bool
	ManualCompletionNote string

	NiftiPath   string
	NiftiStatus ConversionStatus
	NiftiInfo   map[string]string

	ZipPath string
	ZipInfo map[string]string
}

// New builds an empty aggregate for a folder. The patient ID defaults to the
// folder basename and may be overridden by the caller.
func New(folderPath string) *Patient {
	cleaned := filepath.Clean(folderPath)
	return &Patient{
		ID:          filepath.Base(cleaned),
		FolderPath:  cleaned,
		NiftiStatus: ConversionPending,
	}
}

// AllFiles returns every file in the aggregate, slot order first, then the
// unmatched pool. The returned slice shares the underlying file records.
func (p *Patient) AllFiles() []*File {
	files := make([]*File, 0, len(p.CBCTFiles)+len(p.IntraoralPhotos)+len(p.Unmatched)+4)
	files = append(files, p.CBCTFiles...)
	for _, f := range []*File{p.IOSUpper, p.IOSLower, p.Teleradiography, p.Orthopantomography} {
		if f != nil {
			files = append(files, f)
		}
	}
	files = append(files, p.IntraoralPhotos...)
	files = append(files, p.Unmatched...)
	return files
}

// FindFile locates a file record by path.
func (p *Patient) FindFile(path string) *File {
	cleaned := filepath.Clean(path)
	for _, f := range p.AllFiles() {
		if f.Path == cleaned {
			return f
		}
	}
	return nil
}

// Detach removes the file from every slot it occupies. It does not change
// the file's classification fields.
func (p *Patient) Detach(target *File) {
	p.CBCTFiles = removeFile(p.CBCTFiles, target)
	p.IntraoralPhotos = removeFile(p.IntraoralPhotos, target)
	p.Unmatched = removeFile(p.Unmatched, target)
	if p.IOSUpper == target {
		p.IOSUpper = nil
	}
	if p.IOSLower == target {
		p.IOSLower = nil
	}
	if p.Teleradiography == target {
		p.Teleradiography = nil
	}
	if p.Orthopantomography == target {
		p.Orthopantomography = nil
	}
}

// Route inserts the file into the slot matching its data type. A singleton
// slot that is already occupied displaces its occupant into the unmatched
// pool; files are never dropped. Files without a type land in unmatched.
func (p *Patient) Route(f *File) {
	switch f.Type {
	case CBCTDicom:
		p.CBCTFiles = append(p.CBCTFiles, f)
	case IntraoralPhoto:
		p.IntraoralPhotos = append(p.IntraoralPhotos, f)
	case IOSUpper:
		p.displaceInto(&p.IOSUpper, f)
	case IOSLower:
		p.displaceInto(&p.IOSLower, f)
	case Teleradiography:
		p.displaceInto(&p.Teleradiography, f)
	case Orthopantomography:
		p.displaceInto(&p.Orthopantomography, f)
	default:
		p.Unmatched = append(p.Unmatched, f)
	}
}

func (p *Patient) displaceInto(slot **File, f *File) {
	if *slot != nil && *slot != f {
		p.Unmatched = append(p.Unmatched, *slot)
	}
	*slot = f
}

// ResetSlots empties every slot while leaving folder discovery and manual
// completion state intact. Used by reconciliation before re-routing.
func (p *Patient) ResetSlots() {
	p.CBCTFiles = nil
	p.IOSUpper = nil
	p.IOSLower = nil
	p.IntraoralPhotos = nil
	p.Teleradiography = nil
	p.Orthopantomography = nil
	p.Unmatched = nil
}

// MissingTypes lists the required data types with no file assigned.
func (p *Patient) MissingTypes() []DataType {
	var missing []DataType
	if len(p.CBCTFiles) == 0 {
		missing = append(missing, CBCTDicom)
	}
	if p.IOSUpper == nil {
		missing = append(missing, IOSUpper)
	}
	if p.IOSLower == nil {
		missing = append(missing, IOSLower)
	}
	if p.Teleradiography == nil {
		missing = append(missing, Teleradiography)
	}
	if p.Orthopantomography == nil {
		missing = append(missing, Orthopantomography)
	}
	return missing
}

var insignificantUnmatched = map[string]struct{}{
	".ds_store":   {},
	"thumbs.db":   {},
	"desktop.ini": {},
}

// IsComplete reports whether every required slot is filled and no
// significant unmatched files remain. A manual completion flag wins.
func (p *Patient) IsComplete() bool {
	if p.ManuallyComplete {
		return true
	}
	if len(p.MissingTypes()) > 0 {
		return false
	}
	for _, f := range p.Unmatched {
		if _, ok := insignificantUnmatched[strings.ToLower(f.Filename())]; !ok {
			return false
		}
	}
	return true
}

func removeFile(files []*File, target *File) []*File {
	for i, f := range files {
		if f == target {
			return append(files[:i], files[i+1:]...)
		}
	}
	return files
}

// Project aggregates every patient under a root folder.
type Project struct {
	RootPath     string
	Patients     []*Patient
	GlobalErrors []string
}

// Incomplete returns patients whose data is not yet complete.
func (pr *Project) Incomplete() []*Patient {
	var out []*Patient
	for _, p := range pr.Patients {
		if !p.IsComplete() {
			out = append(out, p)
		}
	}
	return out
}

// Complete returns patients whose data is complete.
func (pr *Project) Complete() []*Patient {
	var out []*Patient
	for _, p := range pr.Patients {
		if p.IsComplete() {
			out = append(out, p)
		}
	}
	return out
}
