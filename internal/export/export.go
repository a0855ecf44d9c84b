// Package export builds the ordered file list the upload collaborator
// consumes: one (file, slot) pair per syncable file, exclusions filtered,
// derived artifacts preferred over raw sources.
package export

import (
	"os"

	"dentarch/internal/patient"
)

// Slot names as they appear in the archive's upload contract.
const (
	SlotCBCT               = "cbct"
	SlotIOSUpper           = "ios_upper"
	SlotIOSLower           = "ios_lower"
	SlotTeleradiography    = "teleradiography"
	SlotOrthopantomography = "orthopantomography"
	SlotIntraoral          = "intraoral_photo"
)

// Item is one file to sync, tagged with its semantic slot.
type Item struct {
	File *patient.File
	Slot string
}

// Plan is the full sync contract for one patient.
type Plan struct {
	PatientID   string
	DisplayName string
	Items       []Item
}

// BuildPlan assembles the sync plan in canonical slot order. Files flagged
// excluded are filtered out. When a completed NIfTI conversion exists on
// disk it replaces the raw DICOM series for the CBCT slot.
func BuildPlan(p *patient.Patient) *Plan {
	plan := &Plan{
		PatientID:   p.ID,
		DisplayName: DisplayName(p.ID),
	}

	if nifti := niftiArtifact(p); nifti != nil {
		plan.Items = append(plan.Items, Item{File: nifti, Slot: SlotCBCT})
	} else {
		for _, f := range p.CBCTFiles {
			if f.Excluded {
				continue
			}
			plan.Items = append(plan.Items, Item{File: f, Slot: SlotCBCT})
		}
	}

	for _, slot := range []struct {
		file *patient.File
		name string
	}{
		{p.IOSUpper, SlotIOSUpper},
		{p.IOSLower, SlotIOSLower},
		{p.Teleradiography, SlotTeleradiography},
		{p.Orthopantomography, SlotOrthopantomography},
	} {
		if slot.file == nil || slot.file.Excluded {
			continue
		}
		plan.Items = append(plan.Items, Item{File: slot.file, Slot: slot.name})
	}

	for _, f := range p.IntraoralPhotos {
		if f.Excluded {
			continue
		}
		plan.Items = append(plan.Items, Item{File: f, Slot: SlotIntraoral})
	}
	return plan
}

func niftiArtifact(p *patient.Patient) *patient.File {
	if p.NiftiPath == "" || p.NiftiStatus != patient.ConversionCompleted {
		return nil
	}
	if _, err := os.Stat(p.NiftiPath); err != nil {
		return nil
	}
	f := patient.NewFile(p.NiftiPath)
	f.Type = patient.CBCTDicom
	f.Status = patient.StatusMatched
	f.Confidence = 1.0
	f.SetMeta("derived", "nifti")
	return f
}
