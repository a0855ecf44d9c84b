// Package classify turns a patient folder tree into a classified aggregate.
// The structural walk (folder discovery, file inventory) is separated from
// semantic classification so reconciliation can re-derive file existence
// without re-running the heuristics.
package classify

import (
	"log/slog"
	"sort"
	"strings"

	"dentarch/internal/config"
	"dentarch/internal/logging"
	"dentarch/internal/patient"
)

// Confidence scores per strategy. Advisory only; never used to resolve
// conflicts.
const (
	confidenceCBCT         = 0.9
	confidenceIOSSingle    = 0.7
	confidenceIOSKeyword   = 0.8
	confidenceIOSFallback  = 0.3
	confidenceKeyword      = 0.7
	confidenceGrayscale    = 0.6
	confidencePixelColor   = 0.8
	confidenceDefaultPhoto = 0.5
)

// Metadata keys recorded on classified files.
const (
	MetaPixelVerdict  = "pixel_verdict"
	MetaCandidateType = "candidate_type"
)

// Classifier assigns a semantic data type to every file in a patient folder.
type Classifier struct {
	cfg          *config.Config
	pats         *Patterns
	logger       *slog.Logger
	imageExts    map[string]struct{}
	excludeNames []string
}

// New builds a classifier from configuration. The pattern tables are
// compiled once here.
func New(cfg *config.Config, logger *slog.Logger) (*Classifier, error) {
	pats, err := CompilePatterns(cfg.Patterns)
	if err != nil {
		return nil, err
	}
	exts := make(map[string]struct{}, len(cfg.Classifier.ImageExtensions))
	for _, ext := range cfg.Classifier.ImageExtensions {
		exts[strings.ToLower(ext)] = struct{}{}
	}
	return &Classifier{
		cfg:          cfg,
		pats:         pats,
		logger:       logging.NewComponentLogger(logger, "classifier"),
		imageExts:    exts,
		excludeNames: []string{cfg.Cache.SidecarName, cfg.Cache.SidecarName + ".lock"},
	}, nil
}

// Patterns exposes the compiled pattern tables for collaborators that walk
// folders themselves.
func (c *Classifier) Patterns() *Patterns { return c.pats }

// Walk produces the structural inventory for a patient folder, excluding the
// cache sidecar and its lock file.
func (c *Classifier) Walk(folderPath string) (*Inventory, error) {
	return Walk(folderPath, c.pats, c.excludeNames...)
}

// Classify walks and classifies a patient folder. It never returns an error:
// a missing or unreadable folder produces a mostly-empty aggregate with the
// problem recorded in ValidationErrors.
func (c *Classifier) Classify(folderPath string) *patient.Patient {
	inv, err := c.Walk(folderPath)
	if err != nil {
		c.logger.Warn("patient folder unreadable",
			logging.Args(logging.String("folder", folderPath), logging.Error(err))...)
		p := patient.New(folderPath)
		p.ValidationErrors = append(p.ValidationErrors, err.Error())
		return p
	}
	return c.ClassifyInventory(inv)
}

// ClassifyInventory runs the semantic strategies over a structural
// inventory. Every inventoried file lands in exactly one slot.
func (c *Classifier) ClassifyInventory(inv *Inventory) *patient.Patient {
	p := patient.New(inv.FolderPath)
	p.CBCTFolder = inv.CBCTFolder
	p.IOSFolder = inv.IOSFolder
	p.ValidationErrors = append(p.ValidationErrors, inv.Errors...)

	c.classifyCBCT(p, inv.CBCTFiles)
	c.classifyIOS(p, inv.IOSFiles)
	for _, path := range inv.MainFiles {
		c.classifyMainFile(p, path)
	}

	c.logger.Info("classified patient folder",
		logging.Args(
			logging.String("patient", p.ID),
			logging.Int("cbct_files", len(p.CBCTFiles)),
			logging.Int("photos", len(p.IntraoralPhotos)),
			logging.Int("unmatched", len(p.Unmatched)),
		)...)
	return p
}

// classifyCBCT marks every DICOM stream under the CBCT folder. Files that
// are not DICOM stay in the aggregate as unmatched rather than disappearing.
func (c *Classifier) classifyCBCT(p *patient.Patient, paths []string) {
	for _, path := range paths {
		f := patient.NewFile(path)
		if IsDICOM(path) {
			f.Type = patient.CBCTDicom
			f.Confidence = confidenceCBCT
			f.Status = patient.StatusMatched
			p.CBCTFiles = append(p.CBCTFiles, f)
			continue
		}
		p.Unmatched = append(p.Unmatched, f)
	}
}

// classifyIOS applies the scan-mesh disambiguation policy to the files found
// directly in the IOS folder.
func (c *Classifier) classifyIOS(p *patient.Patient, paths []string) {
	var stls []*patient.File
	for _, path := range paths {
		f := patient.NewFile(path)
		if f.Ext() == ".stl" {
			stls = append(stls, f)
			continue
		}
		p.Unmatched = append(p.Unmatched, f)
	}
	sort.Slice(stls, func(i, j int) bool { return stls[i].Filename() < stls[j].Filename() })

	switch len(stls) {
	case 0:
	case 1:
		f := stls[0]
		name := strings.ToLower(f.Filename())
		switch {
		case c.pats.MatchUpper(name):
			c.assignSingleton(p, f, patient.IOSUpper, confidenceIOSSingle)
		case c.pats.MatchLower(name):
			c.assignSingleton(p, f, patient.IOSLower, confidenceIOSSingle)
		default:
			f.Status = patient.StatusAmbiguous
			p.Unmatched = append(p.Unmatched, f)
		}
	default:
		matchedAny := false
		for _, f := range stls {
			name := strings.ToLower(f.Filename())
			if c.pats.MatchUpper(name) || c.pats.MatchLower(name) {
				matchedAny = true
			}
		}
		if !matchedAny && len(stls) == 2 {
			// Alphabetical fallback for an unkeyworded pair. A deliberate
			// low-confidence guess the operator is expected to review.
			stls[0].Type = patient.IOSUpper
			stls[1].Type = patient.IOSLower
			for _, f := range stls {
				f.Confidence = confidenceIOSFallback
				f.Status = patient.StatusMatched
			}
			p.IOSUpper = stls[0]
			p.IOSLower = stls[1]
			return
		}
		for _, f := range stls {
			name := strings.ToLower(f.Filename())
			switch {
			case c.pats.MatchUpper(name):
				c.assignSingleton(p, f, patient.IOSUpper, confidenceIOSKeyword)
			case c.pats.MatchLower(name):
				c.assignSingleton(p, f, patient.IOSLower, confidenceIOSKeyword)
			default:
				p.Unmatched = append(p.Unmatched, f)
			}
		}
	}
}

// classifyMainFile handles one file outside the specialized subfolders.
func (c *Classifier) classifyMainFile(p *patient.Patient, path string) {
	f := patient.NewFile(path)
	if _, ok := c.imageExts[f.Ext()]; !ok {
		p.Unmatched = append(p.Unmatched, f)
		return
	}

	name := strings.ToLower(f.Filename())
	if matchAny(c.pats.teleradiography, name) {
		c.assignSingleton(p, f, patient.Teleradiography, confidenceKeyword)
		return
	}
	if matchAny(c.pats.orthopantomography, name) {
		c.assignSingleton(p, f, patient.Orthopantomography, confidenceKeyword)
		return
	}

	stats, err := analyzeImage(path, c.cfg.Classifier.GridSamples)
	if err != nil {
		c.logger.Debug("pixel analysis failed",
			logging.Args(logging.String("file", path), logging.Error(err))...)
		c.defaultPhoto(p, f)
		return
	}

	switch classifyPixels(stats) {
	case verdictGrayscale:
		f.SetMeta(MetaPixelVerdict, string(verdictGrayscale))
		c.classifyGrayscale(p, f, stats.aspectRatio())
	case verdictIntraoral:
		f.Type = patient.IntraoralPhoto
		f.Confidence = confidencePixelColor
		f.Status = patient.StatusMatched
		p.IntraoralPhotos = append(p.IntraoralPhotos, f)
	case verdictFacial:
		// No dedicated slot exists for facial shots; they group with the
		// intraoral photos and keep the heuristic verdict for inspection.
		f.SetMeta(MetaPixelVerdict, string(verdictFacial))
		f.Type = patient.IntraoralPhoto
		f.Confidence = confidencePixelColor
		f.Status = patient.StatusMatched
		p.IntraoralPhotos = append(p.IntraoralPhotos, f)
	default:
		c.defaultPhoto(p, f)
	}
}

// classifyGrayscale bands an effectively grayscale image by aspect ratio:
// lateral cephalograms are roughly square, panoramics are wide. Anything in
// between stays unclassified so a screen-photographed radiograph is never
// promoted to a photo slot.
func (c *Classifier) classifyGrayscale(p *patient.Patient, f *patient.File, aspect float64) {
	switch {
	case aspect >= 0.8 && aspect <= 1.2:
		c.assignSingleton(p, f, patient.Teleradiography, confidenceGrayscale)
	case aspect > 1.5 || (aspect > 0 && aspect < 0.7):
		c.assignSingleton(p, f, patient.Orthopantomography, confidenceGrayscale)
	default:
		f.Status = patient.StatusUnmatched
		p.Unmatched = append(p.Unmatched, f)
	}
}

func (c *Classifier) defaultPhoto(p *patient.Patient, f *patient.File) {
	f.Type = patient.IntraoralPhoto
	f.Confidence = confidenceDefaultPhoto
	f.Status = patient.StatusMatched
	p.IntraoralPhotos = append(p.IntraoralPhotos, f)
}

// assignSingleton gives the file a singleton slot if it is free. When the
// slot is already occupied the newcomer becomes ambiguous and lands in
// unmatched; the first match always keeps the slot.
func (c *Classifier) assignSingleton(p *patient.Patient, f *patient.File, dataType patient.DataType, confidence float64) {
	var slot **patient.File
	switch dataType {
	case patient.IOSUpper:
		slot = &p.IOSUpper
	case patient.IOSLower:
		slot = &p.IOSLower
	case patient.Teleradiography:
		slot = &p.Teleradiography
	case patient.Orthopantomography:
		slot = &p.Orthopantomography
	default:
		p.Unmatched = append(p.Unmatched, f)
		return
	}
	if *slot != nil {
		f.Status = patient.StatusAmbiguous
		f.SetMeta(MetaCandidateType, string(dataType))
		p.Unmatched = append(p.Unmatched, f)
		return
	}
	f.Type = dataType
	f.Confidence = confidence
	f.Status = patient.StatusMatched
	*slot = f
}
