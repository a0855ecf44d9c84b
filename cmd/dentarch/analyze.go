package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"dentarch/internal/patient"
	"dentarch/internal/project"
)

type fileView struct {
	Path       string  `json:"path"`
	Type       string  `json:"type,omitempty"`
	Confidence float64 `json:"confidence"`
	Status     string  `json:"status"`
	Excluded   bool    `json:"excluded,omitempty"`
}

type patientView struct {
	ID               string     `json:"id"`
	FolderPath       string     `json:"folder_path"`
	Complete         bool       `json:"complete"`
	MissingTypes     []string   `json:"missing_types,omitempty"`
	Files            []fileView `json:"files"`
	ValidationErrors []string   `json:"validation_errors,omitempty"`
	ManuallyComplete bool       `json:"manually_complete,omitempty"`
	CompletionNote   string     `json:"completion_note,omitempty"`
}

func newPatientView(p *patient.Patient) patientView {
	view := patientView{
		ID:               p.ID,
		FolderPath:       p.FolderPath,
		Complete:         p.IsComplete(),
		ValidationErrors: p.ValidationErrors,
		ManuallyComplete: p.ManuallyComplete,
		CompletionNote:   p.ManualCompletionNote,
	}
	for _, missing := range p.MissingTypes() {
		view.MissingTypes = append(view.MissingTypes, string(missing))
	}
	for _, f := range p.AllFiles() {
		view.Files = append(view.Files, fileView{
			Path:       f.Path,
			Type:       string(f.Type),
			Confidence: f.Confidence,
			Status:     string(f.Status),
			Excluded:   f.Excluded,
		})
	}
	return view
}

func renderPatient(cmd *cobra.Command, cctx *commandContext, p *patient.Patient) error {
	if cctx.jsonOutput() {
		return writeJSON(cmd, newPatientView(p))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Patient: %s\n", p.ID)
	rows := make([]table.Row, 0, len(p.AllFiles()))
	for _, f := range p.AllFiles() {
		rel, err := filepath.Rel(p.FolderPath, f.Path)
		if err != nil {
			rel = f.Path
		}
		excluded := ""
		if f.Excluded {
			excluded = "yes"
		}
		rows = append(rows, table.Row{rel, string(f.Type), fmt.Sprintf("%.2f", f.Confidence), string(f.Status), excluded})
	}
	renderTable(cmd, table.Row{"File", "Type", "Confidence", "Status", "Excluded"}, rows)

	if missing := p.MissingTypes(); len(missing) > 0 {
		fmt.Fprintf(out, "Missing: %v\n", missing)
	}
	for _, msg := range p.ValidationErrors {
		fmt.Fprintf(out, "Warning: %s\n", msg)
	}
	if p.IsComplete() {
		fmt.Fprintln(out, "Status: complete")
	} else {
		fmt.Fprintln(out, "Status: incomplete")
	}
	return nil
}

func newAnalyzeCommand(cctx *commandContext) *cobra.Command {
	var noCache bool

	cmd := &cobra.Command{
		Use:   "analyze <folder>",
		Short: "Classify one patient folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withService(func(ctx context.Context, svc *project.Service) error {
				p := svc.AnalyzePatient(ctx, args[0], !noCache)
				return renderPatient(cmd, cctx, p)
			})
		},
	}
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Ignore cached results and reclassify from scratch")
	return cmd
}
