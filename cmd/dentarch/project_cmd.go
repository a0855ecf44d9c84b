package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"dentarch/internal/patient"
	"dentarch/internal/project"
)

type projectView struct {
	RootPath     string        `json:"root_path"`
	Patients     []patientView `json:"patients"`
	GlobalErrors []string      `json:"global_errors,omitempty"`
}

func newProjectCommand(cctx *commandContext) *cobra.Command {
	var noCache bool
	var incompleteOnly bool

	cmd := &cobra.Command{
		Use:   "project <root>",
		Short: "Classify every patient folder under a project root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withService(func(ctx context.Context, svc *project.Service) error {
				proj, err := svc.AnalyzeProject(ctx, args[0], !noCache)
				if err != nil {
					return err
				}

				patients := proj.Patients
				if incompleteOnly {
					patients = proj.Incomplete()
				}

				if cctx.jsonOutput() {
					view := projectView{RootPath: proj.RootPath, GlobalErrors: proj.GlobalErrors}
					for _, p := range patients {
						view.Patients = append(view.Patients, newPatientView(p))
					}
					return writeJSON(cmd, view)
				}

				rows := make([]table.Row, 0, len(patients))
				for _, p := range patients {
					rows = append(rows, table.Row{
						p.ID,
						len(p.AllFiles()),
						completionLabel(p),
						missingLabel(p),
						len(p.ValidationErrors),
					})
				}
				renderTable(cmd, table.Row{"Patient", "Files", "Complete", "Missing", "Warnings"}, rows)
				fmt.Fprintf(cmd.OutOrStdout(), "%d of %d patients complete\n", len(proj.Complete()), len(proj.Patients))
				for _, msg := range proj.GlobalErrors {
					fmt.Fprintf(cmd.OutOrStdout(), "Error: %s\n", msg)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Ignore cached results and reclassify from scratch")
	cmd.Flags().BoolVar(&incompleteOnly, "incomplete", false, "List only patients with missing data")
	return cmd
}

func completionLabel(p *patient.Patient) string {
	switch {
	case p.ManuallyComplete:
		return "yes (manual)"
	case p.IsComplete():
		return "yes"
	default:
		return "no"
	}
}

func missingLabel(p *patient.Patient) string {
	missing := p.MissingTypes()
	if len(missing) == 0 {
		return ""
	}
	parts := make([]string, len(missing))
	for i, m := range missing {
		parts[i] = string(m)
	}
	return strings.Join(parts, ", ")
}
