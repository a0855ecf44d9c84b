package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"dentarch/internal/convert"
	"dentarch/internal/export"
	"dentarch/internal/project"
	"dentarch/internal/services"
	"dentarch/internal/services/archive"
	"dentarch/internal/zippkg"
)

type planView struct {
	PatientID   string         `json:"patient_id"`
	DisplayName string         `json:"display_name"`
	Items       []planItemView `json:"items"`
}

type planItemView struct {
	Slot string `json:"slot"`
	Path string `json:"path"`
}

func newPlanView(plan *export.Plan) planView {
	view := planView{PatientID: plan.PatientID, DisplayName: plan.DisplayName}
	for _, item := range plan.Items {
		view.Items = append(view.Items, planItemView{Slot: item.Slot, Path: item.File.Path})
	}
	return view
}

func renderPlan(cmd *cobra.Command, cctx *commandContext, plan *export.Plan) error {
	if cctx.jsonOutput() {
		return writeJSON(cmd, newPlanView(plan))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Patient: %s (%s)\n", plan.DisplayName, plan.PatientID)
	rows := make([]table.Row, 0, len(plan.Items))
	for _, item := range plan.Items {
		rows = append(rows, table.Row{item.Slot, filepath.Base(item.File.Path)})
	}
	renderTable(cmd, table.Row{"Slot", "File"}, rows)
	return nil
}

func newSyncPlanCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-plan <folder>",
		Short: "Show what an upload would send for a patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withService(func(ctx context.Context, svc *project.Service) error {
				p := svc.AnalyzePatient(ctx, args[0], true)
				return renderPlan(cmd, cctx, export.BuildPlan(p))
			})
		},
	}
}

func newConvertCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <folder>",
		Short: "Convert the patient's CBCT series to a NIfTI volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withService(func(ctx context.Context, svc *project.Service) error {
				cfg, _ := cctx.ensureConfig()
				converter := convert.New(cfg, cctx.ensureLogger())

				p := svc.AnalyzePatient(ctx, args[0], true)
				outPath, err := converter.Convert(ctx, p)
				if err != nil {
					return err
				}
				if err := svc.UpdateCache(ctx, p); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "NIfTI volume written to %s\n", outPath)
				return nil
			})
		},
	}
}

func newPackageCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "package <folder>",
		Short: "Bundle a patient's synced files into a zip archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withService(func(ctx context.Context, svc *project.Service) error {
				packager := zippkg.New(cctx.ensureLogger())

				p := svc.AnalyzePatient(ctx, args[0], true)
				zipPath, err := packager.Package(ctx, p)
				if err != nil {
					return err
				}
				if err := svc.UpdateCache(ctx, p); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Archive written to %s\n", zipPath)
				return nil
			})
		},
	}
}

func newUploadCommand(cctx *commandContext) *cobra.Command {
	var createRemote bool

	cmd := &cobra.Command{
		Use:   "upload <folder>",
		Short: "Upload a patient's synced files to the remote archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withService(func(ctx context.Context, svc *project.Service) error {
				cfg, _ := cctx.ensureConfig()
				client, err := archive.NewClient(cfg, cctx.ensureLogger())
				if err != nil {
					return err
				}

				p := svc.AnalyzePatient(ctx, args[0], true)
				plan := export.BuildPlan(p)
				if len(plan.Items) == 0 {
					return services.Wrap(services.ErrValidation, "upload", "plan", "patient has no files to upload", nil)
				}

				if err := client.Login(ctx); err != nil {
					return err
				}
				remote, err := client.FindPatient(ctx, plan.DisplayName)
				if err != nil {
					return err
				}
				if remote == nil {
					if !createRemote {
						return services.Wrap(services.ErrNotFound, "upload", "find-patient",
							fmt.Sprintf("patient %q not found on the archive; rerun with --create", plan.DisplayName), nil)
					}
					remote, err = client.CreatePatient(ctx, plan.DisplayName)
					if err != nil {
						return err
					}
				}

				result, err := client.UploadPatient(ctx, remote.ID, plan)
				if err != nil {
					return err
				}
				if err := svc.Cache().MarkUploaded(ctx, p.FolderPath, result.UploadID, remote.ID, result.Hashes); err != nil {
					return err
				}

				if cctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{
						"patient":   plan.DisplayName,
						"remote_id": remote.ID,
						"upload_id": result.UploadID,
						"files":     result.Files,
						"duration":  result.Duration.String(),
					})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d files for %s in %s (upload %s)\n",
					result.Files, plan.DisplayName, result.Duration.Round(time.Millisecond), result.UploadID)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&createRemote, "create", false, "Create the remote patient record if it does not exist")
	return cmd
}
