package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"dentarch/internal/project"
)

func newCacheCommand(cctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the matching cache",
	}
	cmd.AddCommand(newCacheShowCommand(cctx))
	cmd.AddCommand(newCacheInvalidateCommand(cctx))
	cmd.AddCommand(newCacheStatsCommand(cctx))
	return cmd
}

func newCacheShowCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <folder>",
		Short: "Show the cached record for a patient folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withService(func(ctx context.Context, svc *project.Service) error {
				snap := svc.Cache().Get(ctx, args[0])
				if snap == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "No valid cache record for this folder.")
					return nil
				}
				if cctx.jsonOutput() {
					return writeJSON(cmd, snap)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Patient:     %s\n", snap.PatientID)
				fmt.Fprintf(out, "Fingerprint: %s\n", snap.FolderHash)
				fmt.Fprintf(out, "Saved:       %s\n", snap.Timestamp.Format("2006-01-02 15:04:05 MST"))
				if snap.Uploaded {
					fmt.Fprintf(out, "Uploaded:    yes (%s)\n", snap.UploadID)
				}
				rows := make([]table.Row, 0, len(snap.MatchedFiles))
				for path, entry := range snap.MatchedFiles {
					rows = append(rows, table.Row{path, entry.DataType, entry.Status, entry.Slot})
				}
				renderTable(cmd, table.Row{"File", "Type", "Status", "Slot"}, rows)
				return nil
			})
		},
	}
}

func newCacheInvalidateCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <folder>",
		Short: "Delete the cached record for a patient folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withService(func(ctx context.Context, svc *project.Service) error {
				if err := svc.InvalidateCache(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cache record removed.")
				return nil
			})
		},
	}
}

func newCacheStatsCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Report record count and size of the centralized cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withService(func(ctx context.Context, svc *project.Service) error {
				records, sizeBytes, err := svc.Cache().Stats(ctx)
				if err != nil {
					return err
				}
				if cctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"records": records, "size_bytes": sizeBytes})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Records: %d\nSize:    %d bytes\n", records, sizeBytes)
				return nil
			})
		},
	}
}
