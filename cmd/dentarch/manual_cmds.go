package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"dentarch/internal/patient"
	"dentarch/internal/project"
)

func newReassignCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reassign <folder> <file> <type>",
		Short: "Manually assign a file to a data slot",
		Long: "Reassign moves a file into the named slot and records the decision " +
			"in the cache so it survives re-analysis. Valid types: cbct_dicom, " +
			"ios_upper, ios_lower, intraoral_photo, teleradiography, orthopantomography.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataType, err := patient.ParseDataType(args[2])
			if err != nil {
				return err
			}
			return cctx.withService(func(ctx context.Context, svc *project.Service) error {
				p, err := svc.Reassign(ctx, args[0], args[1], dataType)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Assigned %s to %s.\n", args[1], dataType)
				return renderPatient(cmd, cctx, p)
			})
		},
	}
}

func newExcludeCommand(cctx *commandContext) *cobra.Command {
	var undo bool

	cmd := &cobra.Command{
		Use:   "exclude <folder> <file>",
		Short: "Exempt a file from sync and export",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withService(func(ctx context.Context, svc *project.Service) error {
				p, err := svc.SetExcluded(ctx, args[0], args[1], !undo)
				if err != nil {
					return err
				}
				if undo {
					fmt.Fprintf(cmd.OutOrStdout(), "Restored %s to sync.\n", args[1])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Excluded %s from sync.\n", args[1])
				}
				return renderPatient(cmd, cctx, p)
			})
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "Re-include a previously excluded file")
	return cmd
}

func newRemoveMissingCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-missing <folder>",
		Short: "Drop records for files no longer on disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withService(func(ctx context.Context, svc *project.Service) error {
				p, removed, err := svc.RemoveMissing(ctx, args[0])
				if err != nil {
					return err
				}
				if len(removed) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No missing files.")
					return nil
				}
				for _, path := range removed {
					fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", path)
				}
				return renderPatient(cmd, cctx, p)
			})
		},
	}
}

func newCompleteCommand(cctx *commandContext) *cobra.Command {
	var clear bool
	var note string

	cmd := &cobra.Command{
		Use:   "complete <folder>",
		Short: "Mark a patient manually complete despite missing data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withService(func(ctx context.Context, svc *project.Service) error {
				p, err := svc.SetManuallyComplete(ctx, args[0], !clear, note)
				if err != nil {
					return err
				}
				if clear {
					fmt.Fprintf(cmd.OutOrStdout(), "Cleared manual completion for %s.\n", p.ID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Marked %s manually complete.\n", p.ID)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "Remove the manual completion flag")
	cmd.Flags().StringVar(&note, "note", "", "Reason the patient is considered complete")
	return cmd
}
