package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mouse-blink/libpack/internal/controller"
	m "github.com/mouse-blink/libpack/internal/model"
)

// relocateCmd represents the relocate command.
var relocateCmd = newRelocateCmd()

func newRelocateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relocate PATH...",
		Short: "Bundle external dependencies into directories or wheels",
		Long: `Relocate copies every external dependency of the Mach-O binaries under each
PATH into the bundling subdirectory and rewrites references to it. Archives are
repacked at the same path with a refreshed RECORD; an archive is left
untouched when nothing needs to change or when the run fails.

Each PATH is processed independently; a failure is reported and the
remaining paths are still relocated.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workflow, err := workflowFactory(cfg, logger)
			if err != nil {
				return err
			}

			var errs []error

			for _, arg := range args {
				path := m.Path(arg)

				if err := ui.Start(controller.WithRelocateMode()); err != nil {
					return err
				}

				opts := cfg.Options()
				opts.OnStage = ui.DisplayStage

				var report m.Report

				if isDir(path) {
					report, err = workflow.RelocateTree(cmd.Context(), path, opts)
				} else {
					report, err = workflow.Relocate(cmd.Context(), path, opts)
				}

				if report.Root == "" {
					report.Root = path
				}

				if displayErr := ui.DisplayReport(report, err); displayErr != nil {
					errs = append(errs, fmt.Errorf("%s: %w", path, displayErr))
				}

				ui.Wait()

				if err := saveReport(report); err != nil {
					errs = append(errs, err)
				}
			}

			if cfg.Reports != "" {
				if err := reportStore.RegenerateIndex(m.Path(cfg.Reports)); err != nil {
					errs = append(errs, err)
				}
			}

			return errors.Join(errs...)
		},
	}
	addRelocateFlags(cmd)

	return cmd
}

func saveReport(report m.Report) error {
	if cfg.Reports == "" {
		return nil
	}

	path, err := reportStore.SaveReport(m.Path(cfg.Reports), report)
	if err != nil {
		return err
	}

	logger.Debug("report saved", "root", report.Root, "path", path)

	return nil
}

func init() {
	rootCmd.AddCommand(relocateCmd)
}
