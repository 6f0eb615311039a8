package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mouse-blink/libpack/internal/controller"
	m "github.com/mouse-blink/libpack/internal/model"
)

// viewCmd represents the view command.
var viewCmd = newViewCmd()

func newViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view",
		Short: "View previously saved relocation reports",
		Long:  "View the relocation reports saved by relocate --reports, in order of their root path.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.Reports == "" {
				return errors.New("reports directory is required (--reports or reports: in the config file)")
			}

			reports, err := reportStore.LoadReports(m.Path(cfg.Reports))
			if err != nil {
				return err
			}

			if len(reports) == 0 {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "no reports in %s\n", cfg.Reports)
				return err
			}

			for _, report := range reports {
				if err := ui.Start(controller.WithRelocateMode()); err != nil {
					return err
				}

				displayErr := ui.DisplayReport(report, nil)
				ui.Wait()

				if displayErr != nil {
					return displayErr
				}
			}

			return nil
		},
	}
	cmd.Flags().String("reports", "", "directory holding the saved reports")

	return cmd
}

func init() {
	rootCmd.AddCommand(viewCmd)
}
