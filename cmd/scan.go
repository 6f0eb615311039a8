package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mouse-blink/libpack/internal/controller"
	m "github.com/mouse-blink/libpack/internal/model"
)

var scanYAMLFlag bool

// scanCmd represents the scan command.
var scanCmd = newScanCmd()

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan PATH",
		Short: "List the dependencies of a directory or wheel without changing it",
		Long: `Scan inspects every Mach-O binary under PATH, or inside the archive at PATH,
and classifies each declared dependency as system, owned, external or
unresolvable. Nothing is written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workflow, err := workflowFactory(cfg, logger)
			if err != nil {
				return err
			}

			path := m.Path(args[0])
			opts := cfg.Options()

			var result m.ScanResult

			if isDir(path) {
				result, err = workflow.ScanTree(cmd.Context(), path, opts)
			} else {
				result, err = workflow.ScanPackage(cmd.Context(), path, opts)
			}

			if scanYAMLFlag {
				return printYAML(cmd, newScanDocument(result), err)
			}

			if startErr := ui.Start(controller.WithScanMode()); startErr != nil {
				return startErr
			}

			displayErr := ui.DisplayScan(result, err)
			ui.Wait()

			return displayErr
		},
	}
	addRunFlags(cmd)
	cmd.Flags().BoolVar(&scanYAMLFlag, "yaml", false, "print the classified edges as YAML")

	return cmd
}

// scanDocument is the YAML form of a scan.
type scanDocument struct {
	Root       m.Path              `yaml:"root"`
	Dependents map[string][]m.Path `yaml:"dependents,omitempty"`
	Edges      []m.DependencyEdge  `yaml:"edges,omitempty"`
	Warnings   []m.Warning         `yaml:"warnings,omitempty"`
}

func newScanDocument(result m.ScanResult) scanDocument {
	return scanDocument{
		Root:       result.Root,
		Dependents: result.Dependents(),
		Edges:      result.Edges,
		Warnings:   result.Warnings,
	}
}

func printYAML(cmd *cobra.Command, value any, err error) error {
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}

	_, err = cmd.OutOrStdout().Write(data)

	return err
}

func isDir(path m.Path) bool {
	info, err := os.Stat(string(path))
	return err == nil && info.IsDir()
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
