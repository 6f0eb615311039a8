// Package cmd provides the root command and CLI setup for libpack.
package cmd

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/mouse-blink/libpack/internal/adapter"
	"github.com/mouse-blink/libpack/internal/config"
	"github.com/mouse-blink/libpack/internal/controller"
	"github.com/mouse-blink/libpack/internal/domain"
)

// WorkflowFactory builds the relocation engine for a resolved configuration.
type WorkflowFactory func(cfg *config.Config, logger *log.Logger) (domain.Workflow, error)

var ui controller.UI
var reportStore adapter.ReportStore
var workflowFactory WorkflowFactory = newWorkflow

var cfg *config.Config
var logger *log.Logger

var configFlag string
var verboseFlag int
var quietFlag bool

func init() {
	ui = controller.NewUI(rootCmd, controller.IsTTY(os.Stdout))
	reportStore = adapter.NewReportStore()
}

func newWorkflow(cfg *config.Config, logger *log.Logger) (domain.Workflow, error) {
	signer, err := adapter.NewSigner(cfg.Signer)
	if err != nil {
		return nil, err
	}

	return domain.NewWorkflow(
		adapter.NewLocalPackageFSAdapter(),
		adapter.NewLocalBinaryAdapter(cfg.CacheSize),
		adapter.NewLocalArchiveAdapter(),
		adapter.NewRecordManifestAdapter(),
		signer,
		logger,
	), nil
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "libpack",
		Short: "Bundle external shared libraries into Mach-O packages",
		Long: `Libpack copies the external dynamic libraries that the Mach-O binaries of a
directory or wheel depend on into a bundling subdirectory, rewrites every
reference to point at the copy relative to the referencing binary, re-signs
what it changed and refreshes the wheel RECORD.

Configuration is read from ./libpack.yaml (or --config), LIBPACK_* environment
variables and flags, in increasing order of precedence.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
	cmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "config file (default ./libpack.yaml)")
	cmd.PersistentFlags().CountVarP(&verboseFlag, "verbose", "v", "log progress to stderr (repeat for debug output)")
	cmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "suppress all log output")

	return cmd
}

func setup(cmd *cobra.Command, _ []string) error {
	logger = newLogger(cmd.ErrOrStderr())

	loaded, _, err := config.Load(config.LoadOptions{
		ConfigFile: configFlag,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return err
	}

	cfg = loaded

	return nil
}

func newLogger(w io.Writer) *log.Logger {
	level := log.ErrorLevel

	switch {
	case quietFlag:
		level = log.FatalLevel
	case verboseFlag == 1:
		level = log.InfoLevel
	case verboseFlag > 1:
		level = log.DebugLevel
	}

	return log.NewWithOptions(w, log.Options{
		Prefix: config.AppName,
		Level:  level,
	})
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
