package controller

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	m "github.com/mouse-blink/libpack/internal/model"
)

var warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)

// SimpleUI implements UI using cobra Command's output writer.
type SimpleUI struct {
	cmd  *cobra.Command
	mode StartMode
}

// NewSimpleUI creates a new SimpleUI.
func NewSimpleUI(cmd *cobra.Command) *SimpleUI {
	return &SimpleUI{cmd: cmd}
}

// Start initializes the UI.
func (s *SimpleUI) Start(options ...StartOption) error {
	s.mode = newStartConfig(options...).mode

	return nil
}

// Close finalizes the UI.
func (s *SimpleUI) Close() {}

// Wait returns immediately; plain output needs no user interaction.
func (s *SimpleUI) Wait() {}

// DisplayStage prints one line per stage transition of a relocation.
func (s *SimpleUI) DisplayStage(root m.Path, stage m.Stage) {
	if s.mode != ModeRelocate {
		return
	}

	s.printf("%-11s %s\n", stage, root)
}

// DisplayScan prints the classified dependency edges or the scan error.
func (s *SimpleUI) DisplayScan(result m.ScanResult, err error) error {
	if err != nil {
		s.printf("scan error: %v\n", err)
		return err
	}

	edges := append([]m.DependencyEdge(nil), result.Edges...)
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].Dependent != edges[j].Dependent {
			return edges[i].Dependent < edges[j].Dependent
		}

		return edges[i].Declared < edges[j].Declared
	})

	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Binary", "Dependency", "Class", "Resolved"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)

	counts := make(map[m.Classification]int)

	for _, edge := range edges {
		counts[edge.Class]++
		table.Append([]string{string(edge.Dependent), edge.Declared, string(edge.Class), string(edge.Resolved)})
	}

	binaries := 0
	if result.Graph != nil {
		binaries = len(result.Graph.Binaries)
	}

	table.SetFooter([]string{
		fmt.Sprintf("Total Binaries %d", binaries),
		fmt.Sprintf("%d", len(edges)),
		fmt.Sprintf("%d external", counts[m.ClassExternal]),
		fmt.Sprintf("%d unresolvable", counts[m.ClassUnresolvable]),
	})

	table.Render()
	s.printf("\n%s", tableBuffer.String())
	s.printWarnings(result.Warnings)

	return nil
}

// DisplayReport prints the outcome of a relocation or the error that aborted it.
func (s *SimpleUI) DisplayReport(report m.Report, err error) error {
	s.printWarnings(report.Warnings)

	if err != nil {
		s.printf("relocation error: %v\n", err)
		return err
	}

	if len(report.Bundled) > 0 {
		var tableBuffer bytes.Buffer

		table := tablewriter.NewWriter(&tableBuffer)
		table.SetHeader([]string{"Source", "Destination"})
		table.SetBorder(false)
		table.SetCenterSeparator("")
		table.SetAutoWrapText(false)

		for _, r := range report.Bundled {
			dest := string(r.Destination)
			if r.Renamed {
				dest += " (renamed)"
			}

			table.Append([]string{string(r.Source), dest})
		}

		table.Render()
		s.printf("\n%s", tableBuffer.String())
	}

	s.printf("\n%s: %s\n", report.Root, report.Stage)
	s.printf("bundled %d, rewritten %d, signed %d, manifests %d\n",
		len(report.Bundled), len(report.Rewritten), len(report.Signed), len(report.Manifest))

	if !report.Changed() {
		s.printf("nothing to relocate\n")
	}

	return nil
}

func (s *SimpleUI) printWarnings(warnings []m.Warning) {
	for _, w := range warnings {
		s.printf("%s %s\n", warningStyle.Render("warning:"), formatWarning(w))
	}
}

func (s *SimpleUI) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.cmd.OutOrStdout(), format, args...)
}

func formatWarning(w m.Warning) string {
	text := fmt.Sprintf("%s %s", w.Kind, w.Binary)
	if w.Dependency != "" {
		text += " -> " + w.Dependency
	}

	if w.Message != "" {
		text += ": " + w.Message
	}

	return text
}
