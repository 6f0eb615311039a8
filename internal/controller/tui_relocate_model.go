package controller

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	m "github.com/mouse-blink/libpack/internal/model"
)

// stageProgress is the fraction of a run completed once a stage is entered.
var stageProgress = map[m.Stage]float64{
	m.StageUnscanned:  0,
	m.StageScanned:    1.0 / 6,
	m.StageClassified: 2.0 / 6,
	m.StagePlanned:    3.0 / 6,
	m.StageCopied:     4.0 / 6,
	m.StageRewritten:  5.0 / 6,
	m.StageFinalized:  1,
}

// relocateModel shows the stage of every package root while a relocation runs.
type relocateModel struct {
	width       int
	spinner     spinner.Model
	progressBar progress.Model
	roots       []m.Path
	stages      map[m.Path]m.Stage
	report      *m.Report
	err         error
}

func newRelocateModel() relocateModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	return relocateModel{
		spinner:     s,
		progressBar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
		stages:      make(map[m.Path]m.Stage),
	}
}

func (rm relocateModel) Init() tea.Cmd {
	return rm.spinner.Tick
}

func (rm relocateModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		rm.width = msg.Width
		return rm, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return rm, tea.Quit
		}

		return rm, nil

	case spinner.TickMsg:
		if rm.report != nil {
			return rm, nil
		}

		var cmd tea.Cmd

		rm.spinner, cmd = rm.spinner.Update(msg)

		return rm, cmd

	case stageMsg:
		if _, ok := rm.stages[msg.root]; !ok {
			rm.roots = append(rm.roots, msg.root)
		}

		rm.stages[msg.root] = msg.stage

		return rm, nil

	case reportMsg:
		report := msg.report
		rm.report = &report
		rm.err = msg.err

		return rm, tea.Quit
	}

	return rm, nil
}

func (rm relocateModel) View() string {
	titleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	rootStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	failStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	var b strings.Builder

	b.WriteString(titleStyle.Render("Relocating dependencies"))
	b.WriteString("\n\n")

	for _, root := range rm.roots {
		stage := rm.stages[root]

		var marker string

		switch {
		case stage == m.StageFinalized:
			marker = okStyle.Render("✓")
		case stage == m.StageAborted:
			marker = failStyle.Render("✗")
		case rm.report != nil:
			marker = dimStyle.Render("•")
		default:
			marker = rm.spinner.View()
		}

		fmt.Fprintf(&b, "%s %s %-11s %s\n",
			marker,
			rm.progressBar.ViewAs(stageProgress[stage]),
			string(stage),
			rootStyle.Render(string(root)),
		)
	}

	if rm.report == nil {
		return b.String()
	}

	b.WriteString("\n")

	for _, w := range rm.report.Warnings {
		fmt.Fprintf(&b, "%s %s\n", warningStyle.Render("warning:"), formatWarning(w))
	}

	if rm.err != nil {
		fmt.Fprintf(&b, "%s %v\n", failStyle.Render("relocation error:"), rm.err)
		return b.String()
	}

	for _, r := range rm.report.Bundled {
		fmt.Fprintf(&b, "  %s %s %s\n", rootStyle.Render(string(r.Source)), dimStyle.Render("→"), string(r.Destination))
	}

	fmt.Fprintf(&b, "%s bundled %d, rewritten %d, signed %d, manifests %d\n",
		okStyle.Render(string(rm.report.Stage)),
		len(rm.report.Bundled), len(rm.report.Rewritten), len(rm.report.Signed), len(rm.report.Manifest))

	return b.String()
}
