package controller

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	m "github.com/mouse-blink/libpack/internal/model"
)

type tickMsg time.Time

var classColors = map[m.Classification]lipgloss.Color{
	m.ClassSystem:       lipgloss.Color("8"),  // Gray
	m.ClassOwned:        lipgloss.Color("2"),  // Green
	m.ClassExternal:     lipgloss.Color("11"), // Yellow
	m.ClassUnresolvable: lipgloss.Color("1"),  // Red
}

const classWidth = 13

// Simple delegate for dependency edges.
type edgeDelegate struct {
	offset int
}

func (d edgeDelegate) Height() int  { return 1 }
func (d edgeDelegate) Spacing() int { return 0 }
func (d edgeDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

func (d edgeDelegate) Render(w io.Writer, l list.Model, index int, item list.Item) {
	edge, ok := item.(edgeItem)
	if !ok {
		return
	}

	width := l.Width() - classWidth - 2
	text := edge.dependent + " → " + edge.declared

	var classStyle, textStyle lipgloss.Style

	var display string

	if index == l.Index() {
		classStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("6")).
			Bold(true).
			Width(classWidth)
		textStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("6")).
			Bold(true)

		if edge.resolved != "" && edge.resolved != edge.declared {
			text += " (" + edge.resolved + ")"
		}

		display = animateScroll(text, width, d.offset)
	} else {
		color, ok := classColors[edge.class]
		if !ok {
			color = lipgloss.Color("8")
		}

		classStyle = lipgloss.NewStyle().Foreground(color).Bold(true).Width(classWidth)
		textStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
		display = truncateToWidth(text, width)
	}

	_, _ = fmt.Fprintf(w, "%s  %s", classStyle.Render(string(edge.class)), textStyle.Render(display))
}

func animateScroll(text string, width int, offset int) string {
	if width <= 0 {
		return ""
	}

	if lipgloss.Width(text) <= width {
		return text
	}

	gap := "   "

	// Ticks to wait before scrolling starts.
	pause := 5

	if offset < pause {
		return truncateToWidth(text, width)
	}

	runes := []rune(text + gap)
	n := len(runes)
	start := (offset - pause) % n

	res := make([]rune, 0, width)
	for i := range width {
		res = append(res, runes[(start+i)%n])
	}

	return string(res)
}

func truncateToWidth(text string, width int) string {
	if width <= 0 {
		return ""
	}

	if lipgloss.Width(text) <= width {
		return text
	}

	const ellipsis = "…"

	maxWidth := width - lipgloss.Width(ellipsis)
	if maxWidth <= 0 {
		return ellipsis
	}

	currentWidth := 0

	result := make([]rune, 0, len(text))
	for _, r := range text {
		rWidth := lipgloss.Width(string(r))
		if currentWidth+rWidth > maxWidth {
			break
		}

		result = append(result, r)
		currentWidth += rWidth
	}

	return string(result) + ellipsis
}

// scanModel lists classified dependency edges without changing anything.
type scanModel struct {
	width        int
	height       int
	edgeList     list.Model
	delegate     edgeDelegate
	root         m.Path
	binaries     int
	counts       map[m.Classification]int
	warnings     []m.Warning
	err          error
	rendered     bool
	animOffset   int
	lastSelected int
}

func newScanModel() scanModel {
	delegate := edgeDelegate{}
	edgeList := list.New([]list.Item{}, delegate, 80, 20)
	edgeList.SetShowPagination(false)
	edgeList.SetShowFilter(true)
	edgeList.SetShowHelp(false)
	edgeList.SetShowTitle(false)
	edgeList.SetShowStatusBar(false)
	edgeList.FilterInput.Placeholder = "Filter by path or class…"

	return scanModel{
		edgeList:     edgeList,
		delegate:     delegate,
		counts:       make(map[m.Classification]int),
		lastSelected: -1,
	}
}

func (sm scanModel) Init() tea.Cmd {
	return tea.Tick(time.Second/2, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (sm scanModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		sm.width = msg.Width
		sm.height = msg.Height
		sm.edgeList.SetWidth(sm.width)

	case tickMsg:
		if sm.edgeList.FilterState() != list.Filtering && sm.rendered {
			sm.animOffset++
			sm.delegate.offset = sm.animOffset
			sm.edgeList.SetDelegate(sm.delegate)
		}

		return sm, tea.Tick(time.Millisecond*150, func(t time.Time) tea.Msg {
			return tickMsg(t)
		})

	case tea.KeyMsg:
		if sm.edgeList.FilterState() != list.Filtering {
			switch msg.String() {
			case "q", "ctrl+c", "esc":
				return sm, tea.Quit
			}
		} else if msg.String() == "ctrl+c" {
			return sm, tea.Quit
		}

		sm.edgeList, cmd = sm.edgeList.Update(msg)

		if sm.edgeList.Index() != sm.lastSelected {
			sm.lastSelected = sm.edgeList.Index()
			sm.animOffset = 0
			sm.delegate.offset = 0
			sm.edgeList.SetDelegate(sm.delegate)
		}

		return sm, cmd

	case scanMsg:
		sm = sm.handleScanMsg(msg)
	}

	return sm, cmd
}

func (sm scanModel) handleScanMsg(msg scanMsg) scanModel {
	sm.rendered = true
	sm.err = msg.err

	if msg.err != nil {
		return sm
	}

	sm.root = msg.result.Root
	sm.warnings = msg.result.Warnings

	if msg.result.Graph != nil {
		sm.binaries = len(msg.result.Graph.Binaries)
	}

	edges := append([]m.DependencyEdge(nil), msg.result.Edges...)
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].Dependent != edges[j].Dependent {
			return edges[i].Dependent < edges[j].Dependent
		}

		return edges[i].Declared < edges[j].Declared
	})

	items := make([]list.Item, 0, len(edges))
	for _, e := range edges {
		sm.counts[e.Class]++
		items = append(items, edgeItem{
			dependent: string(e.Dependent),
			declared:  e.Declared,
			resolved:  string(e.Resolved),
			class:     e.Class,
		})
	}

	sm.edgeList.SetItems(items)

	if len(items) > 0 && sm.lastSelected == -1 {
		sm.lastSelected = 0
	}

	return sm
}

func (sm scanModel) View() string {
	if !sm.rendered {
		return "Scanning binaries…\n"
	}

	titleStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("205")).
		Bold(true).
		Padding(1, 0, 0, 2)

	if sm.err != nil {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Padding(0, 0, 1, 2)

		return lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Dependency scan failed"),
			errStyle.Render(sm.err.Error()),
		)
	}

	summaryStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("252")).
		Padding(0, 0, 1, 2)

	accentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	title := titleStyle.Render("Dependencies of " + string(sm.root))

	summary := summaryStyle.Render(fmt.Sprintf(
		"Binaries: %s   External: %s   Owned: %s   System: %s   Unresolvable: %s   Warnings: %s",
		accentStyle.Render(fmt.Sprintf("%d", sm.binaries)),
		accentStyle.Render(fmt.Sprintf("%d", sm.counts[m.ClassExternal])),
		accentStyle.Render(fmt.Sprintf("%d", sm.counts[m.ClassOwned])),
		accentStyle.Render(fmt.Sprintf("%d", sm.counts[m.ClassSystem])),
		accentStyle.Render(fmt.Sprintf("%d", sm.counts[m.ClassUnresolvable])),
		accentStyle.Render(fmt.Sprintf("%d", len(sm.warnings))),
	))

	footerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")).
		Align(lipgloss.Center).
		Width(sm.width)

	footer := footerStyle.Render("↑/k up • ↓/j down • / filter • q quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		summary,
		sm.renderTable(),
		footer,
	)
}

func (sm scanModel) renderTable() string {
	// Title, summary, footer, border and headers.
	listHeight := sm.height - 9
	if listHeight < 5 {
		listHeight = 5
	}

	listWidth := sm.width - 6
	if listWidth < 20 {
		listWidth = 20
	}

	sm.edgeList.SetHeight(listHeight)
	sm.edgeList.SetWidth(listWidth)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")).
		Bold(true).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("8")).
		Width(listWidth)

	headers := headerStyle.Render(fmt.Sprintf("%-*s  %s", classWidth, "Class", "Binary → Dependency"))

	tableContainer := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("6")).
		Margin(0, 1).
		Padding(0, 1)

	return tableContainer.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			headers,
			sm.edgeList.View(),
		),
	)
}
