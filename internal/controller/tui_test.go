package controller

import (
	"bytes"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "github.com/mouse-blink/libpack/internal/model"
)

type quitModel struct{}

func (q quitModel) Init() tea.Cmd { return tea.Quit }
func (q quitModel) Update(_ tea.Msg) (tea.Model, tea.Cmd) {
	return q, tea.Quit
}
func (q quitModel) View() string { return "" }

func waitWithTimeout(t *testing.T, fn func()) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestTUI_StartWithModel_WaitAndClose(t *testing.T) {
	var buf bytes.Buffer
	tui := NewTUI(&buf)

	require.NoError(t, tui.startWithModel(quitModel{}, tea.WithInput(nil)))

	tui.send(stageMsg{root: "pkg", stage: m.StageScanned})

	waitWithTimeout(t, tui.Wait)
	waitWithTimeout(t, tui.Close)
}

func TestTUI_RestartsAfterProgramExits(t *testing.T) {
	var buf bytes.Buffer
	tui := NewTUI(&buf)

	require.NoError(t, tui.startWithModel(quitModel{}, tea.WithInput(nil)))
	waitWithTimeout(t, tui.Wait)
	first := tui.program

	require.NoError(t, tui.startWithModel(quitModel{}, tea.WithInput(nil)))
	waitWithTimeout(t, tui.Wait)

	assert.NotSame(t, first, tui.program)
}

func TestTUI_KeepsRunningProgram(t *testing.T) {
	var buf bytes.Buffer
	tui := NewTUI(&buf)

	require.NoError(t, tui.startWithModel(newRelocateModel(), tea.WithInput(nil)))
	first := tui.program

	require.NoError(t, tui.startWithModel(quitModel{}, tea.WithInput(nil)))
	assert.Same(t, first, tui.program)

	waitWithTimeout(t, tui.Close)
}

func TestTUI_NotStarted_NoPanic(t *testing.T) {
	var buf bytes.Buffer
	tui := NewTUI(&buf)

	tui.send(stageMsg{root: "pkg", stage: m.StageScanned})
	tui.DisplayStage("pkg", m.StageScanned)

	waitWithTimeout(t, tui.Wait)
	waitWithTimeout(t, tui.Close)
}

func TestTUI_DisplayReport_ReturnsError(t *testing.T) {
	var buf bytes.Buffer
	tui := NewTUI(&buf)
	require.NoError(t, tui.startWithModel(newRelocateModel(), tea.WithInput(nil)))

	runErr := errors.New("boom")
	err := tui.DisplayReport(m.Report{Root: "pkg", Stage: m.StageAborted}, runErr)

	assert.ErrorIs(t, err, runErr)

	// The relocation view quits on its own once the report arrives.
	waitWithTimeout(t, tui.Wait)
}

func TestRelocateModel_Stages(t *testing.T) {
	model := newRelocateModel()

	updated, _ := model.Update(stageMsg{root: "a", stage: m.StageScanned})
	updated, _ = updated.Update(stageMsg{root: "b", stage: m.StageScanned})
	updated, _ = updated.Update(stageMsg{root: "a", stage: m.StageCopied})

	rm := updated.(relocateModel)
	assert.Equal(t, []m.Path{"a", "b"}, rm.roots)
	assert.Equal(t, m.StageCopied, rm.stages["a"])

	view := rm.View()
	assert.Contains(t, view, "copied")
	assert.Contains(t, view, "scanned")
}

func TestRelocateModel_ReportQuits(t *testing.T) {
	model := newRelocateModel()

	updated, _ := model.Update(stageMsg{root: "pkg", stage: m.StageFinalized})
	updated, cmd := updated.Update(reportMsg{report: testReport()})

	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	view := updated.View()
	assert.Contains(t, view, "✓")
	assert.Contains(t, view, "demo/.dylibs/libA-1a2b3c4d.dylib")
	assert.Contains(t, view, "bundled 2, rewritten 1, signed 1, manifests 1")
	assert.Contains(t, view, "name-collision")
}

func TestRelocateModel_ReportError(t *testing.T) {
	model := newRelocateModel()

	updated, _ := model.Update(stageMsg{root: "pkg", stage: m.StageAborted})
	updated, _ = updated.Update(reportMsg{report: m.Report{Root: "pkg", Stage: m.StageAborted}, err: errors.New("strict mode")})

	view := updated.View()
	assert.Contains(t, view, "✗")
	assert.Contains(t, view, "strict mode")
	assert.NotContains(t, view, "bundled")
}

func TestScanModel_HandleScanMsg(t *testing.T) {
	model := newScanModel()
	assert.Contains(t, model.View(), "Scanning")

	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	updated, _ = updated.Update(scanMsg{result: testScanResult()})

	sm := updated.(scanModel)
	assert.True(t, sm.rendered)
	assert.Equal(t, 2, sm.binaries)
	assert.Equal(t, 1, sm.counts[m.ClassExternal])
	assert.Equal(t, 1, sm.counts[m.ClassUnresolvable])
	require.Len(t, sm.edgeList.Items(), 3)

	first := sm.edgeList.Items()[0].(edgeItem)
	assert.Equal(t, "pkg/M.so", first.dependent)
	assert.Equal(t, "/ext/libA.dylib", first.declared)

	view := sm.View()
	assert.Contains(t, view, "Dependencies of pkg")
	assert.Contains(t, view, "Unresolvable")
}

func TestScanModel_Error(t *testing.T) {
	model := newScanModel()

	updated, _ := model.Update(scanMsg{err: errors.New("root path error")})

	assert.Contains(t, updated.View(), "root path error")
}

func TestScanModel_QuitKeys(t *testing.T) {
	model := newScanModel()

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestTruncateToWidth(t *testing.T) {
	assert.Equal(t, "", truncateToWidth("abc", 0))
	assert.Equal(t, "abc", truncateToWidth("abc", 3))
	assert.Equal(t, "ab…", truncateToWidth("abcdef", 3))
	assert.Equal(t, "…", truncateToWidth("abcdef", 1))
}

func TestAnimateScroll(t *testing.T) {
	assert.Equal(t, "abc", animateScroll("abc", 5, 100))
	assert.Equal(t, "abc…", animateScroll("abcdefgh", 4, 0))
	assert.Equal(t, "bcde", animateScroll("abcdefgh", 4, 6))
}

func TestEdgeItem_FilterValue(t *testing.T) {
	item := edgeItem{dependent: "pkg/M.so", declared: "/ext/libA.dylib", class: m.ClassExternal}

	assert.Equal(t, "pkg/M.so /ext/libA.dylib external", item.FilterValue())
}
