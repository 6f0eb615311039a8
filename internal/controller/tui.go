package controller

import (
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	m "github.com/mouse-blink/libpack/internal/model"
)

// TUI implements UI using Bubble Tea for interactive display.
type TUI struct {
	output  io.Writer
	mu      sync.Mutex
	program *tea.Program
	started bool
	done    chan struct{}
}

// NewTUI creates a new TUI.
func NewTUI(output io.Writer) *TUI {
	return &TUI{output: output}
}

// Start launches the Bubble Tea program for the selected mode.
func (t *TUI) Start(options ...StartOption) error {
	cfg := newStartConfig(options...)

	if cfg.mode == ModeScan {
		return t.startWithModel(newScanModel(), tea.WithAltScreen())
	}

	return t.startWithModel(newRelocateModel())
}

func (t *TUI) startWithModel(model tea.Model, opts ...tea.ProgramOption) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	// A finished program may be replaced; a running one is kept.
	if t.started && !finished(t.done) {
		return nil
	}

	opts = append([]tea.ProgramOption{tea.WithOutput(t.output)}, opts...)
	program := tea.NewProgram(model, opts...)
	done := make(chan struct{})

	t.program = program
	t.done = done
	t.started = true

	go func() {
		defer close(done)

		_, _ = program.Run()
	}()

	return nil
}

func finished(done chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}

func (t *TUI) ensureStarted(options ...StartOption) {
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()

	if !started {
		_ = t.Start(options...)
	}
}

func (t *TUI) send(msg tea.Msg) {
	t.mu.Lock()
	program := t.program
	t.mu.Unlock()

	if program == nil {
		return
	}

	program.Send(msg)
}

// Wait blocks until the program exits.
func (t *TUI) Wait() {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()

	if done == nil {
		return
	}

	<-done
}

// Close stops the program and waits for it to restore the terminal.
func (t *TUI) Close() {
	t.mu.Lock()
	program := t.program
	t.mu.Unlock()

	if program == nil {
		return
	}

	program.Quit()
	t.Wait()
}

// DisplayStage forwards a stage transition to the relocation view.
func (t *TUI) DisplayStage(root m.Path, stage m.Stage) {
	t.send(stageMsg{root: root, stage: stage})
}

// DisplayScan hands the scan result to the dependency list.
func (t *TUI) DisplayScan(result m.ScanResult, err error) error {
	t.ensureStarted(WithScanMode())
	t.send(scanMsg{result: result, err: err})

	return err
}

// DisplayReport hands the final report to the relocation view.
func (t *TUI) DisplayReport(report m.Report, err error) error {
	t.ensureStarted(WithRelocateMode())
	t.send(reportMsg{report: report, err: err})

	return err
}
