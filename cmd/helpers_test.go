package cmd

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/mouse-blink/libpack/internal/adapter"
	"github.com/mouse-blink/libpack/internal/config"
	"github.com/mouse-blink/libpack/internal/controller"
	"github.com/mouse-blink/libpack/internal/domain"
	domainmocks "github.com/mouse-blink/libpack/internal/domain/mocks"
)

// withWorkflow swaps the workflow factory for one returning wf.
func withWorkflow(t *testing.T, wf domain.Workflow) {
	t.Helper()

	original := workflowFactory
	workflowFactory = func(*config.Config, *log.Logger) (domain.Workflow, error) {
		return wf, nil
	}

	t.Cleanup(func() { workflowFactory = original })
}

func withUI(t *testing.T, replacement controller.UI) {
	t.Helper()

	original := ui
	ui = replacement

	t.Cleanup(func() { ui = original })
}

func withReportStore(t *testing.T, store adapter.ReportStore) {
	t.Helper()

	original := reportStore
	reportStore = store

	t.Cleanup(func() { reportStore = original })
}

// newTestRoot builds a root command with sub attached and a SimpleUI writing
// to the returned buffer.
func newTestRoot(t *testing.T, sub *cobra.Command) (*cobra.Command, *bytes.Buffer) {
	t.Helper()

	t.Chdir(t.TempDir())

	var out bytes.Buffer

	root := newRootCmd()
	root.AddCommand(sub)
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})

	withUI(t, controller.NewSimpleUI(root))

	return root, &out
}

func newMockWorkflow(t *testing.T) *domainmocks.MockWorkflow {
	t.Helper()

	wf := domainmocks.NewMockWorkflow(t)
	withWorkflow(t, wf)

	return wf
}
