package domain

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"

	m "github.com/mouse-blink/libpack/internal/model"
)

// Run is the state of one relocation of one package root. It is threaded
// explicitly through the pipeline stages.
type Run struct {
	// Root is the package root with symlinks resolved.
	Root m.Path
	// BundleDir is the absolute bundling subdirectory below Root.
	BundleDir m.Path
	Options   Options

	Graph *m.DependencyGraph
	// Edges are the classified edges of the package's own binaries.
	Edges []m.DependencyEdge
	// Libraries are the external libraries in the plan, inspected at their
	// original location and keyed by that location.
	Libraries map[m.Path]m.Binary
	// LibraryEdges are the classified edges of Libraries.
	LibraryEdges map[m.Path][]m.DependencyEdge
	Plan         *m.RelocationPlan
	Report       m.Report

	mu     sync.Mutex
	logger *log.Logger
}

// NewRun prepares a run over root, which must already be a real path.
func NewRun(root m.Path, opts Options, logger *log.Logger) *Run {
	opts = opts.normalized()

	return &Run{
		Root:         root,
		BundleDir:    m.Path(filepath.Join(string(root), opts.BundleDir)),
		Options:      opts,
		Graph:        m.NewDependencyGraph(),
		Libraries:    make(map[m.Path]m.Binary),
		LibraryEdges: make(map[m.Path][]m.DependencyEdge),
		Plan:         m.NewRelocationPlan(),
		Report:       m.Report{Root: root, Stage: m.StageUnscanned},
		logger:       logger,
	}
}

// Stage returns the current stage of the run.
func (r *Run) Stage() m.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.Report.Stage
}

// Advance moves the run to next.
func (r *Run) Advance(next m.Stage) error {
	r.mu.Lock()

	current := r.Report.Stage
	if !current.CanAdvanceTo(next) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, next)
	}

	r.Report.Stage = next
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.Debug("stage", "root", r.Root, "stage", next)
	}

	if r.Options.OnStage != nil {
		r.Options.OnStage(r.Root, next)
	}

	return nil
}

// Abort moves the run to the aborted stage and wraps cause in ErrAborted.
func (r *Run) Abort(cause error) error {
	if r.Stage().Terminal() {
		return fmt.Errorf("%w: %w", ErrAborted, cause)
	}

	_ = r.Advance(m.StageAborted)

	if r.logger != nil {
		r.logger.Error("relocation aborted", "root", r.Root, "err", cause)
	}

	return fmt.Errorf("%w: %w", ErrAborted, cause)
}

// Warn records a non-fatal condition.
func (r *Run) Warn(w m.Warning) {
	r.mu.Lock()
	r.Report.Warnings = append(r.Report.Warnings, w)
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.Warn(w.Message, "kind", w.Kind, "binary", w.Binary, "dependency", w.Dependency)
	}
}

// strictFailure returns the first warning fatal under strict mode.
func (r *Run) strictFailure() error {
	if !r.Options.Strict {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range r.Report.Warnings {
		if w.Kind == m.WarnUnresolvable || w.Kind == m.WarnUnreadable {
			return warningError(w)
		}
	}

	return nil
}
