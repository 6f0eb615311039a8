package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/mouse-blink/libpack/internal/adapter"
	m "github.com/mouse-blink/libpack/internal/model"
)

const packageMarker = "__init__.py"

// Workflow is the entry point of the relocation engine.
type Workflow interface {
	// ScanTree builds the dependency graph of a directory without changing it.
	ScanTree(ctx context.Context, root m.Path, opts Options) (m.ScanResult, error)
	// ScanPackage unpacks an archive to scratch storage and scans it. Paths in
	// the result are relative to the archive root.
	ScanPackage(ctx context.Context, archive m.Path, opts Options) (m.ScanResult, error)
	// RelocateTree bundles the external dependencies of a directory in place.
	RelocateTree(ctx context.Context, root m.Path, opts Options) (m.Report, error)
	// Relocate bundles the external dependencies of an archive and repacks
	// it at the same path. The archive is left untouched on failure and when
	// nothing needed to change.
	Relocate(ctx context.Context, archive m.Path, opts Options) (m.Report, error)
}

type workflow struct {
	fs        adapter.PackageFSAdapter
	binaries  adapter.BinaryAdapter
	archives  adapter.ArchiveAdapter
	manifests adapter.ManifestAdapter
	signer    adapter.Signer
	logger    *log.Logger
}

// NewWorkflow creates a new Workflow instance with the provided adapters.
func NewWorkflow(
	fs adapter.PackageFSAdapter,
	binaries adapter.BinaryAdapter,
	archives adapter.ArchiveAdapter,
	manifests adapter.ManifestAdapter,
	signer adapter.Signer,
	logger *log.Logger,
) Workflow {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &workflow{
		fs:        fs,
		binaries:  binaries,
		archives:  archives,
		manifests: manifests,
		signer:    signer,
		logger:    logger,
	}
}

func (w *workflow) ScanTree(ctx context.Context, root m.Path, opts Options) (m.ScanResult, error) {
	if err := opts.Validate(); err != nil {
		return m.ScanResult{}, err
	}

	realRoot, err := w.resolveDir(root)
	if err != nil {
		return m.ScanResult{}, err
	}

	return w.scan(ctx, realRoot, opts)
}

func (w *workflow) ScanPackage(ctx context.Context, archive m.Path, opts Options) (m.ScanResult, error) {
	if err := opts.Validate(); err != nil {
		return m.ScanResult{}, err
	}

	scratch, cleanup, err := w.unpack(archive)
	if err != nil {
		return m.ScanResult{}, err
	}

	defer cleanup()

	roots, err := w.packageRoots(scratch, opts)
	if err != nil {
		return m.ScanResult{}, err
	}

	merged := m.ScanResult{Root: archive, Graph: m.NewDependencyGraph()}

	for _, root := range roots {
		res, err := w.scan(ctx, root, opts)
		if err != nil {
			return m.ScanResult{}, err
		}

		merged.Graph.Merge(res.Graph)
		merged.Edges = append(merged.Edges, res.Edges...)
		merged.Warnings = append(merged.Warnings, res.Warnings...)
	}

	return relativizeScan(merged, scratch), nil
}

func (w *workflow) RelocateTree(ctx context.Context, root m.Path, opts Options) (m.Report, error) {
	if err := opts.Validate(); err != nil {
		return m.Report{Root: root, Stage: m.StageAborted}, err
	}

	realRoot, err := w.resolveDir(root)
	if err != nil {
		return m.Report{Root: root, Stage: m.StageAborted}, err
	}

	run, err := w.relocate(ctx, realRoot, opts)
	if err != nil {
		return run.Report, err
	}

	final := NewFinalizer(w.binaries, w.manifests, w.signer, w.logger)
	if err := final.Revalidate(ctx, run); err != nil {
		return run.Report, run.Abort(err)
	}

	if err := run.Advance(m.StageFinalized); err != nil {
		return run.Report, run.Abort(err)
	}

	w.logger.Info("relocated", "root", realRoot, "bundled", len(run.Report.Bundled), "rewritten", len(run.Report.Rewritten))

	return run.Report, nil
}

func (w *workflow) Relocate(ctx context.Context, archive m.Path, opts Options) (m.Report, error) {
	report := m.Report{Root: archive, Stage: m.StageUnscanned}

	if err := opts.Validate(); err != nil {
		report.Stage = m.StageAborted
		return report, err
	}

	scratch, cleanup, err := w.unpack(archive)
	if err != nil {
		report.Stage = m.StageAborted
		return report, err
	}

	defer cleanup()

	if onStage := opts.OnStage; onStage != nil {
		opts.OnStage = func(_ m.Path, stage m.Stage) { onStage(archive, stage) }
	}

	roots, err := w.packageRoots(scratch, opts)
	if err != nil {
		report.Stage = m.StageAborted
		return report, err
	}

	runs := make([]*Run, 0, len(roots))
	final := NewFinalizer(w.binaries, w.manifests, w.signer, w.logger)

	for _, root := range roots {
		run, err := w.relocate(ctx, root, opts)
		if err == nil {
			if err = final.Revalidate(ctx, run); err != nil {
				err = run.Abort(err)
			}
		}

		report.Merge(run.Report)

		if err != nil {
			report.Stage = m.StageAborted
			return relativizeReport(report, scratch), err
		}

		runs = append(runs, run)
	}

	report.Stage = m.StageRewritten

	if report.Changed() {
		if err := w.finish(ctx, final, scratch, archive, &report); err != nil {
			for _, run := range runs {
				_ = run.Abort(err)
			}

			report.Stage = m.StageAborted

			return relativizeReport(report, scratch), fmt.Errorf("%w: %w", ErrAborted, err)
		}
	} else {
		w.logger.Info("nothing to relocate", "archive", archive)
	}

	for _, run := range runs {
		if err := run.Advance(m.StageFinalized); err != nil {
			return relativizeReport(report, scratch), err
		}
	}

	report.Stage = m.StageFinalized

	w.logger.Info("relocated", "archive", archive, "bundled", len(report.Bundled), "rewritten", len(report.Rewritten))

	return relativizeReport(report, scratch), nil
}

// finish refreshes the manifests of the unpacked tree and repacks it over
// the original archive.
func (w *workflow) finish(ctx context.Context, final Finalizer, scratch, archive m.Path, report *m.Report) error {
	if err := final.RefreshManifests(ctx, scratch, report); err != nil {
		return err
	}

	if err := w.archives.Pack(scratch, archive); err != nil {
		return fmt.Errorf("repacking %s: %w", archive, err)
	}

	return nil
}

// relocate runs the pipeline over one package root up to the rewrite. The
// returned run is never nil.
func (w *workflow) relocate(ctx context.Context, root m.Path, opts Options) (*Run, error) {
	run := NewRun(root, opts, w.logger)

	scanner := NewScanner(w.fs, w.binaries, run.Options, w.logger)
	classifier := NewClassifier(w.fs, root, run.Options)
	relocator := NewRelocator(w.fs, w.binaries, w.logger)
	rewriter := NewRewriter(w.binaries, w.logger)

	steps := []struct {
		stage m.Stage
		do    func() error
	}{
		{m.StageScanned, func() error {
			graph, warnings, err := scanner.Scan(ctx, root)
			if err != nil {
				return err
			}

			run.Graph = graph
			for _, warning := range warnings {
				run.Warn(warning)
			}

			return nil
		}},
		{m.StageClassified, func() error {
			run.Edges = classifyAll(run.Graph, classifier, run)
			return nil
		}},
		{m.StagePlanned, func() error {
			if err := relocator.Plan(ctx, run, classifier); err != nil {
				return err
			}

			return run.strictFailure()
		}},
		{m.StageCopied, func() error { return relocator.Copy(ctx, run) }},
		{m.StageRewritten, func() error { return rewriter.Apply(ctx, run, rewriter.Plan(run)) }},
	}

	for _, step := range steps {
		if err := step.do(); err != nil {
			return run, run.Abort(err)
		}

		if err := run.Advance(step.stage); err != nil {
			return run, run.Abort(err)
		}
	}

	return run, nil
}

// scan builds and classifies the graph of one root without mutating it.
func (w *workflow) scan(ctx context.Context, root m.Path, opts Options) (m.ScanResult, error) {
	opts = opts.normalized()

	graph, warnings, err := NewScanner(w.fs, w.binaries, opts, w.logger).Scan(ctx, root)
	if err != nil {
		return m.ScanResult{}, err
	}

	run := NewRun(root, opts, nil)
	edges := classifyAll(graph, NewClassifier(w.fs, root, opts), run)

	return m.ScanResult{
		Root:     root,
		Graph:    graph,
		Edges:    edges,
		Warnings: append(warnings, run.Report.Warnings...),
	}, nil
}

// classifyAll classifies every edge of graph, warning about unresolvable
// ones on run.
func classifyAll(graph *m.DependencyGraph, classifier Classifier, run *Run) []m.DependencyEdge {
	edges := graph.Edges()

	for i, e := range edges {
		edges[i] = classifier.Classify(graph.Binaries[e.Dependent], e.Declared)
		if edges[i].Class == m.ClassUnresolvable {
			run.Warn(unresolvableWarning(edges[i]))
		}
	}

	return edges
}

func (w *workflow) resolveDir(root m.Path) (m.Path, error) {
	realRoot, err := w.fs.RealPath(root)
	if err != nil {
		return "", fmt.Errorf("root path error: %w", err)
	}

	info, err := w.fs.FileInfo(realRoot)
	if err != nil {
		return "", fmt.Errorf("root path error: %w", err)
	}

	if !info.IsDir() {
		return "", fmt.Errorf("root path error: %s is not a directory", root)
	}

	return realRoot, nil
}

// unpack extracts archive into a fresh scratch directory and returns its
// real path with a cleanup function.
func (w *workflow) unpack(archive m.Path) (m.Path, func(), error) {
	if !w.archives.Supports(archive) {
		return "", nil, fmt.Errorf("%w: %s", adapter.ErrUnsupportedArchive, archive)
	}

	tmp, err := w.fs.CreateTempDir("libpack-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating scratch directory: %w", err)
	}

	cleanup := func() {
		if err := w.fs.RemoveAll(tmp); err != nil {
			w.logger.Warn("removing scratch directory", "path", tmp, "err", err)
		}
	}

	scratch, err := w.fs.RealPath(tmp)
	if err != nil {
		cleanup()
		return "", nil, err
	}

	if err := w.archives.Unpack(archive, scratch); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("unpacking %s: %w", archive, err)
	}

	return scratch, cleanup, nil
}

// packageRoots returns the top-level package directories of an unpacked
// archive, or the archive root itself.
func (w *workflow) packageRoots(scratch m.Path, opts Options) ([]m.Path, error) {
	if !opts.PackageDirs {
		return []m.Path{scratch}, nil
	}

	var roots []m.Path

	err := w.fs.Walk(scratch, false, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if path == string(scratch) || !info.IsDir() {
			return nil
		}

		if w.fs.IsFile(w.fs.JoinPath(path, packageMarker)) {
			roots = append(roots, m.Path(path))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(roots) == 0 {
		return []m.Path{scratch}, nil
	}

	slices.Sort(roots)

	return roots, nil
}

func relPath(base, p m.Path) m.Path {
	if !under(string(p), string(base)) {
		return p
	}

	rel, err := filepath.Rel(string(base), string(p))
	if err != nil {
		return p
	}

	return m.Path(filepath.ToSlash(rel))
}

func relativizeScan(res m.ScanResult, base m.Path) m.ScanResult {
	graph := m.NewDependencyGraph()

	for _, p := range res.Graph.BinaryPaths() {
		bin := res.Graph.Binaries[p]
		bin.Path = relPath(base, bin.Path)
		graph.Add(bin)
	}

	edges := make([]m.DependencyEdge, len(res.Edges))
	for i, e := range res.Edges {
		e.Dependent = relPath(base, e.Dependent)
		e.Resolved = relPath(base, e.Resolved)
		edges[i] = e
	}

	res.Graph = graph
	res.Edges = edges
	res.Warnings = relativizeWarnings(res.Warnings, base)

	return res
}

func relativizeReport(r m.Report, base m.Path) m.Report {
	bundled := make([]m.Relocation, len(r.Bundled))
	for i, b := range r.Bundled {
		b.Destination = relPath(base, b.Destination)
		bundled[i] = b
	}

	r.Bundled = bundled
	r.Rewritten = relativizePaths(r.Rewritten, base)
	r.Signed = relativizePaths(r.Signed, base)
	r.Manifest = relativizePaths(r.Manifest, base)
	r.Warnings = relativizeWarnings(r.Warnings, base)

	return r
}

func relativizePaths(paths []m.Path, base m.Path) []m.Path {
	if paths == nil {
		return nil
	}

	out := make([]m.Path, len(paths))
	for i, p := range paths {
		out[i] = relPath(base, p)
	}

	return out
}

func relativizeWarnings(warnings []m.Warning, base m.Path) []m.Warning {
	if warnings == nil {
		return nil
	}

	out := make([]m.Warning, len(warnings))
	for i, w := range warnings {
		w.Binary = relPath(base, w.Binary)
		if strings.HasPrefix(w.Dependency, string(base)) {
			w.Dependency = string(relPath(base, m.Path(w.Dependency)))
		}

		out[i] = w
	}

	return out
}

// IsFatal reports whether err aborted a run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAborted)
}
