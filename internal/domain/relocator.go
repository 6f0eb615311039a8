package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/mouse-blink/libpack/internal/adapter"
	m "github.com/mouse-blink/libpack/internal/model"
)

const collisionSuffixLen = 8

// Relocator chooses a bundle destination for every external dependency in
// the transitive closure and copies them into the bundling subdirectory.
type Relocator interface {
	// Plan discovers the transitive closure of external dependencies without
	// touching the package. Libraries are inspected at their original
	// location and their dependencies resolved from there.
	Plan(ctx context.Context, run *Run, classifier Classifier) error
	// Copy materializes the plan.
	Copy(ctx context.Context, run *Run) error
}

type relocator struct {
	fs       adapter.PackageFSAdapter
	binaries adapter.BinaryAdapter
	logger   *log.Logger
}

// NewRelocator constructs a Relocator.
func NewRelocator(fs adapter.PackageFSAdapter, binaries adapter.BinaryAdapter, logger *log.Logger) Relocator {
	return &relocator{fs: fs, binaries: binaries, logger: logger}
}

func (rl *relocator) Plan(ctx context.Context, run *Run, classifier Classifier) error {
	var queue []m.Path

	enqueue := func(source m.Path) {
		if _, added := run.Plan.Insert(source, rl.pick(run, source)); added {
			queue = append(queue, source)
		}
	}

	var initial []m.Path

	for _, edge := range run.Edges {
		if edge.Class == m.ClassExternal && !slices.Contains(initial, edge.Resolved) {
			initial = append(initial, edge.Resolved)
		}
	}

	slices.Sort(initial)

	for _, source := range initial {
		enqueue(source)
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		source := queue[0]
		queue = queue[1:]

		lib, ok, err := rl.binaries.Inspect(source)
		if err != nil {
			run.Warn(m.Warning{Kind: m.WarnUnreadable, Binary: source, Message: err.Error()})
			continue
		}

		if !ok {
			run.Warn(m.Warning{Kind: m.WarnUnreadable, Binary: source, Message: "bundled dependency is not a recognized binary"})
			continue
		}

		run.Libraries[source] = lib

		for _, dep := range lib.Partial {
			run.Warn(m.Warning{
				Kind:       m.WarnArchMismatch,
				Binary:     source,
				Dependency: dep,
				Message:    "dependency is not declared by every architecture",
			})
		}

		edges := make([]m.DependencyEdge, 0, len(lib.Dependencies))

		for _, dep := range lib.Dependencies {
			edge := classifier.Classify(lib, dep)
			edges = append(edges, edge)

			switch edge.Class {
			case m.ClassExternal:
				enqueue(edge.Resolved)
			case m.ClassUnresolvable:
				run.Warn(unresolvableWarning(edge))
			}
		}

		run.LibraryEdges[source] = edges
	}

	if rl.logger != nil {
		rl.logger.Debug("planned", "root", run.Root, "libraries", run.Plan.Len())
	}

	for _, r := range run.Plan.Relocations() {
		if r.Renamed {
			run.Warn(m.Warning{
				Kind:       m.WarnNameCollision,
				Binary:     r.Source,
				Dependency: string(r.Destination),
				Message:    fmt.Sprintf("%v: bundled as %s", ErrNameCollision, filepath.Base(string(r.Destination))),
			})
		}
	}

	return nil
}

// pick returns the destination chooser for source. The plain base name is
// used unless another planned source holds it or a different file already
// occupies it in the bundling subdirectory.
func (rl *relocator) pick(run *Run, source m.Path) func(taken func(m.Path) bool) m.Relocation {
	return func(taken func(m.Path) bool) m.Relocation {
		base := filepath.Base(string(source))
		dest := m.Path(filepath.Join(string(run.BundleDir), base))

		if !taken(dest) && !rl.occupied(dest, source) {
			return m.Relocation{Destination: dest}
		}

		return m.Relocation{
			Destination: m.Path(filepath.Join(string(run.BundleDir), disambiguate(base, source))),
			Renamed:     true,
		}
	}
}

// occupied reports whether dest exists with content other than source's.
func (rl *relocator) occupied(dest, source m.Path) bool {
	if !rl.fs.IsFile(dest) {
		return false
	}

	same, err := rl.fs.SameContent(dest, source)

	return err != nil || !same
}

// disambiguate inserts a short digest of source before the first dot of
// base: libz.1.dylib becomes libz-1a2b3c4d.1.dylib.
func disambiguate(base string, source m.Path) string {
	sum := sha256.Sum256([]byte(source))
	suffix := "-" + hex.EncodeToString(sum[:])[:collisionSuffixLen]

	if len(base) > 1 {
		if i := strings.IndexByte(base[1:], '.'); i >= 0 {
			return base[:i+1] + suffix + base[i+1:]
		}
	}

	return base + suffix
}

func (rl *relocator) Copy(ctx context.Context, run *Run) error {
	relocations := run.Plan.Relocations()
	if len(relocations) == 0 {
		return nil
	}

	if err := rl.fs.MkdirAll(run.BundleDir); err != nil {
		return fmt.Errorf("creating %s: %w", run.BundleDir, err)
	}

	for _, r := range relocations {
		if err := ctx.Err(); err != nil {
			rl.dropEmptyBundle(run)
			return err
		}

		if rl.fs.IsFile(r.Destination) {
			same, err := rl.fs.SameContent(r.Source, r.Destination)
			if err == nil && same {
				continue
			}
		}

		if err := rl.fs.CopyFile(r.Source, r.Destination); err != nil {
			rl.dropEmptyBundle(run)
			return fmt.Errorf("copying %s: %w", r.Source, err)
		}

		rl.binaries.Forget(r.Destination)

		if rl.logger != nil {
			rl.logger.Info("bundled", "source", r.Source, "destination", r.Destination)
		}
	}

	run.Report.Bundled = relocations

	return nil
}

// dropEmptyBundle removes the bundling subdirectory again when a failed copy
// left nothing in it.
func (rl *relocator) dropEmptyBundle(run *Run) {
	if empty, err := rl.fs.IsEmptyDir(run.BundleDir); err == nil && empty {
		_ = rl.fs.RemoveAll(run.BundleDir)
	}
}

func unresolvableWarning(edge m.DependencyEdge) m.Warning {
	return m.Warning{
		Kind:       m.WarnUnresolvable,
		Binary:     edge.Dependent,
		Dependency: edge.Declared,
		Message:    "dependency not found on any search path",
	}
}
