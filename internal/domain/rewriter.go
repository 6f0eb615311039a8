package domain

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/mouse-blink/libpack/internal/adapter"
	m "github.com/mouse-blink/libpack/internal/model"
)

// Rewriter points every reference to a bundled or owned library at its
// location relative to the referencing binary.
type Rewriter interface {
	// Plan computes the edits needed by the package binaries and the
	// bundled copies. It does not touch the disk.
	Plan(run *Run) []m.Rewrite
	// Apply performs rewrites in order. The first failure is fatal.
	Apply(ctx context.Context, run *Run, rewrites []m.Rewrite) error
}

type rewriter struct {
	binaries adapter.BinaryAdapter
	logger   *log.Logger
}

// NewRewriter constructs a Rewriter.
func NewRewriter(binaries adapter.BinaryAdapter, logger *log.Logger) Rewriter {
	return &rewriter{binaries: binaries, logger: logger}
}

func (rw *rewriter) Plan(run *Run) []m.Rewrite {
	var out []m.Rewrite

	edges := make(map[m.Path][]m.DependencyEdge)
	for _, e := range run.Edges {
		edges[e.Dependent] = append(edges[e.Dependent], e)
	}

	for _, p := range run.Graph.BinaryPaths() {
		r := m.Rewrite{Path: p, Changes: changes(run, filepath.Dir(string(p)), edges[p])}
		if len(r.Changes) > 0 && run.Options.SanitizeRpaths {
			r.DeleteRpaths = staleRpaths(run, run.Graph.Binaries[p].SearchPaths, edges[p], r.Changes)
		}

		if !r.Empty() {
			out = append(out, r)
		}
	}

	for _, reloc := range run.Plan.Relocations() {
		lib, ok := run.Libraries[reloc.Source]
		if !ok {
			continue
		}

		libEdges := run.LibraryEdges[reloc.Source]
		r := m.Rewrite{
			Path:    reloc.Destination,
			Changes: changes(run, filepath.Dir(string(reloc.Destination)), libEdges),
		}

		if id := loaderRef(filepath.Dir(string(reloc.Destination)), reloc.Destination); lib.HasID() && lib.ID != id {
			r.ID = id
		}

		if run.Options.SanitizeRpaths {
			r.DeleteRpaths = staleRpaths(run, lib.SearchPaths, libEdges, r.Changes)
		}

		if !r.Empty() {
			out = append(out, r)
		}
	}

	return out
}

func (rw *rewriter) Apply(ctx context.Context, run *Run, rewrites []m.Rewrite) error {
	for _, r := range rewrites {
		if err := ctx.Err(); err != nil {
			return err
		}

		changed, err := rw.binaries.Rewrite(r)
		if err != nil {
			return &DependencyError{Kind: ErrRewrite, Binary: r.Path, Err: err}
		}

		if !changed {
			continue
		}

		run.Report.Rewritten = append(run.Report.Rewritten, r.Path)

		if rw.logger != nil {
			rw.logger.Debug("rewritten", "binary", r.Path, "references", len(r.Changes), "id", r.ID)
		}
	}

	return nil
}

// changes maps each declared reference that must move to its
// loader-relative replacement as seen from dir.
func changes(run *Run, dir string, edges []m.DependencyEdge) map[string]string {
	out := make(map[string]string)

	for _, e := range edges {
		target, ok := targetOf(run, e)
		if !ok {
			continue
		}

		if ref := loaderRef(dir, target); ref != e.Declared {
			out[e.Declared] = ref
		}
	}

	if len(out) == 0 {
		return nil
	}

	return out
}

// targetOf returns the file a reference must point at after relocation:
// the bundle copy of an external library, or the in-package file an owned
// absolute reference names. Other references stay as declared.
func targetOf(run *Run, e m.DependencyEdge) (m.Path, bool) {
	switch e.Class {
	case m.ClassExternal:
		r, ok := run.Plan.Lookup(e.Resolved)
		return r.Destination, ok
	case m.ClassOwned:
		if !strings.HasPrefix(e.Declared, "@") {
			return e.Resolved, true
		}
	}

	return "", false
}

func loaderRef(dir string, target m.Path) string {
	rel, err := filepath.Rel(dir, string(target))
	if err != nil {
		return string(target)
	}

	return loaderToken + "/" + filepath.ToSlash(rel)
}

// staleRpaths lists absolute search paths outside the package and the
// system prefixes that no surviving @rpath reference resolves through. A
// surviving reference whose search path is unknown keeps every search path.
func staleRpaths(run *Run, searchPaths []string, edges []m.DependencyEdge, rewritten map[string]string) []string {
	needed := make(map[string]bool)

	for _, e := range edges {
		if _, ok := cutToken(e.Declared, rpathToken); !ok {
			continue
		}

		if _, ok := rewritten[e.Declared]; ok {
			continue
		}

		if e.SearchPath == "" {
			return nil
		}

		needed[e.SearchPath] = true
	}

	var out []string

	for _, sp := range searchPaths {
		if !filepath.IsAbs(sp) || needed[sp] {
			continue
		}

		if under(sp, string(run.Root)) || underAny(sp, run.Options.SystemPrefixes) {
			continue
		}

		out = append(out, sp)
	}

	return out
}
