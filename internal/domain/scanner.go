package domain

import (
	"context"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/mouse-blink/libpack/internal/adapter"
	m "github.com/mouse-blink/libpack/internal/model"
)

// Scanner builds the dependency graph of a directory tree.
type Scanner interface {
	// Scan inspects every regular file below root. Files that are not
	// binaries are skipped; binaries that fail to parse become warnings.
	Scan(ctx context.Context, root m.Path) (*m.DependencyGraph, []m.Warning, error)
}

type scanner struct {
	fs         adapter.PackageFSAdapter
	binaries   adapter.BinaryAdapter
	parallel   int
	extensions []string
	logger     *log.Logger
}

// NewScanner constructs a Scanner inspecting up to opts.Parallel files at
// once.
func NewScanner(fs adapter.PackageFSAdapter, binaries adapter.BinaryAdapter, opts Options, logger *log.Logger) Scanner {
	opts = opts.normalized()

	return &scanner{
		fs:         fs,
		binaries:   binaries,
		parallel:   opts.Parallel,
		extensions: opts.Extensions,
		logger:     logger,
	}
}

type inspected struct {
	bin m.Binary
	ok  bool
	err error
}

func (s *scanner) Scan(ctx context.Context, root m.Path) (*m.DependencyGraph, []m.Warning, error) {
	paths, err := s.collect(root)
	if err != nil {
		return nil, nil, err
	}

	results := make([]inspected, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)

	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			bin, ok, err := s.binaries.Inspect(p)
			results[i] = inspected{bin: bin, ok: ok, err: err}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	graph := m.NewDependencyGraph()

	var warnings []m.Warning

	for i, res := range results {
		if res.err != nil {
			warnings = append(warnings, m.Warning{
				Kind:    m.WarnUnreadable,
				Binary:  paths[i],
				Message: res.err.Error(),
			})

			continue
		}

		if !res.ok {
			continue
		}

		graph.Add(res.bin)

		for _, dep := range res.bin.Partial {
			warnings = append(warnings, m.Warning{
				Kind:       m.WarnArchMismatch,
				Binary:     paths[i],
				Dependency: dep,
				Message:    "dependency is not declared by every architecture",
			})
		}
	}

	if s.logger != nil {
		s.logger.Debug("scanned", "root", root, "files", len(paths), "binaries", graph.Len())
	}

	return graph, warnings, nil
}

// collect returns the sorted regular files below root that pass the
// extension filter. Symlinks are not followed.
func (s *scanner) collect(root m.Path) ([]m.Path, error) {
	var paths []m.Path

	err := s.fs.Walk(root, true, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.Mode().IsRegular() || !s.wanted(path) {
			return nil
		}

		paths = append(paths, m.Path(path))

		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(paths)

	return paths, nil
}

func (s *scanner) wanted(path string) bool {
	if len(s.extensions) == 0 {
		return true
	}

	lower := strings.ToLower(path)

	for _, ext := range s.extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}

	return false
}
