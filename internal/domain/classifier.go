package domain

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mouse-blink/libpack/internal/adapter"
	m "github.com/mouse-blink/libpack/internal/model"
)

const (
	loaderToken     = "@loader_path"
	executableToken = "@executable_path"
	rpathToken      = "@rpath"
)

// Classifier partitions declared dependencies into system, owned, external
// and unresolvable ones.
type Classifier interface {
	// Classify resolves declared as seen from dependent, whose Path gives its
	// on-disk location and whose SearchPaths expand @rpath.
	Classify(dependent m.Binary, declared string) m.DependencyEdge
}

type classifier struct {
	fs             adapter.PackageFSAdapter
	root           m.Path
	systemPrefixes []string
	executablePath string
	exclude        []*regexp.Regexp
}

// NewClassifier constructs a Classifier for the package at root, which must
// be a real path. Invalid exclude patterns are ignored; see Options.Validate.
func NewClassifier(fs adapter.PackageFSAdapter, root m.Path, opts Options) Classifier {
	opts = opts.normalized()
	exclude, _ := compileExcludes(opts.Exclude)

	return &classifier{
		fs:             fs,
		root:           root,
		systemPrefixes: opts.SystemPrefixes,
		executablePath: opts.ExecutablePath,
		exclude:        exclude,
	}
}

func (c *classifier) Classify(dependent m.Binary, declared string) m.DependencyEdge {
	edge := m.DependencyEdge{Dependent: dependent.Path, Declared: declared}

	if (filepath.IsAbs(declared) && underAny(declared, c.systemPrefixes)) || c.excluded(declared) {
		edge.Resolved = m.Path(declared)
		edge.Class = m.ClassSystem

		// Excluded @rpath references keep their search path alive.
		if _, isRpath := cutToken(declared, rpathToken); isRpath {
			if _, cand, ok := c.locate(dependent, declared); ok {
				edge.SearchPath = cand.searchPath
			}
		}

		return edge
	}

	resolved, cand, ok := c.locate(dependent, declared)
	if !ok {
		edge.Class = m.ClassUnresolvable
		return edge
	}

	edge.Resolved = resolved
	edge.SearchPath = cand.searchPath

	switch {
	case underAny(string(resolved), c.systemPrefixes):
		edge.Class = m.ClassSystem
	case under(string(resolved), string(c.root)):
		edge.Class = m.ClassOwned
	default:
		edge.Class = m.ClassExternal
	}

	return edge
}

// locate returns the real path of the first existing candidate for declared.
func (c *classifier) locate(dependent m.Binary, declared string) (m.Path, candidate, bool) {
	for _, cand := range c.candidates(dependent, declared) {
		if !c.fs.IsFile(m.Path(cand.path)) {
			continue
		}

		resolved, err := c.fs.RealPath(m.Path(cand.path))
		if err != nil {
			continue
		}

		return resolved, cand, true
	}

	return "", candidate{}, false
}

func (c *classifier) excluded(declared string) bool {
	for _, re := range c.exclude {
		if re.MatchString(declared) {
			return true
		}
	}

	return false
}

type candidate struct {
	path string
	// searchPath is the dependent's search path entry path was built from.
	searchPath string
}

// candidates lists the files declared may name, in resolution order.
func (c *classifier) candidates(dependent m.Binary, declared string) []candidate {
	loaderDir := filepath.Dir(string(dependent.Path))

	if rest, ok := cutToken(declared, rpathToken); ok {
		out := make([]candidate, 0, len(dependent.SearchPaths))

		for _, sp := range dependent.SearchPaths {
			if strings.HasPrefix(sp, rpathToken) {
				continue
			}

			dir := c.expand(sp, loaderDir)
			if !filepath.IsAbs(dir) {
				continue
			}

			out = append(out, candidate{path: filepath.Join(dir, rest), searchPath: sp})
		}

		return out
	}

	expanded := c.expand(declared, loaderDir)
	if filepath.IsAbs(expanded) {
		return []candidate{{path: expanded}}
	}

	return []candidate{{path: filepath.Join(loaderDir, expanded)}}
}

// expand substitutes the loader and executable tokens of p.
func (c *classifier) expand(p, loaderDir string) string {
	if rest, ok := cutToken(p, loaderToken); ok {
		return filepath.Join(loaderDir, rest)
	}

	if rest, ok := cutToken(p, executableToken); ok {
		base := c.executablePath
		if base == "" {
			base = loaderDir
		}

		return filepath.Join(base, rest)
	}

	return p
}

// cutToken strips token and the separator after it from the front of p.
func cutToken(p, token string) (string, bool) {
	if p == token {
		return "", true
	}

	rest, ok := strings.CutPrefix(p, token+"/")

	return rest, ok
}

func under(p, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return strings.HasPrefix(p, "/")
	}

	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

func underAny(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if under(p, prefix) {
			return true
		}
	}

	return false
}
