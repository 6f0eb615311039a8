package model

import (
	"slices"
	"sort"
)

// DependencyGraph maps declared dependency paths to the binaries referencing
// them, and binaries to their declared dependencies. Every dependency key was
// found in at least one binary added to the graph.
type DependencyGraph struct {
	Binaries   map[Path]Binary
	Dependents map[string]map[Path]struct{}
}

// NewDependencyGraph returns an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		Binaries:   make(map[Path]Binary),
		Dependents: make(map[string]map[Path]struct{}),
	}
}

// Add records a binary and one edge per declared dependency.
func (g *DependencyGraph) Add(b Binary) {
	g.Binaries[b.Path] = b

	for _, dep := range b.Dependencies {
		set, ok := g.Dependents[dep]
		if !ok {
			set = make(map[Path]struct{})
			g.Dependents[dep] = set
		}

		set[b.Path] = struct{}{}
	}
}

// Merge adds every binary of other into g.
func (g *DependencyGraph) Merge(other *DependencyGraph) {
	if other == nil {
		return
	}

	for _, p := range other.BinaryPaths() {
		g.Add(other.Binaries[p])
	}
}

// BinaryPaths returns the paths of all binaries, sorted.
func (g *DependencyGraph) BinaryPaths() []Path {
	paths := make([]Path, 0, len(g.Binaries))
	for p := range g.Binaries {
		paths = append(paths, p)
	}

	slices.Sort(paths)

	return paths
}

// DependencyPaths returns every declared dependency path, sorted.
func (g *DependencyGraph) DependencyPaths() []string {
	deps := make([]string, 0, len(g.Dependents))
	for dep := range g.Dependents {
		deps = append(deps, dep)
	}

	sort.Strings(deps)

	return deps
}

// DependentsOf returns the binaries that declare dep, sorted.
func (g *DependencyGraph) DependentsOf(dep string) []Path {
	set := g.Dependents[dep]

	paths := make([]Path, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}

	slices.Sort(paths)

	return paths
}

// Edges returns one unclassified edge per (binary, dependency) pair in
// deterministic order.
func (g *DependencyGraph) Edges() []DependencyEdge {
	var edges []DependencyEdge

	for _, p := range g.BinaryPaths() {
		for _, dep := range g.Binaries[p].Dependencies {
			edges = append(edges, DependencyEdge{Dependent: p, Declared: dep})
		}
	}

	return edges
}

// Len returns the number of binaries in the graph.
func (g *DependencyGraph) Len() int {
	return len(g.Binaries)
}
