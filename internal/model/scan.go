package model

// ScanResult is the read-only outcome of building the dependency graph of a
// directory tree or package archive.
type ScanResult struct {
	Root     Path             `yaml:"root"`
	Graph    *DependencyGraph `yaml:"-"`
	Edges    []DependencyEdge `yaml:"edges,omitempty"`
	Warnings []Warning        `yaml:"warnings,omitempty"`
}

// Dependents maps every declared dependency to the sorted binaries that
// declare it.
func (r ScanResult) Dependents() map[string][]Path {
	if r.Graph == nil {
		return nil
	}

	out := make(map[string][]Path, len(r.Graph.Dependents))
	for _, dep := range r.Graph.DependencyPaths() {
		out[dep] = r.Graph.DependentsOf(dep)
	}

	return out
}
