// Package model defines the data structures shared by the relocation pipeline.
package model

// Path represents a file system path.
type Path string

// Binary is a compiled object (executable, shared library or extension
// module) found in a package or copied into its bundling subdirectory.
type Binary struct {
	Path Path
	// ID is the install name other binaries use to reference this one. Empty
	// for executables and loadable bundles.
	ID string
	// Dependencies are the declared dependency paths in load order, with
	// duplicates removed.
	Dependencies []string
	// Partial lists dependencies declared by some but not all architecture
	// slices of a universal binary.
	Partial []string
	// SearchPaths are the runtime search-path tokens (rpaths) in load order.
	SearchPaths []string
	Arches      []string
	Signed      bool
}

// HasID reports whether the binary carries a self-identifier.
func (b Binary) HasID() bool {
	return b.ID != ""
}

// Classification tells how a dependency relates to the package being relocated.
type Classification string

const (
	// ClassSystem marks dependencies provided by the platform base system.
	ClassSystem Classification = "system"
	// ClassOwned marks dependencies that already live inside the package.
	ClassOwned Classification = "owned"
	// ClassExternal marks dependencies that must be bundled.
	ClassExternal Classification = "external"
	// ClassUnresolvable marks dependencies that map to no file on any search path.
	ClassUnresolvable Classification = "unresolvable"
)

// DependencyEdge is a directed relation from a binary to a declared
// dependency path. Resolved and Class are filled in by classification.
type DependencyEdge struct {
	Dependent Path           `yaml:"dependent"`
	Declared  string         `yaml:"declared"`
	Resolved  Path           `yaml:"resolved,omitempty"`
	Class     Classification `yaml:"class"`
	// SearchPath is the search path entry an @rpath reference resolved
	// through, as declared by the dependent.
	SearchPath string `yaml:"search_path,omitempty"`
}
