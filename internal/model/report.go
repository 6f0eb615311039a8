package model

// WarningKind names a non-fatal condition found during a run.
type WarningKind string

const (
	// WarnUnresolvable is reported for dependencies found on no search path.
	WarnUnresolvable WarningKind = "unresolvable-dependency"
	// WarnNameCollision is reported when a destination name had to be disambiguated.
	WarnNameCollision WarningKind = "name-collision"
	// WarnArchMismatch is reported when slices of a universal binary disagree.
	WarnArchMismatch WarningKind = "arch-mismatch"
	// WarnUnreadable is reported for files that look like binaries but fail to parse.
	WarnUnreadable WarningKind = "unreadable-binary"
)

// Warning is a per-file issue surfaced in the summary of a run.
type Warning struct {
	Kind       WarningKind `yaml:"kind"`
	Binary     Path        `yaml:"binary"`
	Dependency string      `yaml:"dependency,omitempty"`
	Message    string      `yaml:"message,omitempty"`
}

// Report represents the outcome of a relocation run.
type Report struct {
	Root      Path         `yaml:"root"`
	Stage     Stage        `yaml:"stage"`
	Bundled   []Relocation `yaml:"bundled,omitempty"`
	Rewritten []Path       `yaml:"rewritten,omitempty"`
	Signed    []Path       `yaml:"signed,omitempty"`
	// Manifest lists the manifests that were refreshed.
	Manifest []Path    `yaml:"manifest,omitempty"`
	Warnings []Warning `yaml:"warnings,omitempty"`
}

// Changed reports whether the run copied or rewrote anything.
func (r *Report) Changed() bool {
	return len(r.Bundled) > 0 || len(r.Rewritten) > 0
}

// Merge appends the results of another package root into r.
func (r *Report) Merge(other Report) {
	r.Bundled = append(r.Bundled, other.Bundled...)
	r.Rewritten = append(r.Rewritten, other.Rewritten...)
	r.Signed = append(r.Signed, other.Signed...)
	r.Manifest = append(r.Manifest, other.Manifest...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}
