package model

// Rewrite lists the reference changes applied to one binary.
type Rewrite struct {
	Path Path
	// ID replaces the self-identifier when non-empty.
	ID string
	// Changes maps declared dependency paths to their replacements.
	Changes map[string]string
	// DeleteRpaths lists search-path tokens to drop.
	DeleteRpaths []string
}

// Empty reports whether the rewrite changes nothing.
func (r Rewrite) Empty() bool {
	return r.ID == "" && len(r.Changes) == 0 && len(r.DeleteRpaths) == 0
}
