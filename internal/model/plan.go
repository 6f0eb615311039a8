package model

import "sync"

// Relocation is the destination chosen for one external dependency.
type Relocation struct {
	// Source is the resolved real path of the external dependency.
	Source Path `yaml:"source"`
	// Destination is the path of the copy inside the bundling subdirectory.
	Destination Path `yaml:"destination"`
	// Renamed is set when the destination base name was disambiguated.
	Renamed bool `yaml:"renamed,omitempty"`
}

// RelocationPlan maps external dependency sources to exactly one destination
// for the duration of a run. It is safe for concurrent use.
type RelocationPlan struct {
	mu       sync.Mutex
	bySource map[Path]Relocation
	byDest   map[Path]Path
	order    []Path
}

// NewRelocationPlan returns an empty plan.
func NewRelocationPlan() *RelocationPlan {
	return &RelocationPlan{
		bySource: make(map[Path]Relocation),
		byDest:   make(map[Path]Path),
	}
}

// Insert plans source unless it is already planned. pick is called under the
// plan lock with a predicate reporting whether a destination is already taken
// by another source, so check-and-insert is atomic. The returned bool is true
// only when a new entry was added.
func (p *RelocationPlan) Insert(source Path, pick func(taken func(Path) bool) Relocation) (Relocation, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r, ok := p.bySource[source]; ok {
		return r, false
	}

	r := pick(func(dest Path) bool {
		owner, ok := p.byDest[dest]
		return ok && owner != source
	})
	r.Source = source

	p.bySource[source] = r
	p.byDest[r.Destination] = source
	p.order = append(p.order, source)

	return r, true
}

// Lookup returns the relocation planned for source.
func (p *RelocationPlan) Lookup(source Path) (Relocation, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.bySource[source]

	return r, ok
}

// Relocations returns the planned relocations in insertion order.
func (p *RelocationPlan) Relocations() []Relocation {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Relocation, 0, len(p.order))
	for _, src := range p.order {
		out = append(out, p.bySource[src])
	}

	return out
}

// Len returns the number of planned relocations.
func (p *RelocationPlan) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.order)
}
