package domain

import (
	"slices"
	"sync"
)

// ResultKey addresses one collection in a ResultSet.
type ResultKey struct {
	Cycle  Cycle
	Hazard Hazard
}

// ResultSet maps (cycle, hazard) to extracted collections. It is safe for
// concurrent Put and AddDiagnostic calls while extraction workers run.
type ResultSet struct {
	Key ArchiveKey

	mu          sync.Mutex
	collections map[ResultKey]HazardCollection
	diagnostics []Diagnostic
}

// NewResultSet creates an empty result set for an archive.
func NewResultSet(key ArchiveKey) *ResultSet {
	return &ResultSet{Key: key, collections: make(map[ResultKey]HazardCollection)}
}

// Put stores a collection under its (cycle, hazard) key.
func (r *ResultSet) Put(c HazardCollection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collections[ResultKey{Cycle: c.Cycle, Hazard: c.Hazard}] = c
}

// Get returns the collection for a pair.
func (r *ResultSet) Get(cycle Cycle, hazard Hazard) (HazardCollection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.collections[ResultKey{Cycle: cycle, Hazard: hazard}]
	return c, ok
}

// Len returns the number of (cycle, hazard) entries.
func (r *ResultSet) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.collections)
}

// AddDiagnostic records a locally recovered condition.
func (r *ResultSet) AddDiagnostic(d ...Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diagnostics = append(r.diagnostics, d...)
}

// Diagnostics returns the recorded diagnostics in the order they were added.
func (r *ResultSet) Diagnostics() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.diagnostics)
}

// HasData reports whether any collection carries geometry.
func (r *ResultSet) HasData() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.collections {
		if !c.Empty() {
			return true
		}
	}
	return false
}

// Entries returns every collection ordered by cycle, then hazard table order.
func (r *ResultSet) Entries() []HazardCollection {
	r.mu.Lock()
	defer r.mu.Unlock()

	order := make(map[Hazard]int)
	for i, h := range HazardsFor(r.Key.Type) {
		order[h] = i
	}

	out := make([]HazardCollection, 0, len(r.collections))
	for _, c := range r.collections {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b HazardCollection) int {
		if a.Cycle != b.Cycle {
			return int(a.Cycle) - int(b.Cycle)
		}
		return order[a.Hazard] - order[b.Hazard]
	})
	return out
}

// Cycles returns the distinct cycles that have entries, earliest first.
func (r *ResultSet) Cycles() []Cycle {
	var out []Cycle
	for _, c := range r.Entries() {
		if !slices.Contains(out, c.Cycle) {
			out = append(out, c.Cycle)
		}
	}
	return out
}
