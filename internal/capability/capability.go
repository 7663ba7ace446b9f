// Package capability implements the Capability Index (component C): a
// compact, read-only advertisement of known intents and their code
// templates, loaded once at startup.
package capability

// Category classifies an intent's effect.
type Category string

const (
	CategoryQuery    Category = "query"
	CategoryMutation Category = "mutation"
	CategoryAnalysis Category = "analysis"
)

// Complexity is a rough sizing hint for the materialized program.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// Entry is the metadata for one known intent.
type Entry struct {
	Name       string
	Category   Category
	Complexity Complexity
	TemplateID string
}

// Index is a process-wide, immutable mapping from intent name to Entry plus
// a mapping from template id to template text. It is built once
// (NewIndex) and never mutated at runtime.
type Index struct {
	entries   map[string]Entry
	templates map[string]string
}

// NewIndex builds an Index from a flat entry list and a template-id to
// template-text mapping. Both inputs are copied so the caller's slices and
// maps may be discarded or mutated afterward without affecting the index.
func NewIndex(entries []Entry, templates map[string]string) *Index {
	idx := &Index{
		entries:   make(map[string]Entry, len(entries)),
		templates: make(map[string]string, len(templates)),
	}
	for _, e := range entries {
		idx.entries[e.Name] = e
	}
	for id, tpl := range templates {
		idx.templates[id] = tpl
	}
	return idx
}

// Lookup returns the Entry for name. A miss returns ok=false; it is not an
// error — the index resolves "unknown" rather than failing the call.
func (idx *Index) Lookup(name string) (Entry, bool) {
	e, ok := idx.entries[name]
	return e, ok
}

// Template returns the template text for a template id.
func (idx *Index) Template(id string) (string, bool) {
	tpl, ok := idx.templates[id]
	return tpl, ok
}

// TemplateFor is a convenience that resolves an intent name straight
// through to its template text.
func (idx *Index) TemplateFor(name string) (string, bool) {
	e, ok := idx.Lookup(name)
	if !ok {
		return "", false
	}
	return idx.Template(e.TemplateID)
}

// Len reports how many intents the index carries.
func (idx *Index) Len() int { return len(idx.entries) }
