package monitor

import "sort"

// Registry is the set of input filenames processed in this run. It only
// grows and is not persisted, so a restart processes every file again.
// It is owned by the monitor goroutine and is not safe for concurrent use.
type Registry struct {
	seen map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{seen: make(map[string]struct{})}
}

// Has reports whether name was processed.
func (r *Registry) Has(name string) bool {
	_, ok := r.seen[name]
	return ok
}

// Add records name as processed.
func (r *Registry) Add(name string) {
	r.seen[name] = struct{}{}
}

// Len returns the number of processed files.
func (r *Registry) Len() int {
	return len(r.seen)
}

// Names returns the processed filenames in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.seen))
	for name := range r.seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
