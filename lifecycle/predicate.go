package lifecycle

import (
	"fmt"
	"sort"
	"sync"
)

// Predicate is a named match strategy referenced from policy documents by
// name, keeping policies serializable and auditable.
type Predicate interface {
	Name() string
	Matches(*FileMetadata) bool
}

type funcPredicate struct {
	name string
	fn   func(*FileMetadata) bool
}

func (p *funcPredicate) Name() string              { return p.name }
func (p *funcPredicate) Matches(f *FileMetadata) bool { return p.fn(f) }

// NewPredicate adapts a function to the Predicate interface.
func NewPredicate(name string, fn func(*FileMetadata) bool) Predicate {
	return &funcPredicate{name: name, fn: fn}
}

// PredicateRegistry resolves predicate names during policy validation and
// rule compilation.
type PredicateRegistry struct {
	mu    sync.RWMutex
	preds map[string]Predicate
}

// NewPredicateRegistry returns an empty registry.
func NewPredicateRegistry() *PredicateRegistry {
	return &PredicateRegistry{preds: make(map[string]Predicate)}
}

// Register adds p under its name. Duplicate names are an error.
func (r *PredicateRegistry) Register(p Predicate) error {
	if p == nil || p.Name() == "" {
		return fmt.Errorf("lifecycle: predicate must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.preds[p.Name()]; ok {
		return fmt.Errorf("lifecycle: predicate %q already registered", p.Name())
	}
	r.preds[p.Name()] = p
	return nil
}

// Has reports whether name is registered. A nil registry has none.
func (r *PredicateRegistry) Has(name string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.preds[name]
	return ok
}

// Get returns the predicate registered under name.
func (r *PredicateRegistry) Get(name string) (Predicate, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.preds[name]
	return p, ok
}

// Names returns the registered names, sorted.
func (r *PredicateRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.preds))
	for n := range r.preds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
