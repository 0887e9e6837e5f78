package databin

import (
	"fmt"
	"sort"
	"sync"
)

// Kind distinguishes the two writable bin namespaces.
type Kind string

const (
	// KindColumn holds measured quantities destined for the run's data
	// table.
	KindColumn Kind = "column"

	// KindParameter holds named scratch values used for control flow.
	KindParameter Kind = "parameter"
)

// Ref addresses one writable bin.
type Ref struct {
	Kind Kind   `json:"kind"`
	Name string `json:"name"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s/%s", r.Kind, r.Name)
}

// Observer receives every bin write, after the store has been
// updated. Observers are called synchronously on the writing
// goroutine and must not block.
type Observer func(ref Ref, value string)

// Store is a run-scoped bin store. All methods are thread-safe.
type Store struct {
	mu         sync.RWMutex
	columns    map[string]string
	parameters map[string]string
	constants  map[string]string
	observers  []Observer
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		columns:    make(map[string]string),
		parameters: make(map[string]string),
		constants:  make(map[string]string),
	}
}

// SetConstant defines a named constant. Constants are fixed context
// for a run (run name, operator, date) and are set before execution
// starts, never by actions.
func (s *Store) SetConstant(name, value string) {
	s.mu.Lock()
	s.constants[name] = value
	s.mu.Unlock()
}

// Set writes a formatted value into a bin, replacing any previous
// value, and notifies observers.
func (s *Store) Set(ref Ref, value string) {
	s.mu.Lock()
	switch ref.Kind {
	case KindParameter:
		s.parameters[ref.Name] = value
	default:
		s.columns[ref.Name] = value
	}
	observers := s.observers
	s.mu.Unlock()

	for _, observe := range observers {
		observe(ref, value)
	}
}

// Get reads the current value of a bin.
func (s *Store) Get(ref Ref) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch ref.Kind {
	case KindParameter:
		v, ok := s.parameters[ref.Name]
		return v, ok
	default:
		v, ok := s.columns[ref.Name]
		return v, ok
	}
}

// Constant returns the named constant. Part of expr.Context.
func (s *Store) Constant(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.constants[name]
	return v, ok
}

// Column returns the latest value of the named column. Part of
// expr.Context.
func (s *Store) Column(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.columns[name]
	return v, ok
}

// Parameter returns the latest value of the named parameter. Part of
// expr.Context.
func (s *Store) Parameter(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.parameters[name]
	return v, ok
}

// Subscribe registers an observer for all subsequent writes.
func (s *Store) Subscribe(observer Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, observer)
	s.mu.Unlock()
}

// Names returns the sorted bin names of one kind.
func (s *Store) Names(kind Kind) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var m map[string]string
	switch kind {
	case KindParameter:
		m = s.parameters
	default:
		m = s.columns
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of all bins of one kind.
func (s *Store) Snapshot(kind Kind) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var m map[string]string
	switch kind {
	case KindParameter:
		m = s.parameters
	default:
		m = s.columns
	}
	out := make(map[string]string, len(m))
	for name, value := range m {
		out[name] = value
	}
	return out
}
