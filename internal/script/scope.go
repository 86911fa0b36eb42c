package script

import "sort"

// Scope is a named variable environment. Each live instance owns one; it is
// the evaluation context for every script that instance runs. Lookup is by
// name and last-write-wins, so transient bindings like Self and Target are
// simply re-set before each evaluating call.
type Scope struct {
	vars map[string]any
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{vars: make(map[string]any)}
}

// Set binds name to value, replacing any previous binding.
func (s *Scope) Set(name string, value any) {
	if s == nil {
		return
	}
	s.vars[name] = value
}

// Get returns the bound value.
func (s *Scope) Get(name string) (any, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.vars[name]
	return v, ok
}

// Delete removes a binding.
func (s *Scope) Delete(name string) {
	if s == nil {
		return
	}
	delete(s.vars, name)
}

// Number returns the binding coerced to float64.
func (s *Scope) Number(name string) (float64, bool) {
	v, ok := s.Get(name)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// Names returns the bound names, sorted, for deterministic iteration.
func (s *Scope) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.vars))
	for name := range s.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of bindings.
func (s *Scope) Len() int {
	if s == nil {
		return 0
	}
	return len(s.vars)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
