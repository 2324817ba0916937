package module

import (
	"fmt"
	"sort"
	"sync"

	"vispipe.io/engine/param"
)

// Parameter is one named, typed, optionally-bounded setting a module
// exposes. Value always carries the parameter's current value; Type
// carries the declared kind and bounds used to validate future sets.
type Parameter struct {
	Name        string
	Description string
	Value       param.Value
	Type        param.Type
}

// ParameterSet is the keyed-by-name collection of parameters a module
// declares. Unlike the original implementation it enforces min/max
// bounds at SetValue rather than only checking them in passing.
type ParameterSet struct {
	mu     sync.RWMutex
	params map[string]*Parameter
}

// NewParameterSet returns an empty ParameterSet.
func NewParameterSet() *ParameterSet {
	return &ParameterSet{params: make(map[string]*Parameter)}
}

// ErrUnknownParameter is returned when a name has no declared parameter.
var ErrUnknownParameter = fmt.Errorf("module: unknown parameter")

// Declare registers a new parameter with an initial value. The initial
// value is validated against typ exactly as SetValue would validate it.
func (s *ParameterSet) Declare(name, description string, initial param.Value, typ param.Type) error {
	if err := validateValue(initial, typ); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params[name] = &Parameter{Name: name, Description: description, Value: initial, Type: typ}
	return nil
}

// Get returns a copy of the named parameter.
func (s *ParameterSet) Get(name string) (Parameter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.params[name]
	if !ok {
		return Parameter{}, false
	}
	return *p, true
}

// SetValue validates v against the declared parameter's Type and, if
// valid, replaces its current value. Fails with ErrUnknownParameter if
// name was never declared, param.ErrTypeMismatch if v.Kind does not
// match the declared kind, or param.ErrOutOfRange if v falls outside a
// declared bound.
func (s *ParameterSet) SetValue(name string, v param.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.params[name]
	if !ok {
		return ErrUnknownParameter
	}
	if err := validateValue(v, p.Type); err != nil {
		return err
	}
	p.Value = v
	return nil
}

// Names returns every declared parameter name in sorted order.
func (s *ParameterSet) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.params))
	for name := range s.params {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// validateValue enforces the declared kind and, for numeric kinds, the
// declared min/max bounds. Sequence and string/bool kinds have no bounds
// to enforce beyond the kind match.
func validateValue(v param.Value, typ param.Type) error {
	if v.Kind != typ.Kind {
		return param.ErrTypeMismatch
	}
	switch typ.Kind {
	case param.KindInt32:
		if typ.MinInt32 != nil && v.Int32 < *typ.MinInt32 {
			return param.ErrOutOfRange
		}
		if typ.MaxInt32 != nil && v.Int32 > *typ.MaxInt32 {
			return param.ErrOutOfRange
		}
	case param.KindFloat32:
		if typ.MinFloat32 != nil && v.Float32 < *typ.MinFloat32 {
			return param.ErrOutOfRange
		}
		if typ.MaxFloat32 != nil && v.Float32 > *typ.MaxFloat32 {
			return param.ErrOutOfRange
		}
	case param.KindInt32Seq:
		for _, x := range v.Int32Seq {
			if typ.MinInt32 != nil && x < *typ.MinInt32 {
				return param.ErrOutOfRange
			}
			if typ.MaxInt32 != nil && x > *typ.MaxInt32 {
				return param.ErrOutOfRange
			}
		}
	case param.KindFloat32Seq:
		for _, x := range v.Float32Seq {
			if typ.MinFloat32 != nil && x < *typ.MinFloat32 {
				return param.ErrOutOfRange
			}
			if typ.MaxFloat32 != nil && x > *typ.MaxFloat32 {
				return param.ErrOutOfRange
			}
		}
	}
	return nil
}
