package module

import "sort"

// Direction distinguishes a module's input ports from its output ports.
type Direction uint8

const (
	DirectionInput Direction = iota
	DirectionOutput
)

func (d Direction) String() string {
	if d == DirectionOutput {
		return "output"
	}
	return "input"
}

// Port is a named endpoint a module exposes for connecting to other
// modules' ports.
type Port struct {
	Name        string
	Description string
	Direction   Direction
	Optional    bool
}

// PortSet is the keyed-by-name collection of ports a module declares.
// Lookup is by name; iteration order is not guaranteed to match
// declaration order.
type PortSet struct {
	ports map[string]Port
}

// NewPortSet returns an empty PortSet.
func NewPortSet() *PortSet {
	return &PortSet{ports: make(map[string]Port)}
}

// Declare registers a port. Declaring the same name twice overwrites the
// prior declaration.
func (s *PortSet) Declare(p Port) {
	s.ports[p.Name] = p
}

// Get returns the named port and whether it was declared.
func (s *PortSet) Get(name string) (Port, bool) {
	p, ok := s.ports[name]
	return p, ok
}

// Names returns every declared port name in sorted order.
func (s *PortSet) Names() []string {
	out := make([]string, 0, len(s.ports))
	for name := range s.ports {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Inputs returns every declared input port name in sorted order.
func (s *PortSet) Inputs() []string {
	return s.filter(DirectionInput)
}

// Outputs returns every declared output port name in sorted order.
func (s *PortSet) Outputs() []string {
	return s.filter(DirectionOutput)
}

func (s *PortSet) filter(dir Direction) []string {
	out := make([]string, 0, len(s.ports))
	for name, p := range s.ports {
		if p.Direction == dir {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
