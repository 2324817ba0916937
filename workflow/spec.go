// Package workflow assembles a WorkflowSpec into a running taskgraph
// and drives it through a scheduler, exposing execute/status/cancel
// operations over the resulting workflow.
package workflow

import (
	"fmt"
	"sort"

	"vispipe.io/engine/param"
)

// ModuleSpec declares one module instance a workflow will create.
// Dependencies lists task ids this module must wait on in addition to
// whatever its connections imply.
type ModuleSpec struct {
	ID           uint32                 `json:"id"`
	Kind         string                 `json:"kind"`
	Name         string                 `json:"name,omitempty"`
	Parameters   map[string]param.Value `json:"parameters,omitempty"`
	Dependencies []uint32               `json:"dependencies,omitempty"`
	Priority     uint8                  `json:"priority,omitempty"`
}

// ConnectionSpec wires one module's output port to another's input
// port. A connection also implies a dependency edge: ToModule cannot
// run before FromModule completes.
type ConnectionSpec struct {
	FromModule uint32 `json:"from_module"`
	FromPort   string `json:"from_port"`
	ToModule   uint32 `json:"to_module"`
	ToPort     string `json:"to_port"`
}

// WorkflowSpec is the declarative description of one workflow run.
type WorkflowSpec struct {
	ID          string           `json:"id"`
	Name        string           `json:"name,omitempty"`
	Description string           `json:"description,omitempty"`
	Modules     []ModuleSpec     `json:"modules"`
	Connections []ConnectionSpec `json:"connections,omitempty"`
}

// Sentinel errors returned by Validate.
var (
	ErrDuplicateModuleID = fmt.Errorf("workflow: duplicate module id")
	ErrUnknownModuleRef  = fmt.Errorf("workflow: reference to unknown module id")
	ErrWorkflowCycle     = fmt.Errorf("workflow: dependency graph has a cycle")
	ErrEmptyModules      = fmt.Errorf("workflow: spec has no modules")
)

// dependencyEdges returns, for every module id, the union of its
// explicit Dependencies and the from-module of every connection
// targeting it — the resolution this spec gives to a workflow spec
// that declares the same edge both ways: the dependency set used for
// scheduling is the union, not a requirement that both forms agree.
func dependencyEdges(spec WorkflowSpec) map[uint32]map[uint32]struct{} {
	edges := make(map[uint32]map[uint32]struct{}, len(spec.Modules))
	for _, m := range spec.Modules {
		set := make(map[uint32]struct{}, len(m.Dependencies))
		for _, dep := range m.Dependencies {
			set[dep] = struct{}{}
		}
		edges[m.ID] = set
	}
	for _, c := range spec.Connections {
		if set, ok := edges[c.ToModule]; ok {
			set[c.FromModule] = struct{}{}
		}
	}
	return edges
}

// Validate checks module id uniqueness, that every dependency and
// connection endpoint names a module actually present in the spec, and
// that the union-of-dependencies graph is acyclic.
func Validate(spec WorkflowSpec) error {
	if len(spec.Modules) == 0 {
		return ErrEmptyModules
	}
	seen := make(map[uint32]bool, len(spec.Modules))
	for _, m := range spec.Modules {
		if seen[m.ID] {
			return fmt.Errorf("%w: %d", ErrDuplicateModuleID, m.ID)
		}
		seen[m.ID] = true
	}
	for _, m := range spec.Modules {
		for _, dep := range m.Dependencies {
			if !seen[dep] {
				return fmt.Errorf("%w: module %d depends on %d", ErrUnknownModuleRef, m.ID, dep)
			}
		}
	}
	for _, c := range spec.Connections {
		if !seen[c.FromModule] {
			return fmt.Errorf("%w: connection from %d", ErrUnknownModuleRef, c.FromModule)
		}
		if !seen[c.ToModule] {
			return fmt.Errorf("%w: connection to %d", ErrUnknownModuleRef, c.ToModule)
		}
	}

	edges := dependencyEdges(spec)
	if hasCycle(edges) {
		return ErrWorkflowCycle
	}
	return nil
}

func hasCycle(edges map[uint32]map[uint32]struct{}) bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[uint32]int, len(edges))
	ids := make([]uint32, 0, len(edges))
	for id := range edges {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var visit func(id uint32) bool
	visit = func(id uint32) bool {
		color[id] = gray
		for dep := range edges[id] {
			switch color[dep] {
			case gray:
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}
	for _, id := range ids {
		if color[id] == white {
			if visit(id) {
				return true
			}
		}
	}
	return false
}
