// Package taskgraph maps an analysis mode to the roles it runs and the
// dependencies between them.
package taskgraph

import (
	"errors"
	"fmt"

	"github.com/kalambet/bloodlens/internal/analysis"
	"github.com/kalambet/bloodlens/internal/role"
)

var (
	// ErrUnknownMode is returned by Build for a mode with no step table.
	ErrUnknownMode = errors.New("unknown analysis mode")
	// ErrCycleDetected indicates a circular dependency in a step table.
	ErrCycleDetected = errors.New("circular dependency detected")
)

// Step is one role in a graph together with the roles it waits for.
type Step struct {
	Role      role.Role
	DependsOn []string
}

type stepSpec struct {
	id   string
	deps []string
}

var modes = map[analysis.Mode][]stepSpec{
	analysis.ModeMedicalOnly: {
		{id: role.Verifier},
		{id: role.Medical, deps: []string{role.Verifier}},
	},
	analysis.ModeComprehensive: {
		{id: role.Verifier},
		{id: role.Medical, deps: []string{role.Verifier}},
		{id: role.Nutrition, deps: []string{role.Medical}},
		{id: role.Exercise, deps: []string{role.Medical}},
	},
}

// Graph is an immutable, acyclic plan for one request.
type Graph struct {
	order []string
	steps map[string]Step
	// layers groups steps whose dependencies are all in earlier layers.
	layers [][]string
}

// Build returns the graph for mode.
func Build(mode analysis.Mode) (*Graph, error) {
	specs, ok := modes[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return build(specs)
}

func build(specs []stepSpec) (*Graph, error) {
	g := &Graph{steps: make(map[string]Step, len(specs))}

	for _, s := range specs {
		r, err := role.Lookup(s.id)
		if err != nil {
			return nil, err
		}
		if _, dup := g.steps[s.id]; dup {
			return nil, fmt.Errorf("duplicate step %q", s.id)
		}
		g.steps[s.id] = Step{Role: r, DependsOn: append([]string(nil), s.deps...)}
		g.order = append(g.order, s.id)
	}
	for _, s := range specs {
		for _, dep := range s.deps {
			if _, ok := g.steps[dep]; !ok {
				return nil, fmt.Errorf("step %s depends on unknown step %s", s.id, dep)
			}
		}
	}

	if g.hasCycle() {
		return nil, ErrCycleDetected
	}
	g.layers = g.layer()
	return g, nil
}

// hasCycle runs a depth-first search with white/grey/black colouring and
// reports whether a back edge exists.
func (g *Graph) hasCycle() bool {
	const (
		white = iota
		grey
		black
	)
	colors := make(map[string]int, len(g.order))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = grey
		for _, dep := range g.steps[id].DependsOn {
			switch colors[dep] {
			case grey:
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		colors[id] = black
		return false
	}

	for _, id := range g.order {
		if colors[id] == white && visit(id) {
			return true
		}
	}
	return false
}

// layer assigns each step to depth = 1 + max(depth of its dependencies),
// keeping declared order inside a layer. Requires an acyclic graph.
func (g *Graph) layer() [][]string {
	depth := make(map[string]int, len(g.order))
	var depthOf func(id string) int
	depthOf = func(id string) int {
		if d, ok := depth[id]; ok {
			return d
		}
		d := 0
		for _, dep := range g.steps[id].DependsOn {
			if dd := depthOf(dep) + 1; dd > d {
				d = dd
			}
		}
		depth[id] = d
		return d
	}

	var layers [][]string
	for _, id := range g.order {
		d := depthOf(id)
		for len(layers) <= d {
			layers = append(layers, nil)
		}
		layers[d] = append(layers[d], id)
	}
	return layers
}

// Steps returns the steps in topological order. Within a layer, declared
// order is preserved.
func (g *Graph) Steps() []Step {
	out := make([]Step, 0, len(g.order))
	for _, layer := range g.layers {
		for _, id := range layer {
			out = append(out, g.steps[id])
		}
	}
	return out
}

// Layers returns groups of steps with no edges between members. Every
// step's dependencies sit in an earlier layer.
func (g *Graph) Layers() [][]Step {
	out := make([][]Step, len(g.layers))
	for i, layer := range g.layers {
		out[i] = make([]Step, len(layer))
		for j, id := range layer {
			out[i][j] = g.steps[id]
		}
	}
	return out
}

// DependsOn returns the IDs the given step waits for.
func (g *Graph) DependsOn(id string) []string {
	return append([]string(nil), g.steps[id].DependsOn...)
}

// Len returns the number of steps.
func (g *Graph) Len() int { return len(g.order) }
