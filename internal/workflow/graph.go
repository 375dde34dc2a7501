// Package workflow interprets a static step graph against a checkpoint store:
// it runs the pending frontier in supersteps, commits every step write,
// evaluates routers and suspends before the interrupt node.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dohr-michael/quill/internal/checkpoint"
)

// Virtual nodes.
const (
	Start     = "start"
	Terminate = "terminate"
)

// StepFunc computes a partial update from the current state.
type StepFunc func(ctx context.Context, state checkpoint.State) (checkpoint.Update, error)

// Router picks the next node from the state. It must be pure.
type Router func(state checkpoint.State) string

// Phase labels where a thread stands.
type Phase string

const (
	PhaseNew         Phase = "new"
	PhaseResearching Phase = "researching"
	PhaseWriting     Phase = "writing"
	PhaseValidating  Phase = "validating"
	PhaseRefining    Phase = "refining"
	PhaseParked      Phase = "parked"
	PhaseTerminated  Phase = "terminated"
)

type node struct {
	name  string
	phase Phase
	fn    StepFunc
}

type conditional struct {
	router  Router
	targets []string
}

type join struct {
	sources []string
	target  string
}

// Graph is a compiled, immutable topology.
type Graph struct {
	nodes     map[string]node
	order     []string
	edges     map[string][]string
	joins     []join
	routers   map[string]conditional
	interrupt string
	minSteps  int
}

// Builder declares a graph. Errors are collected and reported by Compile.
type Builder struct {
	g    *Graph
	errs []error
}

// NewBuilder starts an empty graph declaration.
func NewBuilder() *Builder {
	return &Builder{g: &Graph{
		nodes:   make(map[string]node),
		edges:   make(map[string][]string),
		routers: make(map[string]conditional),
	}}
}

// AddNode declares a step. phase labels threads waiting on it.
func (b *Builder) AddNode(name string, phase Phase, fn StepFunc) *Builder {
	switch {
	case name == Start || name == Terminate || name == "":
		b.errs = append(b.errs, fmt.Errorf("node name %q is reserved", name))
	case fn == nil:
		b.errs = append(b.errs, fmt.Errorf("node %q has no step function", name))
	default:
		if _, dup := b.g.nodes[name]; dup {
			b.errs = append(b.errs, fmt.Errorf("node %q declared twice", name))
			return b
		}
		b.g.nodes[name] = node{name: name, phase: phase, fn: fn}
		b.g.order = append(b.g.order, name)
	}
	return b
}

// AddEdge declares a fixed transition.
func (b *Builder) AddEdge(from, to string) *Builder {
	b.g.edges[from] = append(b.g.edges[from], to)
	return b
}

// AddJoin declares a fan-in: to becomes ready once every source completed in
// the same superstep.
func (b *Builder) AddJoin(sources []string, to string) *Builder {
	if len(sources) < 2 {
		b.errs = append(b.errs, fmt.Errorf("join into %q needs at least two sources", to))
		return b
	}
	b.g.joins = append(b.g.joins, join{sources: slices.Clone(sources), target: to})
	return b
}

// AddConditional routes from a node through router to one of targets.
func (b *Builder) AddConditional(from string, router Router, targets ...string) *Builder {
	if _, dup := b.g.routers[from]; dup {
		b.errs = append(b.errs, fmt.Errorf("node %q has two routers", from))
		return b
	}
	b.g.routers[from] = conditional{router: router, targets: targets}
	return b
}

// InterruptBefore makes execution suspend whenever name is scheduled.
func (b *Builder) InterruptBefore(name string) *Builder {
	b.g.interrupt = name
	return b
}

// MinSupersteps declares how many supersteps one call may need before it
// parks or terminates. Engines never limit a call below it.
func (b *Builder) MinSupersteps(n int) *Builder {
	b.g.minSteps = n
	return b
}

// Compile validates the declaration and returns the graph.
func (b *Builder) Compile() (*Graph, error) {
	g := b.g
	errs := slices.Clone(b.errs)

	isNode := func(n string) bool {
		_, ok := g.nodes[n]
		return ok
	}
	isTarget := func(n string) bool { return isNode(n) || n == Terminate }

	for from, tos := range g.edges {
		if from != Start && !isNode(from) {
			errs = append(errs, fmt.Errorf("edge from undeclared node %q", from))
		}
		for _, to := range tos {
			if !isTarget(to) {
				errs = append(errs, fmt.Errorf("edge %s -> %s: undeclared target", from, to))
			}
		}
	}
	for _, j := range g.joins {
		if !isNode(j.target) {
			errs = append(errs, fmt.Errorf("join into undeclared node %q", j.target))
		}
		for _, s := range j.sources {
			if !isNode(s) {
				errs = append(errs, fmt.Errorf("join into %s: undeclared source %q", j.target, s))
			}
		}
	}
	for from, c := range g.routers {
		if !isNode(from) {
			errs = append(errs, fmt.Errorf("router on undeclared node %q", from))
		}
		if c.router == nil {
			errs = append(errs, fmt.Errorf("router on %q is nil", from))
		}
		if len(c.targets) == 0 {
			errs = append(errs, fmt.Errorf("router on %q declares no targets", from))
		}
		for _, to := range c.targets {
			if !isTarget(to) {
				errs = append(errs, fmt.Errorf("router on %s: undeclared target %q", from, to))
			}
		}
		if len(g.edges[from]) > 0 {
			errs = append(errs, fmt.Errorf("node %q has both fixed edges and a router", from))
		}
	}
	for _, name := range g.order {
		if len(g.edges[name]) == 0 && !g.inJoin(name) {
			if _, ok := g.routers[name]; !ok {
				errs = append(errs, fmt.Errorf("node %q has no outgoing edge", name))
			}
		}
	}
	if len(g.edges[Start]) == 0 {
		errs = append(errs, errors.New("start has no successor"))
	}
	if g.interrupt != "" && !isNode(g.interrupt) {
		errs = append(errs, fmt.Errorf("interrupt node %q is not declared", g.interrupt))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("compile graph: %w", err)
	}
	return g, nil
}

func (g *Graph) inJoin(name string) bool {
	for _, j := range g.joins {
		if slices.Contains(j.sources, name) {
			return true
		}
	}
	return false
}

// MinSupersteps returns the declared superstep floor, or 0.
func (g *Graph) MinSupersteps() int { return g.minSteps }

// Interrupt returns the interrupt node, or "".
func (g *Graph) Interrupt() string { return g.interrupt }

// Nodes returns the declared nodes in declaration order.
func (g *Graph) Nodes() []string { return slices.Clone(g.order) }

// StartSteps returns the first frontier of a thread.
func (g *Graph) StartSteps() []string { return dedupe(g.edges[Start]) }

// Successors computes the next frontier from the steps completed in a superstep.
func (g *Graph) Successors(completed []string, state checkpoint.State) ([]string, error) {
	var next []string
	for _, name := range g.order {
		if !slices.Contains(completed, name) {
			continue
		}
		next = append(next, g.edges[name]...)
		if c, ok := g.routers[name]; ok {
			target := c.router(state)
			if !slices.Contains(c.targets, target) {
				return nil, fmt.Errorf("route from %s to %q: %w", name, target, ErrUnknownRoute)
			}
			next = append(next, target)
		}
	}
	for _, j := range g.joins {
		done := 0
		for _, s := range j.sources {
			if slices.Contains(completed, s) {
				done++
			}
		}
		switch {
		case done == len(j.sources):
			next = append(next, j.target)
		case done > 0:
			return nil, fmt.Errorf("join into %s: %w", j.target, ErrPartialJoin)
		}
	}

	next = dedupe(next)
	return slices.DeleteFunc(next, func(s string) bool { return s == Terminate }), nil
}

// Phase derives the state machine label of a checkpoint.
func (g *Graph) Phase(cp *checkpoint.Checkpoint) Phase {
	switch {
	case cp.IsNew():
		return PhaseNew
	case cp.Terminated():
		return PhaseTerminated
	case cp.ParkedAt(g.interrupt):
		return PhaseParked
	}
	names := cp.Pending()
	if len(names) == 0 {
		names = cp.Written
	}
	for _, name := range names {
		if n, ok := g.nodes[name]; ok && n.phase != "" {
			return n.phase
		}
	}
	return PhaseResearching
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
