// Package graph implements the deterministic planning graph: a fixed node
// topology with conditional edges, driven by a bounded depth-first
// traversal per spec.md §4.3. Nodes are pure functions over RunState that
// return a partial turnstate.StateUpdate; the runtime owns merging.
package graph

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"lanecore/internal/turnstate"
)

// Node is a pure planning-graph step: it inspects a RunState snapshot and
// returns the delta to merge, never mutating its input.
type Node func(ctx context.Context, s turnstate.RunState) (turnstate.StateUpdate, error)

// EdgeSelector picks the next node label from a RunState snapshot taken
// after the current node's update has been merged in.
type EdgeSelector func(s turnstate.RunState) string

// Terminal is the sentinel edge label meaning "traversal is done".
const Terminal = "__terminal__"

// Graph is a fixed node/edge topology. Build validates every edge target
// exists before traversal can start.
type Graph struct {
	nodes map[string]Node
	edges map[string]EdgeSelector
	entry string
}

// Builder assembles a Graph incrementally.
type Builder struct {
	g *Graph
}

// NewBuilder starts a new graph with the given entry node label.
func NewBuilder(entry string) *Builder {
	return &Builder{g: &Graph{
		nodes: map[string]Node{},
		edges: map[string]EdgeSelector{},
		entry: entry,
	}}
}

// AddNode registers a node under label.
func (b *Builder) AddNode(label string, n Node) *Builder {
	b.g.nodes[label] = n
	return b
}

// AddEdge registers the conditional edge selector run after label's node.
func (b *Builder) AddEdge(label string, sel EdgeSelector) *Builder {
	b.g.edges[label] = sel
	return b
}

// Build checks only that the entry node is registered. Edge targets are
// chosen at run time by the selector functions, so Build does not check the
// labels they return; ValidateEdgeTargets checks a static label->targets map.
func (b *Builder) Build() (*Graph, error) {
	if _, ok := b.g.nodes[b.g.entry]; !ok {
		return nil, fmt.Errorf("graph: entry node %q is not registered", b.g.entry)
	}
	return b.g, nil
}

// ValidateEdgeTargets checks a static label->targets map against the
// registered nodes, for callers that want build-time verification of the
// edge selector's possible outputs.
func (g *Graph) ValidateEdgeTargets(possibleTargets map[string][]string) error {
	for from, targets := range possibleTargets {
		if _, ok := g.nodes[from]; !ok {
			return fmt.Errorf("graph: edge source %q is not a registered node", from)
		}
		for _, t := range targets {
			if t == Terminal {
				continue
			}
			if _, ok := g.nodes[t]; !ok {
				return fmt.Errorf("graph: edge target %q (from %q) is not a registered node", t, from)
			}
		}
	}
	return nil
}

// Run traverses the graph depth-first from the entry node, applying each
// node's StateUpdate with last-write-wins merge semantics, until a selector
// returns Terminal or maxIterations node executions have run.
func (g *Graph) Run(ctx context.Context, initial turnstate.RunState, maxIterations int) (turnstate.RunState, error) {
	state := initial
	label := g.entry
	if maxIterations <= 0 {
		maxIterations = 1
	}

	for i := 0; i < maxIterations; i++ {
		node, ok := g.nodes[label]
		if !ok {
			return state, fmt.Errorf("graph: no node registered for label %q", label)
		}

		update, err := node(ctx, state)
		if err != nil {
			return state, fmt.Errorf("graph: node %q failed: %w", label, err)
		}
		state = turnstate.Merge(state, update)

		sel, ok := g.edges[label]
		if !ok {
			log.Ctx(ctx).Debug().Str("node", label).Msg("graph_node_has_no_edge_treating_as_terminal")
			return state, nil
		}
		next := sel(state)
		if next == Terminal {
			return state, nil
		}
		label = next
	}

	log.Ctx(ctx).Warn().Int("max_iterations", maxIterations).Msg("graph_max_iterations_exhausted")
	return state, nil
}
