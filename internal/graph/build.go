package graph

import (
	"lanecore/internal/lanes"
	"lanecore/internal/rolepack"
	"lanecore/internal/turnstate"
)

// Node labels for the production topology. Exported so the turn-orchestration
// glue can log/trace by label without guessing string literals.
const (
	LabelIntent    = "intent"
	LabelTextRoute = "text_router"
	LabelToolRoute = "tool_router"
	LabelPlanner   = "runtime_planner"
	LabelExecutor  = "executor"
	LabelReflect   = "reflect"
	LabelRolePack  = "rolepack"
	LabelSynth     = "synthesizer"
)

// BuildDeps carries the concrete collaborators the production graph closes
// over: the LLM-backed intent classifier, the lane executor, and the
// optional role-pack override template.
type BuildDeps struct {
	Intent         *IntentClassifier
	KBCorpusExists bool
	Executor       *lanes.Executor
	RolePackTpl    *rolepack.Template
	Synthesizer    *Synthesizer
}

// constantEdge returns an EdgeSelector that always proceeds to next,
// regardless of the state it's given.
func constantEdge(next string) EdgeSelector {
	return func(turnstate.RunState) string { return next }
}

// Build wires the full planning-graph topology (spec.md §4.3, §4.12): intent
// classification, text and tool routing, runtime-budget planning, the lane
// executor, a reflect stage that may loop back through tool routing once for
// a kb_rag fallback, the role-pack contract, and finally the synthesizer.
//
// Unlike ExecutorEdge and ReflectEdge (each independently correct for a
// graph that stops after its own node), this topology routes executor
// through reflect before synthesizing, and routes reflect's no-replan case
// into rolepack/synthesizer rather than Terminal, so the turn produces a
// final answer in one Graph.Run call instead of requiring the caller to
// invoke the synthesizer as a second, separate step.
func Build(deps BuildDeps) (*Graph, error) {
	b := NewBuilder(LabelIntent)

	b.AddNode(LabelIntent, deps.Intent.Node(deps.KBCorpusExists))
	b.AddEdge(LabelIntent, constantEdge(LabelTextRoute))

	b.AddNode(LabelTextRoute, TextRouterNode)
	b.AddEdge(LabelTextRoute, constantEdge(LabelToolRoute))

	b.AddNode(LabelToolRoute, ToolRouterNode)
	b.AddEdge(LabelToolRoute, constantEdge(LabelPlanner))

	b.AddNode(LabelPlanner, RuntimePlannerNode)
	b.AddEdge(LabelPlanner, constantEdge(LabelExecutor))

	b.AddNode(LabelExecutor, ExecutorNode(deps.Executor))
	b.AddEdge(LabelExecutor, constantEdge(LabelReflect))

	b.AddNode(LabelReflect, ReflectNode)
	b.AddEdge(LabelReflect, reflectThenSynthesize)

	b.AddNode(LabelRolePack, RolePackNode(deps.RolePackTpl))
	b.AddEdge(LabelRolePack, constantEdge(LabelSynth))

	b.AddNode(LabelSynth, deps.Synthesizer.Node())
	// synthesizer has no registered edge: the runtime treats that as
	// implicitly terminal (runtime.go's Run).

	return b.Build()
}

// reflectThenSynthesize mirrors ReflectEdge's replan/no-replan decision but,
// instead of returning Terminal for the production topology, routes into the
// role-pack/synthesizer tail so the graph always runs through to a final
// answer.
func reflectThenSynthesize(s turnstate.RunState) string {
	if s.PlanRuntime.ReplanRequested {
		return LabelToolRoute
	}
	return LabelRolePack
}

// MaxIterations bounds a production Graph.Run call generously above the
// per-turn replan/iteration budget RuntimePlannerNode computes: one pass for
// each of intent/text_router/tool_router/runtime_planner, then up to
// rt.MaxIterations*2 node hops for the executor/reflect loop, then
// rolepack+synthesizer.
func MaxIterations(rt turnstate.PlanRuntime) int {
	budget := rt.MaxIterations
	if budget < 1 {
		budget = 1
	}
	return 4 + budget*2 + 2
}
