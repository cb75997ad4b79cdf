package graph

import (
	"context"

	"lanecore/internal/lanes"
	"lanecore/internal/turnstate"
)

// ExecutorNode dispatches the turn's tasks through the lane executor and
// merges both cohorts' results back into ToolOutputs. The graph runtime
// traverses one node at a time, so unlike the executor's own internal
// concurrency (every task within and across cohorts genuinely runs
// concurrently, see internal/lanes) the node itself waits on both cohort
// channels before returning: there is no async dataflow boundary between
// this node and the synthesizer node that follows it.
func ExecutorNode(ex *lanes.Executor) Node {
	return func(ctx context.Context, s turnstate.RunState) (turnstate.StateUpdate, error) {
		if len(s.Tasks) == 0 {
			return turnstate.StateUpdate{}, nil
		}

		rr := ex.Run(ctx, s.Tasks, s.PlanRuntime, s.LinkedArtifact)
		knowledge := <-rr.Knowledge
		other := <-rr.Other

		merged := make(map[string]turnstate.ToolResult, len(knowledge)+len(other))
		for id, res := range knowledge {
			merged[id] = res
		}
		for id, res := range other {
			merged[id] = res
		}

		return turnstate.StateUpdate{MergeToolOutputs: merged}, nil
	}
}

// ExecutorEdge always proceeds to the synthesizer once tasks have run.
func ExecutorEdge(s turnstate.RunState) string {
	return "synthesizer"
}
