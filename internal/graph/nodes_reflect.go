package graph

import (
	"context"

	"lanecore/internal/turnstate"
)

// ReflectNode inspects lane outcomes and may request one replan, flipping
// mode to text_plus_tools and enabling needs_web as a KB fallback, subject
// to the per-turn iteration cap (spec.md §4.3).
func ReflectNode(ctx context.Context, s turnstate.RunState) (turnstate.StateUpdate, error) {
	rt := s.PlanRuntime

	if rt.Iteration >= rt.MaxIterations {
		rt.ReplanRequested = false
		return turnstate.StateUpdate{PlanRuntime: &rt}, nil
	}

	if kbEntityNotFound(s) {
		rt.ReplanRequested = true
		rt.ReplanReason = "kb_rag found no matching entity; falling back to web search"
		rt.Iteration++

		plan := s.Plan
		plan.Mode = turnstate.ModeTextPlusTools
		plan.Flags.NeedsWeb = true
		if plan.WebSource == "" {
			plan.WebSource = turnstate.WebSourceTavily
		}

		return turnstate.StateUpdate{PlanRuntime: &rt, Plan: &plan}, nil
	}

	rt.ReplanRequested = false
	return turnstate.StateUpdate{PlanRuntime: &rt}, nil
}

// kbEntityNotFound reports whether any kb_rag ToolResult in this turn
// signalled an unresolved entity hint (see internal/retrieval/kb).
func kbEntityNotFound(s turnstate.RunState) bool {
	for _, t := range s.Tasks {
		if t.Kind != turnstate.TaskKBRAG {
			continue
		}
		res, ok := s.ToolOutputs[t.ID]
		if !ok {
			continue
		}
		if res.OK {
			if _, found := res.Data["entity_not_found"]; found {
				return true
			}
		}
	}
	return false
}

// ReflectEdge selects the next node after reflect: back to routed
// (tool-router) on a requested replan, otherwise Terminal.
func ReflectEdge(s turnstate.RunState) string {
	if s.PlanRuntime.ReplanRequested {
		return "tool_router"
	}
	return Terminal
}
