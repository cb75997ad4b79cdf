package graph

import (
	"context"
	"testing"

	"lanecore/internal/turnstate"
)

func TestReflectNode_NoReplanWhenNoEntityNotFound(t *testing.T) {
	s := turnstate.RunState{
		PlanRuntime: turnstate.PlanRuntime{Iteration: 0, MaxIterations: 2},
	}
	u, err := ReflectNode(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.PlanRuntime.ReplanRequested {
		t.Fatal("expected no replan")
	}
}

func TestReflectNode_RequestsReplanOnKBEntityNotFound(t *testing.T) {
	taskID := "t1"
	s := turnstate.RunState{
		PlanRuntime: turnstate.PlanRuntime{Iteration: 0, MaxIterations: 2},
		Tasks:       []turnstate.Task{{ID: taskID, Kind: turnstate.TaskKBRAG}},
		ToolOutputs: map[string]turnstate.ToolResult{
			taskID: {TaskID: taskID, Kind: turnstate.TaskKBRAG, OK: true, Data: map[string]any{"entity_not_found": "acme corp"}},
		},
		Plan: turnstate.RunPlan{Mode: turnstate.ModeToolsOnly},
	}
	u, err := ReflectNode(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !u.PlanRuntime.ReplanRequested {
		t.Fatal("expected replan to be requested")
	}
	if u.Plan.Mode != turnstate.ModeTextPlusTools {
		t.Fatalf("expected mode flipped to text_plus_tools, got %q", u.Plan.Mode)
	}
	if !u.Plan.Flags.NeedsWeb {
		t.Fatal("expected needs_web enabled as KB fallback")
	}
	if u.PlanRuntime.Iteration != 1 {
		t.Fatalf("expected iteration incremented, got %d", u.PlanRuntime.Iteration)
	}
}

func TestReflectNode_RespectsIterationCap(t *testing.T) {
	taskID := "t1"
	s := turnstate.RunState{
		PlanRuntime: turnstate.PlanRuntime{Iteration: 2, MaxIterations: 2},
		Tasks:       []turnstate.Task{{ID: taskID, Kind: turnstate.TaskKBRAG}},
		ToolOutputs: map[string]turnstate.ToolResult{
			taskID: {TaskID: taskID, Kind: turnstate.TaskKBRAG, OK: true, Data: map[string]any{"entity_not_found": "acme corp"}},
		},
	}
	u, err := ReflectNode(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.PlanRuntime.ReplanRequested {
		t.Fatal("expected replan cap to suppress the replan request")
	}
}

func TestReflectEdge_RoutesBackToToolRouterOnReplan(t *testing.T) {
	s := turnstate.RunState{PlanRuntime: turnstate.PlanRuntime{ReplanRequested: true}}
	if got := ReflectEdge(s); got != "tool_router" {
		t.Fatalf("got %q", got)
	}
}

func TestReflectEdge_TerminalWhenNoReplan(t *testing.T) {
	s := turnstate.RunState{PlanRuntime: turnstate.PlanRuntime{ReplanRequested: false}}
	if got := ReflectEdge(s); got != Terminal {
		t.Fatalf("got %q", got)
	}
}
