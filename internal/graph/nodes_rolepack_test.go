package graph

import (
	"context"
	"testing"

	"lanecore/internal/turnstate"
)

func TestRolePackNode_ProducesContract(t *testing.T) {
	node := RolePackNode(nil)
	s := turnstate.RunState{
		Plan: turnstate.RunPlan{
			Flags: turnstate.PlanFlags{NeedsWeb: true},
			Text:  turnstate.TextPlan{Style: turnstate.StyleBullet, Instruction: "1-4 lines"},
		},
	}
	u, err := node(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ResponseContract == nil {
		t.Fatal("expected a response contract")
	}
	if u.ResponseContract.ResearcherBrief == "" || u.ResponseContract.WriterPlan == "" {
		t.Fatalf("got %+v", u.ResponseContract)
	}
	if len(u.ResponseContract.CriticChecks) == 0 {
		t.Fatal("expected default critic checks")
	}
}
