package graph

import (
	"context"
	"testing"

	"lanecore/internal/config"
	"lanecore/internal/events"
	"lanecore/internal/lanes"
	"lanecore/internal/llm"
	"lanecore/internal/testhelpers"
	"lanecore/internal/turnstate"
	"lanecore/internal/workers"
)

func TestBuild_GreetingTurnRunsEndToEndToFinalText(t *testing.T) {
	factory, err := llm.NewFactory(config.Config{
		LLMProvider: "openai",
		OpenAI:      config.ProviderConfig{APIKey: "test-key", Model: "gpt-4o-mini"},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error building factory: %v", err)
	}

	bus := events.New(8)
	deps := BuildDeps{
		Intent:   &IntentClassifier{Factory: factory},
		Executor: &lanes.Executor{Workers: workers.NewRegistry(), Bus: bus},
		Synthesizer: &Synthesizer{
			Provider: &testhelpers.FakeProvider{StreamDeltas: []string{"hi ", "there"}},
			Model:    "test-model",
			Bus:      bus,
		},
	}

	g, err := Build(deps)
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}

	initial := turnstate.RunState{
		RunID:    "r1",
		UserText: "hello",
	}
	rt := turnstate.PlanRuntime{MaxIterations: 1}
	final, err := g.Run(context.Background(), initial, MaxIterations(rt))
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	if final.FinalText == "" {
		t.Fatalf("expected a final answer, got empty RunState.FinalText")
	}
	if final.ResponseContract.ResearcherBrief == "" {
		t.Fatal("expected rolepack to have run before synthesizer")
	}
}
