package graph

import (
	"context"
	"strings"
	"testing"

	"lanecore/internal/events"
	"lanecore/internal/llm"
	"lanecore/internal/testhelpers"
	"lanecore/internal/turnstate"
	"lanecore/internal/workers/web"
)

func TestSynthesizer_SkipsWhenTextDisabledAndNoKnowledgeTask(t *testing.T) {
	sy := &Synthesizer{Provider: &testhelpers.FakeProvider{}, Bus: events.New(0)}
	s := turnstate.RunState{Plan: turnstate.RunPlan{Text: turnstate.TextPlan{Enabled: false}}}
	u, err := sy.Node()(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.FinalText != nil {
		t.Fatal("expected no final text when synthesizer should not run")
	}
}

func TestSynthesizer_StreamsCompletionAndSetsFinalText(t *testing.T) {
	provider := &testhelpers.FakeProvider{StreamDeltas: []string{"hello ", "world"}}
	bus := events.New(4)
	sy := &Synthesizer{Provider: provider, Model: "test-model", Bus: bus}
	s := turnstate.RunState{
		UserText: "tell me something",
		Plan:     turnstate.RunPlan{Text: turnstate.TextPlan{Enabled: true, Style: turnstate.StyleDirect}},
	}
	u, err := sy.Node()(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.FinalText == nil || *u.FinalText != "hello world" {
		t.Fatalf("expected final text %q, got %v", "hello world", u.FinalText)
	}

	ev, ok := bus.Next()
	if !ok || ev.Type != events.TypeToken {
		t.Fatal("expected a token event on the bus")
	}
}

func TestSynthesizer_ArxivOnlyRendersDeterministicMarkdown(t *testing.T) {
	taskID := "w1"
	sy := &Synthesizer{Provider: &testhelpers.FakeProvider{}, Bus: events.New(4)}
	s := turnstate.RunState{
		UserText: "find me arxiv papers on llm alignment 2024",
		Plan:     turnstate.RunPlan{Text: turnstate.TextPlan{Enabled: true}},
		Tasks: []turnstate.Task{
			{ID: taskID, Kind: turnstate.TaskWeb, Query: "llm alignment", Sources: []turnstate.WebSource{turnstate.WebSourceArxiv}},
		},
		ToolOutputs: map[string]turnstate.ToolResult{
			taskID: {
				TaskID: taskID, Kind: turnstate.TaskWeb, OK: true,
				Data: map[string]any{"items": []web.Item{
					{Title: "Aligning LLMs", URL: "https://arxiv.org/abs/1234.5678", Published: "2024-01-01", Summary: "a study of alignment"},
				}},
			},
		},
	}
	u, err := sy.Node()(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.FinalText == nil || !strings.HasPrefix(*u.FinalText, "## Results from Arxiv") {
		t.Fatalf("expected deterministic arxiv markdown, got %v", u.FinalText)
	}
	if !strings.Contains(*u.FinalText, "https://arxiv.org/abs/1234.5678") {
		t.Fatal("expected verbatim arxiv URL in rendered text")
	}
}

func TestSynthesizer_KBEntityNotFoundRendersFixedNotice(t *testing.T) {
	taskID := "k1"
	sy := &Synthesizer{Provider: &testhelpers.FakeProvider{}, Bus: events.New(4)}
	s := turnstate.RunState{
		UserText: "tell me about employee Jane Doe",
		Plan:     turnstate.RunPlan{Text: turnstate.TextPlan{Enabled: true}},
		Tasks:    []turnstate.Task{{ID: taskID, Kind: turnstate.TaskKBRAG, Query: "Jane Doe"}},
		ToolOutputs: map[string]turnstate.ToolResult{
			taskID: {TaskID: taskID, Kind: turnstate.TaskKBRAG, OK: true, Data: map[string]any{"entity_not_found": "Jane Doe"}},
		},
	}
	u, err := sy.Node()(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.FinalText == nil || !strings.HasPrefix(*u.FinalText, "## Knowledge Base Result") {
		t.Fatalf("expected fixed KB notice, got %v", u.FinalText)
	}
	lines := strings.Split(strings.TrimSpace(*u.FinalText), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected a two-line notice, got %d lines: %q", len(lines), *u.FinalText)
	}
}

func TestSynthesizer_GreetingOverLimitIsRewritten(t *testing.T) {
	deltas := make([]string, 25)
	for i := range deltas {
		deltas[i] = "word "
	}
	provider := &testhelpers.FakeProvider{
		StreamDeltas: deltas,
		Resp:         llm.Message{Role: "assistant", Content: "Hi there!"},
	}
	sy := &Synthesizer{Provider: provider, Bus: events.New(64)}
	s := turnstate.RunState{
		UserText: "hello",
		Intent:   turnstate.Intent{Type: turnstate.IntentChat},
		Plan:     turnstate.RunPlan{Text: turnstate.TextPlan{Enabled: true}},
	}
	u, err := sy.Node()(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.FinalText == nil || *u.FinalText != "Hi there!" {
		t.Fatalf("expected rewritten short greeting, got %v", u.FinalText)
	}
}

func TestConflictSignal_FlagsEntityBleed(t *testing.T) {
	s := turnstate.RunState{
		UserText: `who is "Jane Doe"`,
		ToolOutputs: map[string]turnstate.ToolResult{
			"t1": {Citations: []turnstate.Citation{{Title: "Bob Smith bio", Snippet: "Bob works in engineering"}}},
		},
	}
	if sig := conflictSignal(s); sig == "" {
		t.Fatal("expected a conflict signal when no citation mentions the asked-about entity")
	}
}

func TestConflictSignal_SilentWhenEntityMentioned(t *testing.T) {
	s := turnstate.RunState{
		UserText: `who is Jane Doe`,
		ToolOutputs: map[string]turnstate.ToolResult{
			"t1": {Citations: []turnstate.Citation{{Title: "Jane Doe bio", Snippet: "Jane Doe leads engineering"}}},
		},
	}
	if sig := conflictSignal(s); sig != "" {
		t.Fatalf("expected no conflict signal, got %q", sig)
	}
}

func TestRankedEvidence_OrdersByWordOverlap(t *testing.T) {
	s := turnstate.RunState{
		UserText: "golang concurrency patterns",
		Tasks:    []turnstate.Task{{ID: "t1", Kind: turnstate.TaskKBRAG}},
		ToolOutputs: map[string]turnstate.ToolResult{
			"t1": {OK: true, Citations: []turnstate.Citation{
				{Title: "unrelated", Snippet: "cooking recipes"},
				{Title: "golang concurrency", Snippet: "patterns for channels"},
			}},
		},
	}
	rows := rankedEvidence(s)
	if len(rows) != 2 || rows[0].source != "golang concurrency" {
		t.Fatalf("expected the higher-overlap row first, got %+v", rows)
	}
}
