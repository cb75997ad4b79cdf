package graph

import (
	"context"
	"testing"

	"lanecore/internal/turnstate"
)

func taskOfKind(tasks []turnstate.Task, kind turnstate.TaskKind) *turnstate.Task {
	for i := range tasks {
		if tasks[i].Kind == kind {
			return &tasks[i]
		}
	}
	return nil
}

func TestToolRouterNode_WebTaskAddsWikipediaWhenNotNewsLike(t *testing.T) {
	s := turnstate.RunState{
		UserText: "what is the capital of portugal",
		Plan: turnstate.RunPlan{
			WebSource: turnstate.WebSourceTavily,
			Flags:     turnstate.PlanFlags{NeedsWeb: true},
		},
		PlanRuntime: turnstate.PlanRuntime{},
	}
	u, err := ToolRouterNode(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	task := taskOfKind(u.AddTasks, turnstate.TaskWeb)
	if task == nil {
		t.Fatal("expected a web task")
	}
	found := false
	for _, src := range task.Sources {
		if src == turnstate.WebSourceWikipedia {
			found = true
		}
	}
	if !found {
		t.Fatal("expected wikipedia source added for non-news-like query")
	}
}

func TestToolRouterNode_WebTaskOmitsWikipediaForNewsLikeQuery(t *testing.T) {
	s := turnstate.RunState{
		UserText: "what's the latest news on the election",
		Plan: turnstate.RunPlan{
			WebSource: turnstate.WebSourceTavily,
			Flags:     turnstate.PlanFlags{NeedsWeb: true},
		},
	}
	u, _ := ToolRouterNode(context.Background(), s)
	task := taskOfKind(u.AddTasks, turnstate.TaskWeb)
	for _, src := range task.Sources {
		if src == turnstate.WebSourceWikipedia {
			t.Fatal("did not expect wikipedia source for a news-like query")
		}
	}
}

func TestToolRouterNode_ImageGenCarriesSubjectLockAndSize(t *testing.T) {
	s := turnstate.RunState{
		UserText:    "draw a cat astronaut",
		Plan:        turnstate.RunPlan{Flags: turnstate.PlanFlags{NeedsImageGen: true}},
		PlanRuntime: turnstate.PlanRuntime{SubjectLock: "cat astronaut"},
	}
	u, err := ToolRouterNode(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	task := taskOfKind(u.AddTasks, turnstate.TaskImageGen)
	if task == nil {
		t.Fatal("expected an image_gen task")
	}
	if task.Size != "1024x1024" {
		t.Fatalf("got size %q", task.Size)
	}
	if task.SubjectLock != "cat astronaut" {
		t.Fatalf("got subject lock %q", task.SubjectLock)
	}
}

func TestToolRouterNode_ImageEditPrependsLinkedPrompt(t *testing.T) {
	s := turnstate.RunState{
		UserText:       "make it more vibrant",
		Intent:         turnstate.Intent{Type: turnstate.IntentEdit},
		LinkedArtifact: &turnstate.Artifact{ID: "a1", PromptOrText: "a red fox in snow"},
		Plan:           turnstate.RunPlan{Flags: turnstate.PlanFlags{}},
	}
	u, err := ToolRouterNode(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	task := taskOfKind(u.AddTasks, turnstate.TaskImageGen)
	if task == nil {
		t.Fatal("expected an image_gen task for an edit intent")
	}
	if task.Prompt != "a red fox in snow; apply this edit: make it more vibrant" {
		t.Fatalf("got prompt %q", task.Prompt)
	}
}

func TestToolRouterNode_PureImageGenGuardrailDropsKnowledgeLanes(t *testing.T) {
	s := turnstate.RunState{
		UserText: "draw a sunset over mountains",
		Plan: turnstate.RunPlan{
			Flags: turnstate.PlanFlags{NeedsImageGen: true, NeedsWeb: true, NeedsRAG: true},
		},
	}
	u, err := ToolRouterNode(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if taskOfKind(u.AddTasks, turnstate.TaskWeb) != nil {
		t.Fatal("expected web task to be dropped by the pure-image-gen guardrail")
	}
	if taskOfKind(u.AddTasks, turnstate.TaskRAG) != nil {
		t.Fatal("expected rag task to be dropped by the pure-image-gen guardrail")
	}
	if u.Plan.Flags.NeedsWeb || u.Plan.Flags.NeedsRAG {
		t.Fatal("expected flags to reflect the dropped lanes")
	}
}

func TestToolRouterNode_TTSExtractsQuotedClause(t *testing.T) {
	s := turnstate.RunState{
		UserText: `please read this out loud: "hello world, welcome"`,
		Plan:     turnstate.RunPlan{Flags: turnstate.PlanFlags{NeedsTTS: true}},
	}
	u, err := ToolRouterNode(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	task := taskOfKind(u.AddTasks, turnstate.TaskTTS)
	if task == nil {
		t.Fatal("expected a tts task")
	}
	if task.Text != "hello world, welcome" {
		t.Fatalf("got text %q", task.Text)
	}
}

func TestToolRouterNode_DocAttachmentMeansExtract(t *testing.T) {
	s := turnstate.RunState{
		UserText:    "summarize this document",
		Attachments: []turnstate.Attachment{{ID: "d1", Kind: turnstate.AttachmentDoc}},
		Plan:        turnstate.RunPlan{Flags: turnstate.PlanFlags{NeedsDoc: true}},
	}
	u, err := ToolRouterNode(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	task := taskOfKind(u.AddTasks, turnstate.TaskDoc)
	if task == nil || task.Instruction != turnstate.DocExtract || task.AttachmentID != "d1" {
		t.Fatalf("got %+v", task)
	}
}

func TestToolRouterNode_DocGenerateInfersFormatFromCueWord(t *testing.T) {
	s := turnstate.RunState{
		UserText: "generate a pdf report of our findings",
		Plan:     turnstate.RunPlan{Flags: turnstate.PlanFlags{NeedsDoc: true}},
	}
	u, err := ToolRouterNode(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	task := taskOfKind(u.AddTasks, turnstate.TaskDoc)
	if task == nil || task.Instruction != turnstate.DocGenerate || task.Format != turnstate.FormatPDF {
		t.Fatalf("got %+v", task)
	}
}

func TestToolRouterNode_VisionTaskUsesImageAttachment(t *testing.T) {
	s := turnstate.RunState{
		UserText:    "what's in this photo",
		Attachments: []turnstate.Attachment{{ID: "img1", Kind: turnstate.AttachmentImage}},
		Plan:        turnstate.RunPlan{Flags: turnstate.PlanFlags{NeedsVision: true}},
	}
	u, err := ToolRouterNode(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	task := taskOfKind(u.AddTasks, turnstate.TaskVision)
	if task == nil || task.ImageAttachmentID != "img1" {
		t.Fatalf("got %+v", task)
	}
}

func TestClampTopK_Bounds(t *testing.T) {
	if clampTopK(0) != 1 {
		t.Fatal("expected clamp to 1")
	}
	if clampTopK(100) != 8 {
		t.Fatal("expected clamp to 8")
	}
	if clampTopK(4) != 4 {
		t.Fatal("expected unclamped value to pass through")
	}
}
