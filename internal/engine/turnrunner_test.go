package engine

import (
	"testing"

	"lanecore/internal/config"
	"lanecore/internal/turnstate"
)

func newTestSession(id string) *turnstate.Session {
	return turnstate.NewSession(id)
}

func TestCommitSession_TrimsHistoryToMaxMessages(t *testing.T) {
	r := &TurnRunner{Config: config.Config{MaxHistoryMessages: 2}}
	sess := newTestSession("s1")
	sess.History = []turnstate.ChatMessage{{Role: "user", Content: "old"}}

	r.commitSession(sess, "hello", turnstate.RunState{FinalText: "hi"})

	if len(sess.History) != 2 {
		t.Fatalf("expected history trimmed to 2, got %d: %+v", len(sess.History), sess.History)
	}
	if sess.History[0].Content != "hello" || sess.History[1].Content != "hi" {
		t.Fatalf("unexpected trimmed history: %+v", sess.History)
	}
}

func TestCommitSession_RecordsImageArtifactAndLineageOnReplace(t *testing.T) {
	r := &TurnRunner{Config: config.Config{MaxHistoryMessages: 30}}
	sess := newTestSession("s1")
	sess.Artifacts.Image = &turnstate.Artifact{ID: "img-1", URL: "/api/assets/s1/1.png"}

	final := turnstate.RunState{
		FinalText: "done",
		ToolOutputs: map[string]turnstate.ToolResult{
			"t1": {
				TaskID: "img-2",
				Kind:   turnstate.TaskImageGen,
				OK:     true,
				Data:   map[string]any{"url": "/api/assets/s1/2.png", "prompt": "a red fox"},
			},
		},
	}

	r.commitSession(sess, "edit the fox", final)

	if sess.Artifacts.Image == nil || sess.Artifacts.Image.ID != "img-2" {
		t.Fatalf("expected artifact slot replaced with img-2, got %+v", sess.Artifacts.Image)
	}
	edges := sess.Artifacts.Lineage[turnstate.AttachmentImage]
	if len(edges) != 1 || edges[0].ParentID != "img-1" || edges[0].ChildID != "img-2" {
		t.Fatalf("expected one lineage edge img-1->img-2, got %+v", edges)
	}
}

func TestCommitSession_SkipsArtifactOnFailedOrEmptyResult(t *testing.T) {
	r := &TurnRunner{Config: config.Config{MaxHistoryMessages: 30}}
	sess := newTestSession("s1")

	final := turnstate.RunState{
		FinalText: "sorry, that failed",
		ToolOutputs: map[string]turnstate.ToolResult{
			"t1": {TaskID: "img-1", Kind: turnstate.TaskImageGen, OK: false, Error: "boom"},
			"t2": {TaskID: "rag-1", Kind: turnstate.TaskRAG, OK: true, Citations: nil},
		},
	}

	r.commitSession(sess, "draw a fox", final)

	if sess.Artifacts.Image != nil {
		t.Fatalf("expected no artifact recorded, got %+v", sess.Artifacts.Image)
	}
}
