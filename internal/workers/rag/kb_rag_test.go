package rag

import (
	"context"
	"os"
	"testing"
	"time"

	"lanecore/internal/retrieval/embedder"
	"lanecore/internal/retrieval/kb"
	"lanecore/internal/retrieval/vectorstore"
	"lanecore/internal/turnstate"
)

func newTestKBIndex(t *testing.T) *kb.Index {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(root+"/notes.txt", []byte("Bob Smith works in engineering and writes Go."), 0o644); err != nil {
		t.Fatalf("write corpus: %v", err)
	}
	emb := embedder.NewDeterministic(16)
	newStore := func(dim int) vectorstore.Store { return vectorstore.NewMemory() }
	return kb.New(kb.Config{Root: root, CacheTTL: time.Minute}, emb, newStore, nil)
}

func TestKBWorker_ReturnsCitations(t *testing.T) {
	w := &KBWorker{Index: newTestKBIndex(t)}
	res := w.Run(context.Background(), turnstate.Task{ID: "t1", Query: "engineering", TopK: 4})
	if !res.OK {
		t.Fatalf("expected OK, got error: %s", res.Error)
	}
	if len(res.Citations) == 0 {
		t.Fatal("expected at least one citation")
	}
}

func TestKBWorker_EntityNotFoundSetsDataKey(t *testing.T) {
	w := &KBWorker{Index: newTestKBIndex(t)}
	res := w.Run(context.Background(), turnstate.Task{ID: "t2", Query: `who is "Zara Quintrell"`, TopK: 4})
	if !res.OK {
		t.Fatalf("expected OK even on entity-not-found, got error: %s", res.Error)
	}
	if res.Data["entity_not_found"] != `Zara Quintrell` {
		t.Fatalf("expected entity_not_found data key, got %v", res.Data)
	}
}

func TestKBWorker_Kind(t *testing.T) {
	w := &KBWorker{}
	if w.Kind() != turnstate.TaskKBRAG {
		t.Fatalf("expected TaskKBRAG, got %v", w.Kind())
	}
}
