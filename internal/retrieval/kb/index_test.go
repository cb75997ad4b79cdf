package kb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"lanecore/internal/retrieval/embedder"
	"lanecore/internal/retrieval/vectorstore"
)

func writeCorpus(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func newTestIndex(t *testing.T, root string) *Index {
	t.Helper()
	emb := embedder.NewDeterministic(32)
	newStore := func(dim int) vectorstore.Store { return vectorstore.NewMemory() }
	return New(Config{Root: root}, emb, newStore, nil)
}

func TestEnsureIndex_BuildsAndWritesStamp(t *testing.T) {
	root := t.TempDir()
	writeCorpus(t, root, map[string]string{
		"alice.txt": "Alice Johnson is a senior engineer on the platform team.",
	})
	idx := newTestIndex(t, root)
	if err := idx.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "stamp.json")); err != nil {
		t.Fatalf("expected stamp.json to be written: %v", err)
	}
}

func TestEnsureIndex_NoRebuildWhenStampUnchanged(t *testing.T) {
	root := t.TempDir()
	writeCorpus(t, root, map[string]string{"a.txt": "hello world"})
	idx := newTestIndex(t, root)
	ctx := context.Background()
	if err := idx.EnsureIndex(ctx); err != nil {
		t.Fatal(err)
	}
	firstSig := idx.stamp.Signature()
	if err := idx.EnsureIndex(ctx); err != nil {
		t.Fatal(err)
	}
	if idx.stamp.Signature() != firstSig {
		t.Fatal("expected signature to stay stable across no-op EnsureIndex calls")
	}
}

func TestSearch_ReturnsCitationsForMatchingQuery(t *testing.T) {
	root := t.TempDir()
	writeCorpus(t, root, map[string]string{
		"people/alice.txt": "Alice Johnson is a senior engineer on the platform team.",
		"people/bob.txt":    "Bob Smith manages the design organization.",
	})
	idx := newTestIndex(t, root)
	res, err := idx.Search(context.Background(), "platform team engineer", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.EntityNotFound != "" {
		t.Fatalf("expected no entity_not_found, got %q", res.EntityNotFound)
	}
	if len(res.Citations) == 0 {
		t.Fatal("expected at least one citation")
	}
}

func TestSearch_EntityHintWithNoMatchingSourceSignalsNotFound(t *testing.T) {
	root := t.TempDir()
	writeCorpus(t, root, map[string]string{
		"people/bob.txt": "Bob Smith manages the design organization.",
	})
	idx := newTestIndex(t, root)
	res, err := idx.Search(context.Background(), `who is "Zara Quintrell"`, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.EntityNotFound == "" {
		t.Fatal("expected entity_not_found to be set")
	}
}

func TestSearch_CachesRepeatedQueries(t *testing.T) {
	root := t.TempDir()
	writeCorpus(t, root, map[string]string{"a.txt": "the quick brown fox jumps over the lazy dog"})
	idx := newTestIndex(t, root)
	ctx := context.Background()
	first, err := idx.Search(ctx, "quick fox", 2)
	if err != nil {
		t.Fatal(err)
	}
	if idx.queryCache.Len() == 0 {
		t.Fatal("expected query cache to have an entry after search")
	}
	second, err := idx.Search(ctx, "quick fox", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Citations) != len(second.Citations) {
		t.Fatal("expected cached result to match first result")
	}
}

func TestEntityHint_ExtractsFromQuotesAndCuePhrases(t *testing.T) {
	if got := entityHint(`tell me about "Jane Doe"`); got != "Jane Doe" {
		t.Fatalf("expected quoted hint to win, got %q", got)
	}
	if got := entityHint("who is Carlos Rivera"); got != "Carlos Rivera" {
		t.Fatalf("got %q", got)
	}
	if got := entityHint("what is the capital of France"); got != "" {
		t.Fatalf("expected no hint, got %q", got)
	}
}

func TestSourceBoost_RewardsHintAndQueryTokenMatches(t *testing.T) {
	boost := sourceBoost("senior engineer", "people/alice-johnson.txt", "Alice Johnson")
	if boost < 100 {
		t.Fatalf("expected hint match to add +100, got %v", boost)
	}
}
