package chunker

import (
	"strings"
	"testing"
)

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	chunks := Split("a short paragraph.", DefaultConfig())
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
}

func TestSplit_LongTextProducesMultipleChunksWithinBudget(t *testing.T) {
	para := strings.Repeat("word ", 50) // ~250 chars
	text := strings.Join([]string{para, para, para, para, para, para}, "\n\n")
	cfg := Config{ChunkSize: 300, ChunkOverlap: 50, Separators: DefaultSeparators}
	chunks := Split(text, cfg)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if len(c.Text) > cfg.ChunkSize+cfg.ChunkOverlap+1 {
			t.Errorf("chunk %d exceeds budget: %d chars", c.Index, len(c.Text))
		}
	}
}

func TestSplit_EmptyTextNoChunks(t *testing.T) {
	if chunks := Split("", DefaultConfig()); len(chunks) != 0 {
		t.Fatalf("expected no chunks for empty text, got %d", len(chunks))
	}
}

func TestSplit_ChunksAreIndexedSequentially(t *testing.T) {
	para := strings.Repeat("x", 500)
	text := para + "\n\n" + para + "\n\n" + para
	cfg := Config{ChunkSize: 400, ChunkOverlap: 50, Separators: DefaultSeparators}
	chunks := Split(text, cfg)
	for i, c := range chunks {
		if c.Index != i {
			t.Fatalf("expected chunk index %d, got %d", i, c.Index)
		}
	}
}
