// Package chunker implements the recursive-separator character chunker used
// by both the session RAG and knowledge-base RAG indexes (spec.md §4.10).
package chunker

import "strings"

// DefaultSeparators is the recursive split order: paragraph, line, word,
// then character, matching spec.md §4.10's literal separator list.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Chunk is one chunked span of source text.
type Chunk struct {
	Index int
	Text  string
}

// Config controls chunk size and overlap, in characters.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

// DefaultConfig matches spec.md §4.10's session-RAG defaults (~900 chars,
// 150 overlap).
func DefaultConfig() Config {
	return Config{ChunkSize: 900, ChunkOverlap: 150, Separators: DefaultSeparators}
}

// Split recursively splits text on the configured separators, falling back
// to the next separator whenever a candidate piece still exceeds
// ChunkSize, then reassembles adjacent pieces into chunks no larger than
// ChunkSize with ChunkOverlap characters of trailing context carried into
// the next chunk.
func Split(text string, cfg Config) []Chunk {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 900
	}
	if len(cfg.Separators) == 0 {
		cfg.Separators = DefaultSeparators
	}
	pieces := recursiveSplit(text, cfg.Separators, cfg.ChunkSize)
	return mergeWithOverlap(pieces, cfg)
}

func recursiveSplit(text string, seps []string, size int) []string {
	if len(text) <= size || len(seps) == 0 {
		return []string{text}
	}
	sep, rest := seps[0], seps[1:]

	var parts []string
	if sep == "" {
		for i := 0; i < len(text); i += size {
			end := i + size
			if end > len(text) {
				end = len(text)
			}
			parts = append(parts, text[i:end])
		}
		return parts
	}
	parts = strings.Split(text, sep)

	var out []string
	for i, p := range parts {
		if len(p) > size {
			out = append(out, recursiveSplit(p, rest, size)...)
		} else {
			out = append(out, p)
		}
		if i < len(parts)-1 {
			// The separator itself is dropped here; mergeWithOverlap
			// re-joins pieces with single spaces.
		}
	}
	return out
}

// mergeWithOverlap packs consecutive pieces into chunks up to ChunkSize,
// carrying the trailing ChunkOverlap characters of one chunk into the next.
func mergeWithOverlap(pieces []string, cfg Config) []Chunk {
	var chunks []Chunk
	var cur strings.Builder

	flush := func() {
		text := strings.TrimSpace(cur.String())
		if text == "" {
			return
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Text: text})
	}

	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+1+len(p) > cfg.ChunkSize {
			flush()
			overlap := tailRunes(cur.String(), cfg.ChunkOverlap)
			cur.Reset()
			cur.WriteString(overlap)
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(p)
	}
	flush()
	return chunks
}

func tailRunes(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
