// Package kb implements the global knowledge-base retrieval index: a
// stamp-invalidated vector store built from a corpus directory, with
// entity-aware search ranking and a query-result cache in front of it.
package kb

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"lanecore/internal/retrieval/chunker"
	"lanecore/internal/retrieval/embedder"
	"lanecore/internal/retrieval/loaders"
	"lanecore/internal/retrieval/querycache"
	"lanecore/internal/retrieval/vectorstore"
	"lanecore/internal/turnstate"
)

// Stamp fingerprints the corpus state the index was built from. A mismatch
// between the on-disk stamp and the corpus's current stamp triggers a
// rebuild.
type Stamp struct {
	Count         int    `json:"count"`
	LatestMtimeNS int64  `json:"latest_mtime_ns"`
	Root          string `json:"root"`
	ChunkSize     int    `json:"chunk_size"`
	ChunkOverlap  int    `json:"chunk_overlap"`
}

// Signature is a short, comparable fingerprint of the stamp, used as the
// vector-store cache key and as part of the query-cache key so a rebuild
// naturally invalidates old query results.
func (s Stamp) Signature() string {
	b, _ := json.Marshal(s)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}

func (s Stamp) equal(other Stamp) bool {
	return s == other
}

// Index is the process-wide KB retrieval service: one instance per process,
// with explicit Init. Reads take the shared read lock of mu, so the read path
// is not lock-free.
type Index struct {
	root         string
	stampPath    string
	chunkCfg     chunker.Config
	embed        embedder.Embedder
	newStore     func(dimension int) vectorstore.Store
	queryCache   *querycache.Cache
	distributed  *querycache.DistributedCache

	mu      sync.RWMutex
	stamp   Stamp
	store   vectorstore.Store
	sources []string // relative source paths, parallel-indexed to chunk ids
}

// Config configures a new Index.
type Config struct {
	Root         string
	ChunkSize    int
	ChunkOverlap int
	CacheTTL     time.Duration
	CacheCap     int
	CacheEvictN  int
}

// New builds an Index. NewStore is a factory so callers can choose the
// in-memory or Qdrant vector-store backend without this package depending on
// Qdrant's connection details.
func New(cfg Config, embed embedder.Embedder, newStore func(dimension int) vectorstore.Store, distributed *querycache.DistributedCache) *Index {
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 900
	}
	chunkOverlap := cfg.ChunkOverlap
	if chunkOverlap <= 0 {
		chunkOverlap = 150
	}
	return &Index{
		root:      cfg.Root,
		stampPath: filepath.Join(cfg.Root, "stamp.json"),
		chunkCfg: chunker.Config{
			ChunkSize:    chunkSize,
			ChunkOverlap: chunkOverlap,
			Separators:   chunker.DefaultSeparators,
		},
		embed:       embed,
		newStore:    newStore,
		queryCache:  querycache.New(cfg.CacheTTL, cfg.CacheCap, cfg.CacheEvictN),
		distributed: distributed,
	}
}

// currentStamp walks root and computes the stamp that a fresh build would
// produce, without actually reading file contents.
func currentStamp(root string, chunkSize, chunkOverlap int) (Stamp, []string, error) {
	var files []string
	var latest int64
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "stamp.json" {
				return nil
			}
			return nil
		}
		if filepath.Base(path) == "stamp.json" {
			return nil
		}
		files = append(files, path)
		if mt := info.ModTime().UnixNano(); mt > latest {
			latest = mt
		}
		return nil
	})
	if err != nil {
		return Stamp{}, nil, err
	}
	return Stamp{
		Count:         len(files),
		LatestMtimeNS: latest,
		Root:          root,
		ChunkSize:     chunkSize,
		ChunkOverlap:  chunkOverlap,
	}, files, nil
}

func readStamp(path string) (Stamp, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Stamp{}, false
	}
	var s Stamp
	if err := json.Unmarshal(b, &s); err != nil {
		return Stamp{}, false
	}
	return s, true
}

func writeStamp(path string, s Stamp) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// EnsureIndex rebuilds the index when the sidecar stamp is missing or stale
// relative to the corpus on disk. Safe to call at the top of every search;
// it is a cheap stat-walk when nothing changed.
func (idx *Index) EnsureIndex(ctx context.Context) error {
	want, files, err := currentStamp(idx.root, idx.chunkCfg.ChunkSize, idx.chunkCfg.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("kb: stat corpus: %w", err)
	}

	idx.mu.RLock()
	have := idx.stamp
	storeReady := idx.store != nil
	idx.mu.RUnlock()

	if storeReady && have.equal(want) {
		return nil
	}
	if onDisk, ok := readStamp(idx.stampPath); ok && onDisk.equal(want) && storeReady {
		return nil
	}

	return idx.rebuild(ctx, want, files)
}

func (idx *Index) rebuild(ctx context.Context, stamp Stamp, files []string) error {
	store := idx.newStore(idx.embed.Dimension())
	sources := make([]string, 0)

	for _, path := range files {
		text, err := loaders.Load(path)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(idx.root, path)
		if err != nil {
			rel = path
		}
		chunks := chunker.Split(text, idx.chunkCfg)
		if len(chunks) == 0 {
			continue
		}
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vecs, err := idx.embed.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("kb: embed %s: %w", rel, err)
		}
		for i, c := range chunks {
			id := fmt.Sprintf("%s#%d", rel, c.Index)
			meta := map[string]string{
				"source": rel,
				"text":   c.Text,
			}
			if err := store.Upsert(ctx, id, vecs[i], meta); err != nil {
				return fmt.Errorf("kb: upsert %s: %w", id, err)
			}
			sources = append(sources, rel)
		}
	}

	if err := writeStamp(idx.stampPath, stamp); err != nil {
		return fmt.Errorf("kb: write stamp: %w", err)
	}

	idx.mu.Lock()
	idx.stamp = stamp
	idx.store = store
	idx.sources = sources
	idx.mu.Unlock()

	if idx.distributed != nil {
		_ = idx.distributed.Invalidate(ctx)
	}
	return nil
}

var (
	quotedPattern = regexp.MustCompile(`"([^"]{2,})"`)
	cuePattern    = regexp.MustCompile(`(?i)(?:tell me about|who is|employee)\s+([a-zA-Z0-9 .'-]{2,60})`)
)

// entityHint extracts a candidate entity name from quoted text or common
// cue phrases, used to boost source-path relevance during ranking.
func entityHint(query string) string {
	if m := quotedPattern.FindStringSubmatch(query); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := cuePattern.FindStringSubmatch(query); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func tokens(s string, minLen int) []string {
	var out []string
	for _, f := range strings.Fields(strings.ToLower(s)) {
		f = strings.Trim(f, ".,?!'\"")
		if len(f) >= minLen {
			out = append(out, f)
		}
	}
	return out
}

// sourceBoost scores how strongly a candidate's source path matches the
// query and entity hint: +100 if every ≥2-char hint token appears in the
// source path, +1 per ≥3-char query token present in the source path.
func sourceBoost(query, source, hint string) float64 {
	var boost float64
	lowerSource := strings.ToLower(source)
	if hint != "" {
		hintToks := tokens(hint, 2)
		allPresent := len(hintToks) > 0
		for _, t := range hintToks {
			if !strings.Contains(lowerSource, t) {
				allPresent = false
				break
			}
		}
		if allPresent {
			boost += 100
		}
	}
	for _, t := range tokens(query, 3) {
		if strings.Contains(lowerSource, t) {
			boost++
		}
	}
	return boost
}

func passesStrictFilter(source, hint string) bool {
	if hint == "" {
		return true
	}
	lowerSource := strings.ToLower(source)
	for _, t := range tokens(hint, 2) {
		if !strings.Contains(lowerSource, t) {
			return false
		}
	}
	return true
}

// SearchResult is the outcome of a KB search: either Citations are populated,
// or EntityNotFound names the hint that produced no matching source.
type SearchResult struct {
	Citations      []turnstate.Citation
	EntityNotFound string
}

// Search runs the ranked KB search described in spec.md §4.10: fetch
// max(8, top_k*4) candidates, score by -distance + source_boost, restrict to
// the strict filter when an entity hint exists, and otherwise signal
// entity_not_found.
func (idx *Index) Search(ctx context.Context, query string, topK int) (SearchResult, error) {
	if err := idx.EnsureIndex(ctx); err != nil {
		return SearchResult{}, err
	}
	if topK <= 0 {
		topK = 4
	}

	idx.mu.RLock()
	store := idx.store
	sig := idx.stamp.Signature()
	idx.mu.RUnlock()

	cacheKey := querycache.Key(query, topK, sig)
	if cached, ok := idx.queryCache.Get(cacheKey); ok {
		return cached.(SearchResult), nil
	}
	if idx.distributed != nil {
		var cached SearchResult
		if idx.distributed.Get(ctx, cacheKey, &cached) {
			idx.queryCache.Set(cacheKey, cached)
			return cached, nil
		}
	}

	fetchK := topK * 4
	if fetchK < 8 {
		fetchK = 8
	}

	vecs, err := idx.embed.EmbedBatch(ctx, []string{query})
	if err != nil {
		return SearchResult{}, fmt.Errorf("kb: embed query: %w", err)
	}
	candidates, err := store.SimilaritySearch(ctx, vecs[0], fetchK, nil)
	if err != nil {
		return SearchResult{}, fmt.Errorf("kb: search: %w", err)
	}

	hint := entityHint(query)

	ranked := make([]scoredCandidate, 0, len(candidates))
	anyPassesFilter := false
	for _, c := range candidates {
		source := c.Metadata["source"]
		// c.Score is a similarity (higher is better), so it already plays the
		// role of "-distance" in the spec's score formula.
		s := c.Score + sourceBoost(query, source, hint)
		ranked = append(ranked, scoredCandidate{res: c, score: s})
		if passesStrictFilter(source, hint) {
			anyPassesFilter = true
		}
	}

	if hint != "" && anyPassesFilter {
		filtered := ranked[:0]
		for _, r := range ranked {
			if passesStrictFilter(r.res.Metadata["source"], hint) {
				filtered = append(filtered, r)
			}
		}
		ranked = filtered
	} else if hint != "" && !anyPassesFilter {
		result := SearchResult{EntityNotFound: hint}
		idx.queryCache.Set(cacheKey, result)
		if idx.distributed != nil {
			idx.distributed.Set(ctx, cacheKey, result)
		}
		return result, nil
	}

	sortByScoreDesc(ranked)
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	citations := make([]turnstate.Citation, 0, len(ranked))
	for _, r := range ranked {
		source := r.res.Metadata["source"]
		snippet := r.res.Metadata["text"]
		if len(snippet) > 300 {
			snippet = snippet[:300]
		}
		citations = append(citations, turnstate.Citation{
			Title:   filepath.Base(source),
			URL:     source,
			Snippet: snippet,
		})
	}

	result := SearchResult{Citations: citations}
	idx.queryCache.Set(cacheKey, result)
	if idx.distributed != nil {
		idx.distributed.Set(ctx, cacheKey, result)
	}
	return result, nil
}

// scoredCandidate pairs a vector-store hit with its final ranking score.
type scoredCandidate struct {
	res   vectorstore.Result
	score float64
}

func sortByScoreDesc(items []scoredCandidate) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].score > items[j-1].score; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}
