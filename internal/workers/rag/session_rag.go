package rag

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"lanecore/internal/objectstore"
	"lanecore/internal/retrieval/chunker"
	"lanecore/internal/retrieval/embedder"
	"lanecore/internal/retrieval/loaders"
	"lanecore/internal/retrieval/vectorstore"
	"lanecore/internal/turnstate"
)

// SessionWorker answers rag tasks against a lazily-built, in-memory index
// over the session's own doc attachments: the first rag task for a given
// attachment set pays the chunk+embed cost, every task after that against
// the same attachments reuses the built store. There is no stamp/cache tier
// here (unlike kb.Index) since a session's attachment set is small and the
// index's lifetime is bounded by the session itself.
type SessionWorker struct {
	Store    objectstore.ObjectStore
	Embed    embedder.Embedder
	NewStore func(dimension int) vectorstore.Store
	ChunkCfg chunker.Config

	mu          sync.Mutex
	builtKey    string
	built       vectorstore.Store
	Attachments []turnstate.Attachment
}

func (w *SessionWorker) Kind() turnstate.TaskKind { return turnstate.TaskRAG }

func (w *SessionWorker) Run(ctx context.Context, task turnstate.Task) turnstate.ToolResult {
	store, err := w.ensureBuilt(ctx)
	if err != nil {
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskRAG, OK: false, Error: err.Error()}
	}
	if store == nil {
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskRAG, OK: true, Citations: nil}
	}

	topK := task.TopK
	if topK <= 0 {
		topK = 4
	}
	qvecs, err := w.Embed.EmbedBatch(ctx, []string{task.Query})
	if err != nil || len(qvecs) == 0 {
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskRAG, OK: false, Error: fmt.Sprintf("embed query: %v", err)}
	}
	results, err := store.SimilaritySearch(ctx, qvecs[0], topK, nil)
	if err != nil {
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskRAG, OK: false, Error: err.Error()}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	citations := make([]turnstate.Citation, 0, len(results))
	for _, r := range results {
		citations = append(citations, turnstate.Citation{
			Title:   r.Metadata["source"],
			URL:     r.Metadata["source"],
			Snippet: truncate(r.Metadata["text"], 300),
		})
	}
	return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskRAG, OK: true, Citations: citations}
}

// ensureBuilt rebuilds the in-memory store only when the attachment set
// (by ID, order-independent) has changed since the last build.
func (w *SessionWorker) ensureBuilt(ctx context.Context) (vectorstore.Store, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	docs := docAttachments(w.Attachments)
	key := attachmentSetKey(docs)
	if key == w.builtKey && w.built != nil {
		return w.built, nil
	}
	if len(docs) == 0 {
		w.builtKey = key
		w.built = nil
		return nil, nil
	}

	store := w.NewStore(w.Embed.Dimension())
	for _, att := range docs {
		rc, _, err := w.Store.Get(ctx, att.Path)
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		text, err := loaders.LoadBytes(data, filepath.Ext(att.Name))
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		chunks := chunker.Split(text, w.ChunkCfg)
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vecs, err := w.Embed.EmbedBatch(ctx, texts)
		if err != nil {
			continue
		}
		for i, c := range chunks {
			id := fmt.Sprintf("%s#%d", att.ID, c.Index)
			_ = store.Upsert(ctx, id, vecs[i], map[string]string{"source": att.Name, "text": c.Text})
		}
	}

	w.builtKey = key
	w.built = store
	return store, nil
}

func docAttachments(atts []turnstate.Attachment) []turnstate.Attachment {
	var out []turnstate.Attachment
	for _, a := range atts {
		if a.Kind == turnstate.AttachmentDoc {
			out = append(out, a)
		}
	}
	return out
}

func attachmentSetKey(atts []turnstate.Attachment) string {
	ids := make([]string, len(atts))
	for i, a := range atts {
		ids[i] = a.ID
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
