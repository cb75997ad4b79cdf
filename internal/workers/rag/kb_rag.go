// Package rag implements the two retrieval lane workers: kb_rag against the
// global knowledge-base index, and rag against a per-session lazily-built
// index over the session's own document attachments.
package rag

import (
	"context"

	"lanecore/internal/retrieval/kb"
	"lanecore/internal/turnstate"
)

// KBWorker answers kb_rag tasks against the process-wide knowledge-base
// index (internal/retrieval/kb.Index), which already owns its own
// stamp-invalidated rebuild, entity-aware ranking, and query-result cache.
type KBWorker struct {
	Index *kb.Index
}

func (w *KBWorker) Kind() turnstate.TaskKind { return turnstate.TaskKBRAG }

func (w *KBWorker) Run(ctx context.Context, task turnstate.Task) turnstate.ToolResult {
	result, err := w.Index.Search(ctx, task.Query, task.TopK)
	if err != nil {
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskKBRAG, OK: false, Error: err.Error()}
	}

	if result.EntityNotFound != "" {
		return turnstate.ToolResult{
			TaskID: task.ID,
			Kind:   turnstate.TaskKBRAG,
			OK:     true,
			Data:   map[string]any{"entity_not_found": result.EntityNotFound},
		}
	}

	return turnstate.ToolResult{
		TaskID:    task.ID,
		Kind:      turnstate.TaskKBRAG,
		OK:        true,
		Citations: result.Citations,
	}
}
