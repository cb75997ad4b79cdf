// Package workers defines the uniform contract every lane worker
// implements, and the sub-packages (web, imagegen, tts, doc, vision, rag)
// that implement it per task kind.
package workers

import (
	"context"

	"lanecore/internal/turnstate"
)

// Worker runs exactly one task kind and returns its ToolResult. Workers
// never panic on task failure: they convert errors into {ok:false, error}.
type Worker interface {
	Kind() turnstate.TaskKind
	Run(ctx context.Context, task turnstate.Task) turnstate.ToolResult
}

// Registry resolves a Worker by task kind.
type Registry map[turnstate.TaskKind]Worker

// NewRegistry builds a Registry from a list of workers, keyed by their Kind.
func NewRegistry(ws ...Worker) Registry {
	r := make(Registry, len(ws))
	for _, w := range ws {
		r[w.Kind()] = w
	}
	return r
}
