// Package imagegen implements the image_gen lane worker: an opaque adapter
// over an image-capable llm.Provider that persists the generated bytes and
// reports them in the shape the lane executor's subject-lock check and the
// artifact-memory updater expect.
package imagegen

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"strings"

	"lanecore/internal/config"
	"lanecore/internal/llm"
	"lanecore/internal/objectstore"
	"lanecore/internal/turnstate"
)

// Worker generates an image from a task's prompt via an LLM provider's
// image-capable chat surface, then persists the resulting bytes. Provider is
// resolved once at wiring time (see New) rather than held as a *llm.Factory,
// so tests can inject a fake implementing the two-method llm.Provider interface.
type Worker struct {
	Provider  llm.Provider
	Model     string
	Store     objectstore.ObjectStore
	SessionID string
}

// New builds an image_gen Worker bound to one session's upload prefix,
// resolving the image-capable provider from factory up front.
func New(factory *llm.Factory, cfg config.Config, store objectstore.ObjectStore, sessionID string) (*Worker, error) {
	provider, err := factory.Provider("")
	if err != nil {
		return nil, err
	}
	return &Worker{Provider: provider, Model: cfg.Models.ImageModel, Store: store, SessionID: sessionID}, nil
}

func (w *Worker) Kind() turnstate.TaskKind { return turnstate.TaskImageGen }

func (w *Worker) Run(ctx context.Context, task turnstate.Task) turnstate.ToolResult {
	msgs := []llm.Message{{Role: "user", Content: task.Prompt}}
	reply, err := w.Provider.Chat(ctx, msgs, nil, w.Model)
	if err != nil {
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskImageGen, OK: false, Error: err.Error()}
	}
	if len(reply.Images) == 0 {
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskImageGen, OK: false, Error: "no image returned by provider"}
	}
	img := reply.Images[0]

	mimeType := strings.TrimSpace(img.MIMEType)
	if mimeType == "" {
		mimeType = "image/png"
	}
	ext := ".png"
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		ext = exts[0]
	}

	key := objectstore.UploadKey(w.SessionID, objectstore.Now(), ext)
	if _, err := w.Store.Put(ctx, key, bytes.NewReader(img.Data), objectstore.PutOptions{ContentType: mimeType}); err != nil {
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskImageGen, OK: false, Error: fmt.Sprintf("persist image: %v", err)}
	}

	return turnstate.ToolResult{
		TaskID: task.ID,
		Kind:   turnstate.TaskImageGen,
		OK:     true,
		Data: map[string]any{
			"filename": key,
			"url":      objectstore.AssetURL(key),
			"mime":     mimeType,
			"model":    w.Model,
			// prompt is read back by the lane executor's subject-lock check.
			"prompt": task.Prompt,
		},
	}
}
