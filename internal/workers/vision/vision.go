// Package vision implements the vision lane worker: it resolves a session's
// referenced image attachment, base64-encodes it as a data URL, and passes it
// alongside the task's prompt to an image-capable LLM call.
package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"lanecore/internal/llm"
	"lanecore/internal/llm/openai"
	"lanecore/internal/objectstore"
	"lanecore/internal/turnstate"
)

// Worker answers a vision task by sending the referenced attachment's bytes
// to an OpenAI-compatible vision-capable chat completion.
//
// Grounded on internal/agentd/handlers_media.go's agentVisionHandler, which
// also restricts vision to the OpenAI client specifically
// (ChatWithImageAttachments is a concrete method on *openai.Client, not part
// of the generic llm.Provider interface, since Gemini's equivalent path goes
// through inline image parts rather than a base64 data URL attachment).
type Worker struct {
	Client      *openai.Client
	Model       string
	Store       objectstore.ObjectStore
	Attachments []turnstate.Attachment
}

func (w *Worker) Kind() turnstate.TaskKind { return turnstate.TaskVision }

func (w *Worker) Run(ctx context.Context, task turnstate.Task) turnstate.ToolResult {
	att := findAttachment(w.Attachments, task.ImageAttachmentID)
	if att == nil {
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskVision, OK: false, Error: "image attachment not found"}
	}

	rc, _, err := w.Store.Get(ctx, att.Path)
	if err != nil {
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskVision, OK: false, Error: fmt.Sprintf("load attachment: %v", err)}
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskVision, OK: false, Error: fmt.Sprintf("read attachment: %v", err)}
	}

	mimeType := strings.TrimSpace(att.MIME)
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	images := []openai.ImageAttachment{{MimeType: mimeType, Base64Data: base64.StdEncoding.EncodeToString(data)}}
	msgs := []llm.Message{{Role: "user", Content: task.Prompt}}

	reply, err := w.Client.ChatWithImageAttachments(ctx, msgs, images, nil, w.Model)
	if err != nil {
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskVision, OK: false, Error: err.Error()}
	}

	return turnstate.ToolResult{
		TaskID: task.ID,
		Kind:   turnstate.TaskVision,
		OK:     true,
		Data: map[string]any{
			"text":  reply.Content,
			"model": w.Model,
		},
	}
}

func findAttachment(atts []turnstate.Attachment, id string) *turnstate.Attachment {
	for i := range atts {
		if atts[i].ID == id {
			return &atts[i]
		}
	}
	return nil
}
