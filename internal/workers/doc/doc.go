// Package doc implements the doc lane worker: extract pulls plain text out
// of a session attachment, generate renders markdown into the requested
// output format and persists the bytes.
package doc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"lanecore/internal/objectstore"
	"lanecore/internal/retrieval/loaders"
	"lanecore/internal/turnstate"
)

// ExtractCharLimit caps how much extracted text a doc-extract task returns,
// matching the teacher's preview-sized reads rather than ingesting entire
// documents into a single ToolResult.
const ExtractCharLimit = 8000

// Worker handles both doc instructions against one session's attachments and
// upload prefix.
type Worker struct {
	Store       objectstore.ObjectStore
	Attachments []turnstate.Attachment
	SessionID   string
}

func (w *Worker) Kind() turnstate.TaskKind { return turnstate.TaskDoc }

func (w *Worker) Run(ctx context.Context, task turnstate.Task) turnstate.ToolResult {
	switch task.Instruction {
	case turnstate.DocExtract:
		return w.runExtract(ctx, task)
	case turnstate.DocGenerate:
		return w.runGenerate(ctx, task)
	default:
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskDoc, OK: false, Error: fmt.Sprintf("unsupported doc instruction %q", task.Instruction)}
	}
}

func (w *Worker) runExtract(ctx context.Context, task turnstate.Task) turnstate.ToolResult {
	att := findAttachment(w.Attachments, task.AttachmentID)
	if att == nil {
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskDoc, OK: false, Error: "attachment not found"}
	}
	rc, _, err := w.Store.Get(ctx, att.Path)
	if err != nil {
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskDoc, OK: false, Error: fmt.Sprintf("load attachment: %v", err)}
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskDoc, OK: false, Error: fmt.Sprintf("read attachment: %v", err)}
	}
	text, err := loaders.LoadBytes(data, filepath.Ext(att.Name))
	if err != nil {
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskDoc, OK: false, Error: err.Error()}
	}
	if len(text) > ExtractCharLimit {
		text = text[:ExtractCharLimit]
	}
	return turnstate.ToolResult{
		TaskID: task.ID,
		Kind:   turnstate.TaskDoc,
		OK:     true,
		Data: map[string]any{
			"text":     text,
			"filename": att.Name,
		},
	}
}

func (w *Worker) runGenerate(ctx context.Context, task turnstate.Task) turnstate.ToolResult {
	markdown := task.Text
	if strings.TrimSpace(markdown) == "" {
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskDoc, OK: false, Error: "no markdown content to render"}
	}

	var (
		out      []byte
		mimeType string
		ext      string
		err      error
	)
	switch task.Format {
	case turnstate.FormatPDF:
		out, err = RenderPDF(markdown)
		mimeType, ext = "application/pdf", ".pdf"
	case turnstate.FormatDoc:
		out = RenderRTF(markdown)
		mimeType, ext = "application/rtf", ".rtf"
	case turnstate.FormatTXT:
		out = []byte(stripMarkdown(markdown))
		mimeType, ext = "text/plain", ".txt"
	case turnstate.FormatMD:
		out = []byte(markdown)
		mimeType, ext = "text/markdown", ".md"
	default:
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskDoc, OK: false, Error: fmt.Sprintf("unsupported format %q", task.Format)}
	}
	if err != nil {
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskDoc, OK: false, Error: err.Error()}
	}

	key := objectstore.UploadKey(w.SessionID, objectstore.Now(), ext)
	if _, err := w.Store.Put(ctx, key, bytes.NewReader(out), objectstore.PutOptions{ContentType: mimeType}); err != nil {
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskDoc, OK: false, Error: fmt.Sprintf("persist document: %v", err)}
	}

	return turnstate.ToolResult{
		TaskID: task.ID,
		Kind:   turnstate.TaskDoc,
		OK:     true,
		Data: map[string]any{
			"filename": key,
			"url":      objectstore.AssetURL(key),
			"mime":     mimeType,
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

// stripMarkdown removes the heading/emphasis markup a markdown-to-txt
// conversion should drop, keeping line breaks intact.
func stripMarkdown(md string) string {
	lines := strings.Split(md, "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, "#")
		trimmed = strings.TrimSpace(trimmed)
		trimmed = strings.ReplaceAll(trimmed, "**", "")
		trimmed = strings.ReplaceAll(trimmed, "*", "")
		trimmed = strings.ReplaceAll(trimmed, "`", "")
		lines[i] = trimmed
	}
	return strings.Join(lines, "\n")
}
