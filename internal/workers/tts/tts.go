// Package tts implements the text_to_speech lane worker: an opaque adapter
// over an OpenAI-compatible /v1/audio/speech endpoint that persists the
// synthesized audio bytes and reports them in the image-gen/TTS result shape
// spec.md §4.11 calls for.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"lanecore/internal/config"
	"lanecore/internal/objectstore"
	"lanecore/internal/turnstate"
)

// Worker synthesizes speech from a task's text via a plain HTTP POST against
// an OpenAI-compatible TTS endpoint, then persists the resulting bytes.
//
// Intentionally plain net/http for the POST, same as the teacher's
// internal/tools/tts/tool.go: the project already imports an OpenAI SDK for
// chat, but that SDK has no first-class audio/speech binding the teacher
// used either, so the raw request keeps parity rather than adding a second,
// thinner HTTP path alongside it.
type Worker struct {
	BaseURL    string
	APIKey     string
	Model      string
	Voice      string
	HTTPClient *http.Client
	Store      objectstore.ObjectStore
	SessionID  string
}

// New builds a text_to_speech Worker, falling back to the OpenAI provider's
// BaseURL when the TTS BaseURL is unset; the API key is always the OpenAI
// provider's.
func New(cfg config.Config, store objectstore.ObjectStore, sessionID string) *Worker {
	base := cfg.TTS.BaseURL
	if base == "" {
		base = cfg.OpenAI.BaseURL
	}
	if base == "" {
		base = "https://api.openai.com"
	}
	apiKey := cfg.OpenAI.APIKey
	model := cfg.Models.TTSModel
	if model == "" {
		model = "gpt-4o-mini-tts"
	}
	return &Worker{
		BaseURL:   strings.TrimRight(base, "/"),
		APIKey:    apiKey,
		Model:     model,
		Voice:     cfg.TTS.Voice,
		Store:     store,
		SessionID: sessionID,
	}
}

func (w *Worker) Kind() turnstate.TaskKind { return turnstate.TaskTTS }

type speechRequest struct {
	Model string `json:"model,omitempty"`
	Voice string `json:"voice,omitempty"`
	Input string `json:"input"`
}

func (w *Worker) Run(ctx context.Context, task turnstate.Task) turnstate.ToolResult {
	text := strings.TrimSpace(task.Text)
	if text == "" {
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskTTS, OK: false, Error: "text is required"}
	}
	voice := task.Voice
	if voice == "" {
		voice = w.Voice
	}

	body := speechRequest{Model: w.Model, Voice: voice, Input: text}
	b, err := json.Marshal(body)
	if err != nil {
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskTTS, OK: false, Error: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.BaseURL+"/v1/audio/speech", bytes.NewReader(b))
	if err != nil {
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskTTS, OK: false, Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if w.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.APIKey)
	}

	resp, err := w.client().Do(req)
	if err != nil {
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskTTS, OK: false, Error: fmt.Sprintf("tts request: %v", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		lim := io.LimitReader(resp.Body, 8<<10)
		b, _ := io.ReadAll(lim)
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskTTS, OK: false, Error: fmt.Sprintf("tts server error: %d %s", resp.StatusCode, strings.TrimSpace(string(b)))}
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskTTS, OK: false, Error: fmt.Sprintf("read audio: %v", err)}
	}

	mimeType, ext := detectAudioFormat(audio)
	key := objectstore.UploadKey(w.SessionID, objectstore.Now(), ext)
	if _, err := w.Store.Put(ctx, key, bytes.NewReader(audio), objectstore.PutOptions{ContentType: mimeType}); err != nil {
		return turnstate.ToolResult{TaskID: task.ID, Kind: turnstate.TaskTTS, OK: false, Error: fmt.Sprintf("persist audio: %v", err)}
	}

	return turnstate.ToolResult{
		TaskID: task.ID,
		Kind:   turnstate.TaskTTS,
		OK:     true,
		Data: map[string]any{
			"filename": key,
			"url":      objectstore.AssetURL(key),
			"mime":     mimeType,
			"model":    w.Model,
			"text":     text,
		},
	}
}

func (w *Worker) client() *http.Client {
	if w.HTTPClient != nil {
		return w.HTTPClient
	}
	return http.DefaultClient
}

// detectAudioFormat sniffs WAV vs. MP3 from the leading bytes, same
// signatures the teacher's saveFinalAudio checks for.
func detectAudioFormat(audio []byte) (mimeType, ext string) {
	if len(audio) >= 12 && string(audio[0:4]) == "RIFF" && string(audio[8:12]) == "WAVE" {
		return "audio/wav", ".wav"
	}
	if len(audio) >= 3 {
		if (audio[0] == 0xFF && (audio[1] == 0xFB || audio[1] == 0xFA)) || string(audio[0:3]) == "ID3" {
			return "audio/mpeg", ".mp3"
		}
	}
	return "audio/wav", ".wav"
}
