package httpapi

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"lanecore/internal/config"
	"lanecore/internal/events"
	"lanecore/internal/llm"
	"lanecore/internal/objectstore"
	"lanecore/internal/session"
)

type fakeEngine struct {
	final string
}

func (f *fakeEngine) RunTurn(sessionID, provider, model, text string, bus *events.Bus) {
	bus.Publish(events.Event{Type: events.TypeFinal, Data: map[string]any{"text": f.final}})
	bus.Close()
}

func newTestServer(t *testing.T) (*Server, *session.Store) {
	t.Helper()
	sessions := session.NewStore(0)
	objects := objectstore.NewMemoryStore()
	factory, err := llm.NewFactory(config.Config{OpenAI: config.ProviderConfig{APIKey: "test-key", Model: "gpt-4o-mini"}, LLMProvider: "openai"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := config.Config{MaxAttachments: 8, MaxUserChars: 15000}
	return NewServer(sessions, objects, factory, &fakeEngine{final: "hi there"}, cfg), sessions
}

func TestHandleChatStream_StreamsBusEventsAsSSE(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(chatStreamRequest{SessionID: "s1", Text: "hello"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected SSE content type, got %q", ct)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("event: final")) {
		t.Fatalf("expected a final event frame, got %q", rec.Body.String())
	}
}

func TestHandleUpload_StoresAttachmentAndListsIt(t *testing.T) {
	srv, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("session_id", "s1")
	part, _ := mw.CreateFormFile("f", "note.txt")
	_, _ = part.Write([]byte("hello world"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	listReq := httptest.NewRequest(http.MethodGet, "/api/uploads/s1", nil)
	listRec := httptest.NewRecorder()
	srv.ServeHTTP(listRec, listReq)

	var out struct {
		Attachments []struct{ Name string } `json:"attachments"`
	}
	if err := json.Unmarshal(listRec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Attachments) != 1 || out.Attachments[0].Name != "note.txt" {
		t.Fatalf("expected 1 attachment named note.txt, got %+v", out.Attachments)
	}
}

func TestHandleGetAsset_404sWhenMissing(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/assets/s1/missing.png", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleModels_ReportsConfiguredProvider(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/models", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var out struct {
		Providers []string          `json:"providers"`
		Models    map[string]string `json:"models"`
		Default   string            `json:"default"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Providers) != 1 || out.Providers[0] != "openai" {
		t.Fatalf("expected [openai], got %v", out.Providers)
	}
	if out.Default != "openai" {
		t.Fatalf("expected default openai, got %q", out.Default)
	}
}

func TestHandleSessionMeta_ReportsNonExistentSession(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/session/meta?session_id=ghost", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var out struct {
		Exists bool `json:"exists"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Exists {
		t.Fatal("expected exists=false for an unknown session")
	}
}

func TestHandleSessionClear_EvictsSession(t *testing.T) {
	srv, sessions := newTestServer(t)
	sessions.GetOrCreate("s1")

	body, _ := json.Marshal(map[string]string{"session_id": "s1"})
	req := httptest.NewRequest(http.MethodPost, "/api/session/clear", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if _, ok := sessions.Get("s1"); ok {
		t.Fatal("expected session to be cleared")
	}
}
