package tts

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"lanecore/internal/objectstore"
	"lanecore/internal/turnstate"
)

type memStore struct {
	puts map[string][]byte
}

func newMemStore() *memStore { return &memStore{puts: map[string][]byte{}} }

func (m *memStore) Put(ctx context.Context, key string, r io.Reader, opts objectstore.PutOptions) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.puts[key] = b
	return "etag", nil
}
func (m *memStore) Get(ctx context.Context, key string) (io.ReadCloser, objectstore.ObjectAttrs, error) {
	return io.NopCloser(bytes.NewReader(m.puts[key])), objectstore.ObjectAttrs{Key: key}, nil
}
func (m *memStore) Delete(ctx context.Context, key string) error { delete(m.puts, key); return nil }
func (m *memStore) List(ctx context.Context, opts objectstore.ListOptions) (objectstore.ListResult, error) {
	return objectstore.ListResult{}, nil
}
func (m *memStore) Head(ctx context.Context, key string) (objectstore.ObjectAttrs, error) {
	return objectstore.ObjectAttrs{Key: key}, nil
}
func (m *memStore) Copy(ctx context.Context, srcKey, dstKey string) error { return nil }
func (m *memStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.puts[key]
	return ok, nil
}

func TestRun_PersistsAudioAndSetsText(t *testing.T) {
	wavBody := append([]byte("RIFF\x00\x00\x00\x00WAVEfmt "), make([]byte, 20)...)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(wavBody)
	}))
	defer srv.Close()

	store := newMemStore()
	worker := &Worker{BaseURL: srv.URL, Model: "test-tts-model", Store: store, SessionID: "sess1"}

	res := worker.Run(context.Background(), turnstate.Task{ID: "t1", Text: "hello there"})
	if !res.OK {
		t.Fatalf("expected OK result, got error: %s", res.Error)
	}
	if res.Data["text"] != "hello there" {
		t.Fatalf("expected text to round-trip, got %v", res.Data["text"])
	}
	key, _ := res.Data["filename"].(string)
	if key == "" {
		t.Fatal("expected a filename key")
	}
	if _, ok := store.puts[key]; !ok {
		t.Fatal("expected audio bytes persisted")
	}
}

func TestRun_EmptyTextErrors(t *testing.T) {
	worker := &Worker{Store: newMemStore(), SessionID: "sess1"}
	res := worker.Run(context.Background(), turnstate.Task{ID: "t2", Text: "   "})
	if res.OK {
		t.Fatal("expected failure for empty text")
	}
}

func TestRun_ServerErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	worker := &Worker{BaseURL: srv.URL, Store: newMemStore(), SessionID: "sess1"}
	res := worker.Run(context.Background(), turnstate.Task{ID: "t3", Text: "hi"})
	if res.OK {
		t.Fatal("expected failure on server error")
	}
}

func TestDetectAudioFormat_RecognizesWAVAndMP3(t *testing.T) {
	wav := append([]byte("RIFF\x00\x00\x00\x00WAVE"), make([]byte, 10)...)
	if mt, ext := detectAudioFormat(wav); mt != "audio/wav" || ext != ".wav" {
		t.Fatalf("got %s %s", mt, ext)
	}
	mp3 := []byte{0xFF, 0xFB, 0x90}
	if mt, ext := detectAudioFormat(mp3); mt != "audio/mpeg" || ext != ".mp3" {
		t.Fatalf("got %s %s", mt, ext)
	}
}

func TestKind_ReturnsTTS(t *testing.T) {
	w := &Worker{}
	if w.Kind() != turnstate.TaskTTS {
		t.Fatalf("expected TaskTTS, got %v", w.Kind())
	}
}
