package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"lanecore/internal/events"
	"lanecore/internal/objectstore"
	"lanecore/internal/turnstate"
)

// chatStreamRequest is the body of POST /api/chat/stream (spec.md §6).
type chatStreamRequest struct {
	SessionID string `json:"session_id"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Text      string `json:"text"`
}

// handleChatStream runs one turn through the planning graph and streams
// every bus event back as SSE, matching the headers and termination
// contract spec.md §6 specifies.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.SessionID == "" {
		respondError(w, http.StatusBadRequest, errors.New("session_id is required"))
		return
	}
	if max := s.Config.MaxUserChars; max > 0 && len(req.Text) > max {
		respondError(w, http.StatusBadRequest, errors.New("text exceeds the maximum allowed length"))
		return
	}

	enc := events.NewEncoder(w)
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("X-Accel-Buffering", "no")
	bus := events.New(0)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Engine.RunTurn(req.SessionID, req.Provider, req.Model, req.Text, bus)
	}()

	enc.Pump(bus, r.Context().Done())
	<-done
}

// handleUpload stores a multipart-uploaded file as a new session attachment.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, errors.New("session_id is required"))
		return
	}

	file, header, err := r.FormFile("f")
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	defer file.Close()

	sess := s.Sessions.GetOrCreate(sessionID)
	if max := s.Config.MaxAttachments; max > 0 && len(sess.Attachments) >= max {
		respondError(w, http.StatusConflict, errors.New("attachment limit reached for this session"))
		return
	}

	mime := header.Header.Get("Content-Type")
	if mime == "" {
		mime = "application/octet-stream"
	}
	ext := filepath.Ext(header.Filename)
	key := objectstore.UploadKey(sessionID, objectstore.Now(), ext)
	if _, err := s.Objects.Put(r.Context(), key, file, objectstore.PutOptions{ContentType: mime}); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	att := turnstate.Attachment{
		ID:   uuid.New().String(),
		Kind: turnstate.KindFromMIME(mime),
		Name: header.Filename,
		MIME: mime,
		Path: key,
	}
	sess.Attachments = append(sess.Attachments, att)

	respondJSON(w, http.StatusCreated, att)
}

// handleListUploads lists a session's attachments.
func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.Sessions.Get(r.PathValue("sid"))
	if !ok {
		respondJSON(w, http.StatusOK, map[string]any{"attachments": []turnstate.Attachment{}})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"attachments": sess.Attachments})
}

// handleDeleteUpload removes one attachment from a session and its backing
// object, if any.
func (s *Server) handleDeleteUpload(w http.ResponseWriter, r *http.Request) {
	sid, aid := r.PathValue("sid"), r.PathValue("aid")
	sess, ok := s.Sessions.Get(sid)
	if !ok {
		respondError(w, http.StatusNotFound, errors.New("session not found"))
		return
	}

	idx := -1
	for i, a := range sess.Attachments {
		if a.ID == aid {
			idx = i
			break
		}
	}
	if idx < 0 {
		respondError(w, http.StatusNotFound, errors.New("attachment not found"))
		return
	}

	removed := sess.Attachments[idx]
	sess.Attachments = append(sess.Attachments[:idx], sess.Attachments[idx+1:]...)
	_ = s.Objects.Delete(r.Context(), removed.Path)

	w.WriteHeader(http.StatusNoContent)
}

// handleGetAsset streams a raw stored file back, 404ing if it's missing.
func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	sid, filename := r.PathValue("sid"), r.PathValue("filename")
	key := "uploads/" + sid + "/" + filename

	rc, attrs, err := s.Objects.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	defer rc.Close()

	if attrs.ContentType != "" {
		w.Header().Set("Content-Type", attrs.ContentType)
	}
	io.Copy(w, rc)
}

// handleModels reports the configured providers, their default models, and
// the process-wide default provider (spec.md §6's {providers, models,
// default}).
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	providers := s.Factory.ConfiguredProviders()
	models := make(map[string]string, len(providers))
	for _, p := range providers {
		models[p] = s.Factory.DefaultModel(p)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"providers": providers,
		"models":    models,
		"default":   s.Factory.DefaultProvider(),
	})
}

// bootID is generated once per process, so a client that sees it change
// knows the server restarted and its sessions are gone.
var bootID = uuid.NewString()

// handleSessionMeta reports the server's boot id and a session's history
// length, attachments, and artifact memory, for a reconnecting client to
// rehydrate its view.
func (s *Server) handleSessionMeta(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		respondError(w, http.StatusBadRequest, errors.New("session_id is required"))
		return
	}
	sess, ok := s.Sessions.Get(id)
	if !ok {
		respondJSON(w, http.StatusOK, map[string]any{"session_id": id, "exists": false, "boot_id": bootID})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id":   id,
		"boot_id":      bootID,
		"exists":       true,
		"title":        strings.TrimSpace(sessionTitle(sess)),
		"history_len":  len(sess.History),
		"attachments":  sess.Attachments,
		"last_access":  sess.LastAccessAt,
		"has_image":    sess.Artifacts.Image != nil,
		"has_document": sess.Artifacts.Doc != nil,
	})
}

func sessionTitle(sess *turnstate.Session) string {
	if len(sess.History) == 0 {
		return ""
	}
	return sess.History[0].Content
}

// handleSessionClear evicts a session entirely; the next turn starts fresh.
func (s *Server) handleSessionClear(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		respondError(w, http.StatusBadRequest, errors.New("session_id is required"))
		return
	}
	s.Sessions.Clear(req.SessionID)
	w.WriteHeader(http.StatusNoContent)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"error": err.Error()})
}
