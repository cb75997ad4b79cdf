// Package embedder converts chunk text into vectors for the retrieval
// index engine.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"time"

	"lanecore/internal/config"
)

// Embedder converts text into embedding vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
	Dimension() int
}

type httpEmbedder struct {
	cfg config.EmbeddingConfig
	dim int
}

// NewHTTP builds an embedder that calls an OpenAI-compatible embeddings
// endpoint (POST {model, input} -> {data: [{embedding}]}).
func NewHTTP(cfg config.EmbeddingConfig) Embedder {
	return &httpEmbedder{cfg: cfg, dim: cfg.Dimension}
}

func (h *httpEmbedder) Name() string   { return h.cfg.Model }
func (h *httpEmbedder) Dimension() int { return h.dim }

type embedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (h *httpEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(embedReq{Model: h.cfg.Model, Input: texts})
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(h.cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodPost, h.cfg.BaseURL+h.cfg.Path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.cfg.APIHeader == "Authorization" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	} else if h.cfg.APIHeader != "" {
		req.Header.Set(h.cfg.APIHeader, h.cfg.APIKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embeddings error: %s: %s", resp.Status, string(b))
	}
	var out embedResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	vecs := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

// deterministic is a hash-based offline embedder: useful for tests and for
// environments with no embedding endpoint configured. It hashes byte
// 3-grams into a fixed-size vector.
type deterministic struct {
	dim int
}

// NewDeterministic builds a dependency-free embedder for tests and
// local/offline operation.
func NewDeterministic(dim int) Embedder {
	if dim <= 0 {
		dim = 64
	}
	return &deterministic{dim: dim}
}

func (d *deterministic) Name() string   { return "deterministic" }
func (d *deterministic) Dimension() int { return d.dim }

func (d *deterministic) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = d.embedOne(t)
	}
	return out, nil
}

func (d *deterministic) embedOne(s string) []float32 {
	v := make([]float32, d.dim)
	b := []byte(s)
	if len(b) < 3 {
		addGram(b, v)
		return v
	}
	for i := 0; i <= len(b)-3; i++ {
		addGram(b[i:i+3], v)
	}
	return v
}

func addGram(gram []byte, v []float32) {
	h := fnv.New32a()
	h.Write(gram)
	idx := int(h.Sum32()) % len(v)
	if idx < 0 {
		idx += len(v)
	}
	v[idx]++
}
