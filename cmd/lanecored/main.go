// Command lanecored runs the HTTP chat surface (spec.md §6): it loads
// config, wires the LLM factory, object store, knowledge-base index, and
// session store, then serves the planning-graph engine over SSE.
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"lanecore/internal/config"
	"lanecore/internal/engine"
	"lanecore/internal/graph"
	"lanecore/internal/httpapi"
	"lanecore/internal/llm"
	"lanecore/internal/llm/openai"
	"lanecore/internal/objectstore"
	"lanecore/internal/observability"
	"lanecore/internal/observability/auditsink"
	"lanecore/internal/retrieval/embedder"
	"lanecore/internal/retrieval/kb"
	"lanecore/internal/retrieval/querycache"
	"lanecore/internal/retrieval/vectorstore"
	"lanecore/internal/rolepack"
	"lanecore/internal/session"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("lanecored: load config failed")
	}

	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	shutdown, err := observability.InitOTel(context.Background(), cfg.Obs)
	if err != nil {
		log.Warn().Err(err).Msg("lanecored: otel init failed, continuing without observability")
	}
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	httpClient := observability.NewHTTPClient(nil)

	factory, err := llm.NewFactory(cfg, httpClient)
	if err != nil {
		log.Fatal().Err(err).Msg("lanecored: build llm factory failed")
	}

	var objects objectstore.ObjectStore = objectstore.NewMemoryStore()
	if cfg.S3.Enabled {
		s3store, err := objectstore.NewS3Store(context.Background(), cfg.S3)
		if err != nil {
			log.Fatal().Err(err).Msg("lanecored: build s3 store failed")
		}
		objects = s3store
	}

	embed := embedder.NewHTTP(cfg.Embedding)
	newVectorStore := vectorStoreFactory(cfg)

	var kbIndex *kb.Index
	if cfg.KB.RootPath != "" {
		distributed, err := querycache.NewDistributed(cfg.Redis, time.Duration(cfg.KB.CacheTTLSec)*time.Second)
		if err != nil {
			log.Warn().Err(err).Msg("lanecored: distributed kb query cache unavailable")
		}
		kbIndex = kb.New(kb.Config{
			Root:         cfg.KB.RootPath,
			ChunkSize:    cfg.KB.ChunkSize,
			ChunkOverlap: cfg.KB.ChunkOverlap,
			CacheTTL:     time.Duration(cfg.KB.CacheTTLSec) * time.Second,
			CacheCap:     cfg.KB.CacheCap,
			CacheEvictN:  cfg.KB.CacheEvictN,
		}, embed, newVectorStore, distributed)
	}

	var visionClient *openai.Client
	if cfg.OpenAI.APIKey != "" {
		visionClient = openai.New(config.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			Model:   cfg.OpenAI.Model,
			BaseURL: cfg.OpenAI.BaseURL,
		}, httpClient)
	}

	rolePackTpl, err := rolepack.Load(roleTemplatePath(cfg))
	if err != nil {
		log.Warn().Err(err).Msg("lanecored: role-pack template unavailable, using defaults")
		rolePackTpl = nil
	}

	sessions := session.NewStore(0)

	audit, err := auditsink.New(context.Background(), cfg.ClickHouse)
	if err != nil {
		log.Warn().Err(err).Msg("lanecored: audit sink unavailable, continuing without it")
		audit = nil
	}

	runner := &engine.TurnRunner{
		Sessions:       sessions,
		Factory:        factory,
		Objects:        objects,
		KBIndex:        kbIndex,
		Embed:          embed,
		NewVectorStore: newVectorStore,
		RolePackTpl:    rolePackTpl,
		VisionClient:   visionClient,
		Intent:         &graph.IntentClassifier{Factory: factory, Model: cfg.Routing.IntentModel},
		Audit:          audit,
		Config:         cfg,
	}

	srv := httpapi.NewServer(sessions, objects, factory, runner, cfg)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	log.Info().Str("addr", addr).Msg("lanecored: listening")
	if err := http.ListenAndServe(addr, srv); err != nil {
		log.Fatal().Err(err).Msg("lanecored: server stopped")
	}
}

func vectorStoreFactory(cfg config.Config) func(dimension int) vectorstore.Store {
	if cfg.KB.VectorBackend == "qdrant" {
		return func(dimension int) vectorstore.Store {
			store, err := vectorstore.NewQdrant(cfg.KB.VectorDSN, "lanecore-kb", dimension, "cosine")
			if err != nil {
				log.Warn().Err(err).Msg("lanecored: qdrant unavailable, falling back to memory")
				return vectorstore.NewMemory()
			}
			return store
		}
	}
	return func(int) vectorstore.Store { return vectorstore.NewMemory() }
}

// roleTemplatePath is the optional role-pack override location, matching
// the teacher's workdir-relative config file convention.
func roleTemplatePath(cfg config.Config) string {
	if cfg.Workdir == "" {
		return "rolepack.yaml"
	}
	return cfg.Workdir + "/rolepack.yaml"
}
