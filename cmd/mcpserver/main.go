// Command mcpserver exposes a subset of the lane workers as MCP tools over
// stdio, so an external MCP client (an editor, another agent) can call
// web search, knowledge-base retrieval, image generation, and
// text-to-speech without going through the chat HTTP surface.
//
// Only the lane workers with no per-session state are exposed here
// (web, kb_rag, image_gen, tts): doc/vision/rag all close over a
// session's current attachment list, which this process-global stdio
// server has no notion of.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	mcppkg "github.com/modelcontextprotocol/go-sdk/mcp"

	"lanecore/internal/config"
	"lanecore/internal/llm"
	"lanecore/internal/objectstore"
	"lanecore/internal/retrieval/embedder"
	"lanecore/internal/retrieval/kb"
	"lanecore/internal/retrieval/querycache"
	"lanecore/internal/retrieval/vectorstore"
	"lanecore/internal/turnstate"
	"lanecore/internal/workers/imagegen"
	"lanecore/internal/workers/tts"
	"lanecore/internal/workers/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("mcpserver: load config: %v", err)
	}

	factory, err := llm.NewFactory(cfg, nil)
	if err != nil {
		log.Fatalf("mcpserver: build llm factory: %v", err)
	}

	var objects objectstore.ObjectStore = objectstore.NewMemoryStore()
	if cfg.S3.Enabled {
		s3store, err := objectstore.NewS3Store(context.Background(), cfg.S3)
		if err != nil {
			log.Fatalf("mcpserver: build s3 store: %v", err)
		}
		objects = s3store
	}

	kbIndex := buildKBIndex(cfg)

	server := mcppkg.NewServer(&mcppkg.Implementation{Name: "lanecore-mcp", Version: "0.1.0"}, nil)

	webWorker := web.New(cfg)
	mcppkg.AddTool(server, &mcppkg.Tool{
		Name:        "web_search",
		Description: "Search the web (tavily + wikipedia) for a query and return ranked snippets.",
	}, webSearchHandler(webWorker))

	if kbIndex != nil {
		mcppkg.AddTool(server, &mcppkg.Tool{
			Name:        "kb_search",
			Description: "Search the process-wide knowledge-base corpus for a query.",
		}, kbSearchHandler(kbIndex))
	}

	mcppkg.AddTool(server, &mcppkg.Tool{
		Name:        "generate_image",
		Description: "Generate an image from a text prompt and return its stored URL.",
	}, imageGenHandler(factory, cfg, objects))

	mcppkg.AddTool(server, &mcppkg.Tool{
		Name:        "synthesize_speech",
		Description: "Synthesize speech audio from text and return its stored URL.",
	}, ttsHandler(cfg, objects))

	log.Println("mcpserver: serving tools over stdio")
	if err := server.Run(context.Background(), &mcppkg.StdioTransport{}); err != nil {
		log.Fatalf("mcpserver: serve: %v", err)
	}
}

// buildKBIndex wires the knowledge-base index from config, the same way
// cmd/lanecored does, returning nil if no corpus root is configured.
func buildKBIndex(cfg config.Config) *kb.Index {
	if cfg.KB.RootPath == "" {
		return nil
	}
	embed := embedder.NewHTTP(cfg.Embedding)
	newStore := vectorStoreFactory(cfg)
	distributed, err := querycache.NewDistributed(cfg.Redis, time.Duration(cfg.KB.CacheTTLSec) * time.Second)
	if err != nil {
		log.Printf("mcpserver: distributed query cache unavailable: %v", err)
		distributed = nil
	}
	return kb.New(kb.Config{
		Root:         cfg.KB.RootPath,
		ChunkSize:    cfg.KB.ChunkSize,
		ChunkOverlap: cfg.KB.ChunkOverlap,
		CacheTTL:     time.Duration(cfg.KB.CacheTTLSec) * time.Second,
		CacheCap:     cfg.KB.CacheCap,
		CacheEvictN:  cfg.KB.CacheEvictN,
	}, embed, newStore, distributed)
}

func vectorStoreFactory(cfg config.Config) func(dimension int) vectorstore.Store {
	if cfg.KB.VectorBackend == "qdrant" {
		return func(dimension int) vectorstore.Store {
			store, err := vectorstore.NewQdrant(cfg.KB.VectorDSN, "lanecore-kb", dimension, "cosine")
			if err != nil {
				log.Printf("mcpserver: qdrant unavailable, falling back to memory: %v", err)
				return vectorstore.NewMemory()
			}
			return store
		}
	}
	return func(int) vectorstore.Store { return vectorstore.NewMemory() }
}

type searchArgs struct {
	Query string `json:"query" jsonschema:"the search query"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"number of results to return, default 4"`
}

func webSearchHandler(w *web.Worker) func(context.Context, *mcppkg.CallToolRequest, searchArgs) (*mcppkg.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcppkg.CallToolRequest, args searchArgs) (*mcppkg.CallToolResult, any, error) {
		topK := args.TopK
		if topK <= 0 {
			topK = 4
		}
		res := w.Run(ctx, turnstate.Task{
			ID: turnstate.NewTaskID(), Kind: turnstate.TaskWeb,
			Query: args.Query, TopK: topK,
			Sources: []turnstate.WebSource{turnstate.WebSourceTavily, turnstate.WebSourceWikipedia},
		})
		return toolResultToMCP(res)
	}
}

func kbSearchHandler(idx *kb.Index) func(context.Context, *mcppkg.CallToolRequest, searchArgs) (*mcppkg.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcppkg.CallToolRequest, args searchArgs) (*mcppkg.CallToolResult, any, error) {
		topK := args.TopK
		if topK <= 0 {
			topK = 4
		}
		result, err := idx.Search(ctx, args.Query, topK)
		if err != nil {
			return &mcppkg.CallToolResult{IsError: true, Content: []mcppkg.Content{&mcppkg.TextContent{Text: err.Error()}}}, nil, nil
		}
		return &mcppkg.CallToolResult{Content: []mcppkg.Content{&mcppkg.TextContent{Text: fmt.Sprintf("%+v", result)}}}, nil, nil
	}
}

type imageGenArgs struct {
	Prompt    string `json:"prompt" jsonschema:"description of the image to generate"`
	SessionID string `json:"session_id" jsonschema:"caller-chosen id used to namespace the stored asset"`
}

func imageGenHandler(factory *llm.Factory, cfg config.Config, objects objectstore.ObjectStore) func(context.Context, *mcppkg.CallToolRequest, imageGenArgs) (*mcppkg.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcppkg.CallToolRequest, args imageGenArgs) (*mcppkg.CallToolResult, any, error) {
		w, err := imagegen.New(factory, cfg, objects, args.SessionID)
		if err != nil {
			return &mcppkg.CallToolResult{IsError: true, Content: []mcppkg.Content{&mcppkg.TextContent{Text: err.Error()}}}, nil, nil
		}
		res := w.Run(ctx, turnstate.Task{ID: turnstate.NewTaskID(), Kind: turnstate.TaskImageGen, Prompt: args.Prompt})
		return toolResultToMCP(res)
	}
}

type ttsArgs struct {
	Text      string `json:"text" jsonschema:"text to synthesize"`
	SessionID string `json:"session_id" jsonschema:"caller-chosen id used to namespace the stored asset"`
}

func ttsHandler(cfg config.Config, objects objectstore.ObjectStore) func(context.Context, *mcppkg.CallToolRequest, ttsArgs) (*mcppkg.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcppkg.CallToolRequest, args ttsArgs) (*mcppkg.CallToolResult, any, error) {
		w := tts.New(cfg, objects, args.SessionID)
		res := w.Run(ctx, turnstate.Task{ID: turnstate.NewTaskID(), Kind: turnstate.TaskTTS, Text: args.Text})
		return toolResultToMCP(res)
	}
}

func toolResultToMCP(res turnstate.ToolResult) (*mcppkg.CallToolResult, any, error) {
	if !res.OK {
		return &mcppkg.CallToolResult{IsError: true, Content: []mcppkg.Content{&mcppkg.TextContent{Text: res.Error}}}, nil, nil
	}
	return &mcppkg.CallToolResult{Content: []mcppkg.Content{&mcppkg.TextContent{Text: fmt.Sprintf("%+v", res.Data)}}}, nil, nil
}
