// Package engine wires a turn's process-wide collaborators (LLM factory,
// object store, knowledge-base index, session store) into a fresh,
// per-turn graph run, and implements httpapi.Engine.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"lanecore/internal/config"
	"lanecore/internal/events"
	"lanecore/internal/graph"
	"lanecore/internal/lanes"
	"lanecore/internal/llm"
	"lanecore/internal/llm/openai"
	"lanecore/internal/objectstore"
	"lanecore/internal/observability/auditsink"
	"lanecore/internal/retrieval/chunker"
	"lanecore/internal/retrieval/embedder"
	"lanecore/internal/retrieval/kb"
	"lanecore/internal/retrieval/vectorstore"
	"lanecore/internal/rolepack"
	"lanecore/internal/session"
	"lanecore/internal/turnstate"
	"lanecore/internal/workers"
	"lanecore/internal/workers/doc"
	"lanecore/internal/workers/imagegen"
	"lanecore/internal/workers/rag"
	"lanecore/internal/workers/tts"
	"lanecore/internal/workers/vision"
	"lanecore/internal/workers/web"
)

// TurnRunner holds every process-wide singleton a turn needs and builds the
// per-turn collaborators (lane registry, executor, synthesizer) fresh for
// each RunTurn call, since those close over that call's own *events.Bus and
// the session's current attachment set.
type TurnRunner struct {
	Sessions       *session.Store
	Factory        *llm.Factory
	Objects        objectstore.ObjectStore
	KBIndex        *kb.Index
	Embed          embedder.Embedder
	NewVectorStore func(dimension int) vectorstore.Store
	RolePackTpl    *rolepack.Template
	VisionClient   *openai.Client
	Intent         *graph.IntentClassifier
	Audit          *auditsink.Sink
	Config         config.Config
}

// RunTurn implements httpapi.Engine. It never returns a Go error: a failure
// is published onto bus as an error event and recorded in the audit sink as
// a run_end with ok=false; no run_end event is published onto bus.
func (r *TurnRunner) RunTurn(sessionID, provider, model, text string, bus *events.Bus) {
	defer bus.Close()

	runID := turnstate.NewRunID()
	traceID := turnstate.NewTraceID()
	bus.SetTrace(runID, traceID)
	ctx := context.Background()

	bus.Publish(events.Event{Type: events.TypeMeta, Data: map[string]any{
		"run_id": runID, "trace_id": traceID, "session_id": sessionID,
	}})
	r.recordAudit(ctx, auditsink.Event{RunID: runID, SessionID: sessionID, TraceID: traceID, Type: "run_start", OK: true})

	sess := r.Sessions.GetOrCreate(sessionID)
	r.Sessions.Touch(sessionID)

	synth, err := r.buildSynthesizer(provider, model, bus)
	if err != nil {
		r.fail(ctx, bus, runID, sessionID, traceID, err)
		return
	}

	initial := turnstate.RunState{
		SessionID:   sessionID,
		RunID:       runID,
		TraceID:     traceID,
		UserText:    text,
		Attachments: sess.Attachments,
		ChatHistory: sess.History,
		Context: turnstate.ContextBundle{
			HasLastImage: sess.Artifacts.Image != nil,
		},
		LinkedArtifact: sess.Artifacts.Image,
	}

	registry := r.buildRegistry(sessionID, sess.Attachments)
	executor := &lanes.Executor{Workers: registry, Bus: bus}

	g, err := graph.Build(graph.BuildDeps{
		Intent:         r.Intent,
		KBCorpusExists: r.KBIndex != nil,
		Executor:       executor,
		RolePackTpl:    r.RolePackTpl,
		Synthesizer:    synth,
	})
	if err != nil {
		r.fail(ctx, bus, runID, sessionID, traceID, err)
		return
	}

	rt := turnstate.PlanRuntime{MaxIterations: 2}
	final, err := g.Run(ctx, initial, graph.MaxIterations(rt))
	if err != nil {
		r.fail(ctx, bus, runID, sessionID, traceID, err)
		return
	}

	r.commitSession(sess, text, final)

	bus.Publish(events.Event{Type: events.TypeFinal, Data: map[string]any{"text": final.FinalText}})
	r.recordAudit(ctx, auditsink.Event{RunID: runID, SessionID: sessionID, TraceID: traceID, Type: "run_end", OK: true})
}

// buildSynthesizer resolves the request's {provider, model} against the
// factory, falling back to the process default when either is empty.
func (r *TurnRunner) buildSynthesizer(provider, model string, bus *events.Bus) (*graph.Synthesizer, error) {
	name := provider
	if name == "" {
		name = r.Factory.DefaultProvider()
	}
	p, err := r.Factory.Provider(name)
	if err != nil {
		return nil, fmt.Errorf("resolve provider %q: %w", name, err)
	}
	if model == "" {
		model = r.Factory.DefaultModel(name)
	}
	return &graph.Synthesizer{Provider: p, Model: model, Bus: bus}, nil
}

// buildRegistry constructs a fresh lane-worker registry for one turn. The
// doc/vision/rag workers close over the session's current attachment set,
// so they cannot be shared across turns; kb_rag wraps the process-wide
// kb.Index and is the one worker that is effectively a shared singleton.
func (r *TurnRunner) buildRegistry(sessionID string, attachments []turnstate.Attachment) workers.Registry {
	var ws []workers.Worker

	ws = append(ws, web.New(r.Config))
	ws = append(ws, &rag.SessionWorker{
		Store:       r.Objects,
		Embed:       r.Embed,
		NewStore:    r.NewVectorStore,
		ChunkCfg:    chunker.DefaultConfig(),
		Attachments: attachments,
	})
	if r.KBIndex != nil {
		ws = append(ws, &rag.KBWorker{Index: r.KBIndex})
	}
	ws = append(ws, &doc.Worker{Store: r.Objects, Attachments: attachments, SessionID: sessionID})
	if r.VisionClient != nil {
		ws = append(ws, &vision.Worker{
			Client:      r.VisionClient,
			Model:       r.Config.Models.VisionModel,
			Store:       r.Objects,
			Attachments: attachments,
		})
	}
	ws = append(ws, tts.New(r.Config, r.Objects, sessionID))
	if ig, err := imagegen.New(r.Factory, r.Config, r.Objects, sessionID); err == nil {
		ws = append(ws, ig)
	} else {
		log.Warn().Err(err).Msg("engine: image_gen worker unavailable this turn")
	}

	return workers.NewRegistry(ws...)
}

// commitSession appends the turn to history (trimmed to
// Config.MaxHistoryMessages), and records any newly produced artifacts
// plus their lineage edge against the artifact they replaced.
func (r *TurnRunner) commitSession(sess *turnstate.Session, userText string, final turnstate.RunState) {
	sess.History = append(sess.History,
		turnstate.ChatMessage{Role: "user", Content: userText},
		turnstate.ChatMessage{Role: "assistant", Content: final.FinalText},
	)
	if max := r.Config.MaxHistoryMessages; max > 0 && len(sess.History) > max {
		sess.History = sess.History[len(sess.History)-max:]
	}

	nowMS := time.Now().UnixMilli()
	for _, res := range final.ToolOutputs {
		if !res.OK || res.Data == nil {
			continue
		}
		switch res.Kind {
		case turnstate.TaskImageGen:
			r.recordArtifact(sess, turnstate.AttachmentImage, &sess.Artifacts.Image, res, nowMS)
		case turnstate.TaskTTS:
			r.recordArtifact(sess, turnstate.AttachmentAudio, &sess.Artifacts.Audio, res, nowMS)
		case turnstate.TaskDoc:
			// doc-extract results have no url (nothing new was persisted);
			// recordArtifact no-ops on an empty url.
			r.recordArtifact(sess, turnstate.AttachmentDoc, &sess.Artifacts.Doc, res, nowMS)
		}
	}
}

// recordArtifact replaces slot with the result's produced artifact and, if
// a prior artifact of this kind existed, appends the lineage edge linking
// the two (spec.md §4.11's edit-lineage invariant).
func (r *TurnRunner) recordArtifact(sess *turnstate.Session, kind turnstate.AttachmentKind, slot **turnstate.Artifact, res turnstate.ToolResult, nowMS int64) {
	url, _ := res.Data["url"].(string)
	if url == "" {
		return
	}
	prompt, _ := res.Data["prompt"].(string)
	if prompt == "" {
		prompt, _ = res.Data["text"].(string)
	}
	next := &turnstate.Artifact{ID: res.TaskID, URL: url, PromptOrText: prompt, ProducedAtUTC: nowMS}

	prev := *slot
	*slot = next
	if prev == nil {
		return
	}
	if err := turnstate.AppendLineageEdge(&sess.Artifacts, kind, turnstate.LineageEdge{
		ParentID: prev.ID, ChildID: next.ID, Op: "edit", TimestampMS: nowMS,
	}); err != nil {
		log.Warn().Err(err).Msg("engine: dropping lineage edge")
	}
}

func (r *TurnRunner) fail(ctx context.Context, bus *events.Bus, runID, sessionID, traceID string, err error) {
	log.Error().Err(err).Str("run_id", runID).Msg("engine: turn failed")
	bus.Publish(events.Event{Type: events.TypeError, Data: map[string]any{"error": err.Error()}})
	r.recordAudit(ctx, auditsink.Event{RunID: runID, SessionID: sessionID, TraceID: traceID, Type: "run_end", OK: false, Detail: err.Error()})
}

// recordAudit is a best-effort side channel: a ClickHouse hiccup must never
// fail or delay a turn, so errors are logged and swallowed. Safe to call
// with r.Audit == nil (the default when no ClickHouse DSN is configured).
func (r *TurnRunner) recordAudit(ctx context.Context, ev auditsink.Event) {
	if r.Audit == nil {
		return
	}
	if err := r.Audit.Record(ctx, ev); err != nil {
		log.Warn().Err(err).Msg("engine: audit record failed")
	}
}
