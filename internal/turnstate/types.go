// Package turnstate defines the per-turn data model: Session, Attachment,
// RunState, RunPlan, Task, and ToolResult (the SSE event envelope is
// events.Event). RunState is an immutable-within-a-node snapshot; nodes return partial StateUpdate
// values which the graph runtime merges (see merge.go).
package turnstate

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AttachmentKind classifies an Attachment by its MIME prefix.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentAudio AttachmentKind = "audio"
	AttachmentDoc   AttachmentKind = "doc"
)

// KindFromMIME infers an AttachmentKind from a MIME type's top-level prefix.
func KindFromMIME(mime string) AttachmentKind {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return AttachmentImage
	case strings.HasPrefix(mime, "audio/"):
		return AttachmentAudio
	default:
		return AttachmentDoc
	}
}

// Attachment is a user-uploaded file owned by a Session.
type Attachment struct {
	ID   string         `json:"id"`
	Kind AttachmentKind `json:"kind"`
	Name string         `json:"name"`
	MIME string         `json:"mime"`
	Path string         `json:"path"`
}

// ChatMessage is one turn of chat history.
type ChatMessage struct {
	Role    string `json:"role"` // "user" | "assistant"
	Content string `json:"content"`
}

// Artifact is a produced media item tracked in a Session's artifact memory.
type Artifact struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PromptOrText  string `json:"prompt_or_text"`
	ProducedAtUTC int64  `json:"produced_at_ms"`
}

// LineageEdge records a parent->child derivation. Edges are append-only;
// AppendLineageEdge rejects an edge that would close a cycle (I4).
type LineageEdge struct {
	ParentID  string `json:"parent_id"`
	ChildID   string `json:"child_id"`
	Op        string `json:"op"` // e.g. "edit"
	TimestampMS int64 `json:"ts_ms"`
}

// ArtifactMemory holds the most recent produced artifact of each kind plus
// the edit lineage that produced it.
type ArtifactMemory struct {
	Image *Artifact `json:"image,omitempty"`
	Audio *Artifact `json:"audio,omitempty"`
	Doc   *Artifact `json:"doc,omitempty"`

	Lineage map[AttachmentKind][]LineageEdge `json:"lineage,omitempty"`
}

// Session is the per-session container mutated only between turns.
type Session struct {
	ID              string
	History         []ChatMessage
	Attachments     []Attachment
	Artifacts       ArtifactMemory
	LastImagePrompt string
	CreatedAt       time.Time
	LastAccessAt    time.Time
}

// NewSession creates an empty session with the given id.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		LastAccessAt: now,
		Artifacts:    ArtifactMemory{Lineage: map[AttachmentKind][]LineageEdge{}},
	}
}

// IntentType is the classified purpose of a user turn.
type IntentType string

const (
	IntentCreate   IntentType = "create"
	IntentEdit     IntentType = "edit"
	IntentAnalyze  IntentType = "analyze"
	IntentRetrieve IntentType = "retrieve"
	IntentChat     IntentType = "chat"
)

// Intent is the classifier's triple output.
type Intent struct {
	Type           IntentType `json:"intent_type"`
	TargetModality string     `json:"target_modality"`
	Confidence     float64    `json:"confidence"`
}

// ContextBundle carries derived context about the turn's relation to
// existing artifact memory.
type ContextBundle struct {
	HasLastImage bool `json:"has_last_image"`
	IsImageEdit  bool `json:"is_image_edit"`
}

// PlanMode is the coarse execution mode for a turn.
type PlanMode string

const (
	ModeTextOnly      PlanMode = "text_only"
	ModeTextPlusTools PlanMode = "text_plus_tools"
	ModeToolsOnly     PlanMode = "tools_only"
)

// TextStyle controls the synthesizer's rendering register.
type TextStyle string

const (
	StyleDirect   TextStyle = "direct"
	StyleBullet   TextStyle = "bullet"
	StyleDetailed TextStyle = "detailed"
)

// WebSource is the search backend selected for a web task.
type WebSource string

const (
	WebSourceTavily    WebSource = "tavily"
	WebSourceWikipedia WebSource = "wikipedia"
	WebSourceArxiv     WebSource = "arxiv"
)

// PlanFlags is the boolean set of lane requirements derived from intent.
type PlanFlags struct {
	NeedsWeb       bool `json:"needs_web"`
	NeedsRAG       bool `json:"needs_rag"`
	NeedsKBRAG     bool `json:"needs_kb_rag"`
	NeedsDoc       bool `json:"needs_doc"`
	NeedsVision    bool `json:"needs_vision"`
	NeedsTTS       bool `json:"needs_tts"`
	NeedsImageGen  bool `json:"needs_image_gen"`
}

// TextPlan is the text-router's output.
type TextPlan struct {
	Enabled     bool      `json:"enabled"`
	Style       TextStyle `json:"style"`
	Instruction string    `json:"instruction"`
}

// RunPlan is the intent classifier's typed output, per spec §3.
type RunPlan struct {
	Mode      PlanMode  `json:"mode"`
	Text      TextPlan  `json:"text"`
	Flags     PlanFlags `json:"flags"`
	WebSource WebSource `json:"web_source,omitempty"`
}

// PlanRuntime holds the per-turn iteration/replan/rewrite budget computed by
// the runtime planner node.
type PlanRuntime struct {
	Iteration      int    `json:"iteration"`
	MaxIterations  int    `json:"max_iterations"`
	MaxReplans     int    `json:"max_replans"`
	MaxRewrites    int    `json:"max_rewrites"`
	SubjectLock    string `json:"subject_lock,omitempty"`
	ReplanRequested bool  `json:"replan_requested"`
	ReplanReason   string `json:"replan_reason,omitempty"`
}

// TaskKind discriminates the Task sum type.
type TaskKind string

const (
	TaskText     TaskKind = "text"
	TaskWeb      TaskKind = "web"
	TaskRAG      TaskKind = "rag"
	TaskKBRAG    TaskKind = "kb_rag"
	TaskVision   TaskKind = "vision"
	TaskImageGen TaskKind = "image_gen"
	TaskTTS      TaskKind = "tts"
	TaskDoc      TaskKind = "doc"
)

// DocInstruction discriminates the doc task's behavior.
type DocInstruction string

const (
	DocExtract  DocInstruction = "extract"
	DocGenerate DocInstruction = "generate"
)

// DocFormat is the output serialization for doc-generate tasks.
type DocFormat string

const (
	FormatPDF DocFormat = "pdf"
	FormatDoc DocFormat = "doc"
	FormatTXT DocFormat = "txt"
	FormatMD  DocFormat = "md"
)

// Task is a discriminated union over the seven lane-worker task shapes.
// Exactly one of the kind-specific payloads is populated, selected by Kind.
type Task struct {
	ID   string   `json:"id"`
	Kind TaskKind `json:"kind"`

	// text: no extra fields.

	// web
	Query   string      `json:"query,omitempty"`
	TopK    int         `json:"top_k,omitempty"`
	Sources []WebSource `json:"sources,omitempty"`

	// rag / kb_rag reuse Query/TopK above.

	// vision
	Prompt              string `json:"prompt,omitempty"`
	ImageAttachmentID   string `json:"image_attachment_id,omitempty"`

	// image_gen
	Size        string `json:"size,omitempty"`
	SubjectLock string `json:"subject_lock,omitempty"`

	// tts
	Text  string `json:"text,omitempty"`
	Voice string `json:"voice,omitempty"`

	// doc
	Instruction  DocInstruction `json:"instruction,omitempty"`
	AttachmentID string         `json:"attachment_id,omitempty"`
	Format       DocFormat      `json:"format,omitempty"`
}

// NewTaskID returns a fresh unique task id.
func NewTaskID() string {
	return uuid.New().String()
}

// Anchor returns the task's deduplication anchor: the first non-empty of
// query/prompt/text/instruction, normalized (trimmed, lowercased).
func (t Task) Anchor() string {
	var raw string
	switch {
	case t.Query != "":
		raw = t.Query
	case t.Prompt != "":
		raw = t.Prompt
	case t.Text != "":
		raw = t.Text
	case t.Instruction != "":
		raw = string(t.Instruction)
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

// DedupKey is the (kind, anchor) pair used to drop duplicate tasks.
func (t Task) DedupKey() string {
	return string(t.Kind) + "|" + t.Anchor()
}

// Citation is a retrieval or web reference attached to a ToolResult.
type Citation struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// ToolResult is the uniform envelope every lane worker returns.
type ToolResult struct {
	TaskID    string         `json:"task_id"`
	Kind      TaskKind       `json:"kind"`
	OK        bool           `json:"ok"`
	Data      map[string]any `json:"data,omitempty"`
	Citations []Citation     `json:"citations,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// ResponseContract is the role-pack node's output feeding the synthesizer.
type ResponseContract struct {
	ResearcherBrief string   `json:"researcher_brief"`
	WriterPlan      string   `json:"writer_plan"`
	CriticChecks    []string `json:"critic_checks"`
}

// AgentMemory is a bounded ring of breadcrumb notes carried across nodes
// within a single turn.
type AgentMemory struct {
	Notes []string `json:"notes"`
}

const maxAgentNotes = 120

// AddNote appends a note, dropping the oldest when the ring is full.
func (m *AgentMemory) AddNote(note string) {
	m.Notes = append(m.Notes, note)
	if len(m.Notes) > maxAgentNotes {
		m.Notes = m.Notes[len(m.Notes)-maxAgentNotes:]
	}
}

// RunState is the per-turn ephemeral snapshot threaded through the planner
// graph. Nodes never mutate a RunState directly; they return a StateUpdate
// which the runtime merges in (see merge.go).
type RunState struct {
	SessionID string
	RunID     string
	TraceID   string

	UserText    string
	Attachments []Attachment
	ChatHistory []ChatMessage

	Context       ContextBundle
	LinkedArtifact *Artifact

	Intent Intent
	Plan   RunPlan

	PlanRuntime PlanRuntime
	Tasks       []Task
	ToolOutputs map[string]ToolResult

	ResponseContract ResponseContract
	AgentMemory      AgentMemory

	FinalText string
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.New().String() }

// NewTraceID returns a fresh trace identifier.
func NewTraceID() string { return uuid.New().String() }
