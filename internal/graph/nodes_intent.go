package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"lanecore/internal/llm"
	"lanecore/internal/turnstate"
)

// IntentClassifier is the LLM-backed intent classifier node. It owns the
// provider factory so it can retry the next model candidate on a "not
// found" error.
type IntentClassifier struct {
	Factory *llm.Factory
	Model   string // empty uses the factory's provider default
}

var greetingPattern = regexp.MustCompile(`(?i)^\s*(hi|hello|hey|yo|good (morning|afternoon|evening)|how are you|what'?s up)\W*$`)

var cueWebWords = []string{"latest", "recent", "news", "headlines", "current", "today"}
var cueArxivWords = []string{"arxiv", "paper", "preprint"}
var cueKBWords = []string{"knowledge base", "employee", "company", "contract", "product"}

const classifierSystemPrompt = `You are an intent classifier for a multimodal assistant. Respond with a single JSON object and nothing else:
{"mode": "text_only"|"text_plus_tools"|"tools_only", "tasks": ["text"|"image"|"document"|"audio"|"web"|"rag"|"arxiv"|"kb_rag", ...], "confidence": 0.0-1.0, "intent_type": "create"|"edit"|"analyze"|"retrieve"|"chat"}
Classify the user's message and decide which lanes are needed.`

// Node returns the graph.Node closure for this classifier, closed over the
// config it needs (whether a KB corpus exists on disk, which gates kb_rag).
func (c *IntentClassifier) Node(kbCorpusExists bool) Node {
	return func(ctx context.Context, s turnstate.RunState) (turnstate.StateUpdate, error) {
		if greetingPattern.MatchString(s.UserText) {
			plan := turnstate.RunPlan{
				Mode: turnstate.ModeTextOnly,
				Text: turnstate.TextPlan{Enabled: true},
			}
			intent := turnstate.Intent{Type: turnstate.IntentChat, Confidence: 1.0}
			return turnstate.StateUpdate{Plan: &plan, Intent: &intent}, nil
		}

		raw, err := c.classify(ctx, s)
		if err != nil {
			return turnstate.StateUpdate{}, fmt.Errorf("intent classifier: %w", err)
		}

		plan, intent := applyPostRules(raw, s, kbCorpusExists)
		return turnstate.StateUpdate{Plan: &plan, Intent: &intent}, nil
	}
}

// classifierOutput is the raw, pre-post-rules LLM classification.
type classifierOutput struct {
	Mode       string   `json:"mode"`
	Tasks      []string `json:"tasks"`
	Confidence float64  `json:"confidence"`
	IntentType string   `json:"intent_type"`
}

func (c *IntentClassifier) classify(ctx context.Context, s turnstate.RunState) (classifierOutput, error) {
	provider, err := c.Factory.Provider("")
	if err != nil {
		return classifierOutput{}, err
	}
	model := c.Model
	if model == "" {
		model = c.Factory.DefaultModel("")
	}

	msgs := []llm.Message{
		{Role: "system", Content: classifierSystemPrompt},
		{Role: "user", Content: s.UserText},
	}

	candidates := append([]string{model}, llm.NotFoundFallbacks[c.Factory.ResolveName("")]...)
	var lastErr error
	for _, candidate := range candidates {
		resp, err := provider.Chat(ctx, msgs, nil, candidate)
		if err == nil {
			return parseClassifierJSON(resp.Content)
		}
		if !llm.IsNotFoundError(err) {
			return classifierOutput{}, err
		}
		lastErr = err
	}
	return classifierOutput{}, fmt.Errorf("no candidate model available: %w", lastErr)
}

// parseClassifierJSON extracts the first balanced JSON object in text,
// tolerating a preamble the model may emit before the object.
func parseClassifierJSON(text string) (classifierOutput, error) {
	obj, err := firstJSONObject(text)
	if err != nil {
		return classifierOutput{}, err
	}
	var out classifierOutput
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return classifierOutput{}, fmt.Errorf("parse classifier json: %w", err)
	}
	return out, nil
}

// firstJSONObject scans text for the first brace-balanced `{...}` substring.
func firstJSONObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object found in classifier response")
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
			// inside a string literal, braces don't count
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON object in classifier response")
}

var allowedTasks = map[string]bool{
	"text": true, "image": true, "document": true, "audio": true,
	"web": true, "rag": true, "arxiv": true, "kb_rag": true,
}

// applyPostRules implements the deterministic post-rules of the intent
// classifier, folding the raw LLM tasks list into a RunPlan and Intent.
func applyPostRules(raw classifierOutput, s turnstate.RunState, kbCorpusExists bool) (turnstate.RunPlan, turnstate.Intent) {
	tasks := dedupeTasks(raw.Tasks)

	lower := strings.ToLower(s.UserText)
	addCue := func(task string, words []string) {
		for _, w := range words {
			if strings.Contains(lower, w) {
				tasks = addTask(tasks, task)
				return
			}
		}
	}
	addCue("web", cueWebWords)
	addCue("arxiv", cueArxivWords)
	if kbCorpusExists {
		addCue("kb_rag", cueKBWords)
	}

	hasDocAttachment := attachmentOfKind(s.Attachments, turnstate.AttachmentDoc) != nil
	hasImageAttachment := attachmentOfKind(s.Attachments, turnstate.AttachmentImage) != nil
	asksQuestion := strings.Contains(s.UserText, "?") || looksLikeQuestion(lower)
	asksDescribe := strings.Contains(lower, "describe") || strings.Contains(lower, "analyze") || strings.Contains(lower, "what is in")

	if hasDocAttachment && asksQuestion && containsTask(tasks, "document") {
		tasks = removeTask(tasks, "document")
		tasks = addTask(tasks, "rag")
		tasks = addTask(tasks, "text")
	}
	if hasImageAttachment && asksDescribe {
		tasks = addTask(tasks, "image")
		tasks = addTask(tasks, "text")
	}

	hasRetrieval := containsTask(tasks, "web") || containsTask(tasks, "rag") ||
		containsTask(tasks, "arxiv") || containsTask(tasks, "kb_rag")
	if hasRetrieval {
		tasks = addTask(tasks, "text")
	}
	if len(tasks) == 0 {
		tasks = []string{"text"}
	}

	flags := turnstate.PlanFlags{}
	textPlan := turnstate.TextPlan{}
	var webSource turnstate.WebSource

	for _, t := range tasks {
		switch t {
		case "text":
			textPlan.Enabled = true
		case "web":
			flags.NeedsWeb = true
		case "arxiv":
			flags.NeedsWeb = true
		case "rag":
			flags.NeedsRAG = true
		case "kb_rag":
			flags.NeedsKBRAG = true
		case "document":
			flags.NeedsDoc = true
		case "audio":
			flags.NeedsTTS = true
		case "image":
			// resolved below into vision vs image_gen
		}
	}

	switch {
	case containsTask(tasks, "arxiv"):
		webSource = turnstate.WebSourceArxiv
	case containsTask(tasks, "web"):
		webSource = turnstate.WebSourceTavily
	}

	flags.NeedsVision = containsTask(tasks, "image") && hasImageAttachment
	flags.NeedsImageGen = containsTask(tasks, "image") && !flags.NeedsVision

	hasNonText := flags.NeedsWeb || flags.NeedsRAG || flags.NeedsKBRAG ||
		flags.NeedsDoc || flags.NeedsTTS || flags.NeedsVision || flags.NeedsImageGen

	var mode turnstate.PlanMode
	switch {
	case textPlan.Enabled && hasNonText:
		mode = turnstate.ModeTextPlusTools
	case textPlan.Enabled:
		mode = turnstate.ModeTextOnly
	default:
		mode = turnstate.ModeToolsOnly
	}

	plan := turnstate.RunPlan{
		Mode:      mode,
		Text:      textPlan,
		Flags:     flags,
		WebSource: webSource,
	}
	intent := turnstate.Intent{
		Type:       turnstate.IntentType(orDefault(raw.IntentType, string(turnstate.IntentChat))),
		Confidence: raw.Confidence,
	}
	return plan, intent
}

func dedupeTasks(tasks []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		t = strings.ToLower(strings.TrimSpace(t))
		if !allowedTasks[t] || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func addTask(tasks []string, t string) []string {
	if containsTask(tasks, t) {
		return tasks
	}
	return append(tasks, t)
}

func removeTask(tasks []string, t string) []string {
	out := tasks[:0:0]
	for _, x := range tasks {
		if x != t {
			out = append(out, x)
		}
	}
	return out
}

func containsTask(tasks []string, t string) bool {
	for _, x := range tasks {
		if x == t {
			return true
		}
	}
	return false
}

func attachmentOfKind(atts []turnstate.Attachment, kind turnstate.AttachmentKind) *turnstate.Attachment {
	for i := range atts {
		if atts[i].Kind == kind {
			return &atts[i]
		}
	}
	return nil
}

func looksLikeQuestion(lower string) bool {
	for _, w := range []string{"what", "why", "how", "who", "when", "where", "does", "is this", "can you tell"} {
		if strings.HasPrefix(strings.TrimSpace(lower), w) {
			return true
		}
	}
	return false
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
