package graph

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"lanecore/internal/events"
	"lanecore/internal/llm"
	"lanecore/internal/turnstate"
	"lanecore/internal/workers/web"
)

const (
	digestSnippetsPerLane    = 4
	digestSnippetChars       = 500
	rankedEvidenceCount      = 5
	greetingRewriteWordLimit = 20
)

// Synthesizer is the graph node that turns the turn's gathered tool context
// into the user-facing answer, streaming tokens onto Bus as they arrive
// (spec.md §4.9).
type Synthesizer struct {
	Provider llm.Provider
	Model    string
	Bus      *events.Bus
}

// Node returns the graph.Node closure for the synthesizer.
func (sy *Synthesizer) Node() Node {
	return func(ctx context.Context, s turnstate.RunState) (turnstate.StateUpdate, error) {
		if !sy.shouldRun(s) {
			return turnstate.StateUpdate{}, nil
		}

		if text, ok := arxivOnlyMarkdown(s); ok {
			sy.streamAll(text)
			return finalTextUpdate(text), nil
		}

		if notice, ok := kbEntityNotFoundNotice(s); ok {
			sy.streamAll(notice)
			return finalTextUpdate(notice), nil
		}

		text, err := sy.synthesize(ctx, s)
		if err != nil {
			return turnstate.StateUpdate{}, fmt.Errorf("synthesizer: %w", err)
		}

		if isGreetingTurn(s) && wordCount(text) > greetingRewriteWordLimit {
			if rewritten, err := sy.rewriteGreeting(ctx, text); err == nil && rewritten != "" {
				text = rewritten
			}
		}

		return finalTextUpdate(text), nil
	}
}

func finalTextUpdate(text string) turnstate.StateUpdate {
	t := text
	return turnstate.StateUpdate{FinalText: &t}
}

// shouldRun reports whether the synthesizer fires this turn: the text lane
// was enabled by the router, or at least one knowledge task ran (tools_only
// turns with retrieval must still summarize what was found).
func (sy *Synthesizer) shouldRun(s turnstate.RunState) bool {
	if s.Plan.Text.Enabled {
		return true
	}
	for _, t := range s.Tasks {
		if isKnowledgeKind(t.Kind) {
			return true
		}
	}
	return false
}

func isKnowledgeKind(k turnstate.TaskKind) bool {
	switch k {
	case turnstate.TaskWeb, turnstate.TaskRAG, turnstate.TaskKBRAG, turnstate.TaskVision:
		return true
	default:
		return false
	}
}

// isGreetingTurn reports whether this turn is the classifier's greeting
// fast-path (spec.md end-to-end scenario 1), which bounds the answer to a
// short sentence.
func isGreetingTurn(s turnstate.RunState) bool {
	return s.Intent.Type == turnstate.IntentChat && greetingPattern.MatchString(s.UserText)
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// arxivOnlyMarkdown renders the deterministic markdown path for a turn
// whose only web task queried arxiv exclusively (spec.md scenario 2).
func arxivOnlyMarkdown(s turnstate.RunState) (string, bool) {
	var webTasks []turnstate.Task
	for _, t := range s.Tasks {
		if t.Kind == turnstate.TaskWeb {
			webTasks = append(webTasks, t)
		}
	}
	if len(webTasks) != 1 {
		return "", false
	}
	t := webTasks[0]
	if len(t.Sources) != 1 || t.Sources[0] != turnstate.WebSourceArxiv {
		return "", false
	}
	res, ok := s.ToolOutputs[t.ID]
	if !ok || !res.OK {
		return "", false
	}
	items, _ := res.Data["items"].([]web.Item)
	if len(items) == 0 {
		return "", false
	}

	var b strings.Builder
	b.WriteString("## Results from Arxiv\n\n")
	for i, it := range items {
		b.WriteString(strconv.Itoa(i+1) + ". [" + it.Title + "](" + it.URL + ")")
		if it.Published != "" {
			b.WriteString(" (" + it.Published + ")")
		}
		b.WriteString("\n")
		if it.Summary != "" {
			b.WriteString("   " + truncateDigest(it.Summary, digestSnippetChars) + "\n")
		}
	}
	return b.String(), true
}

// kbEntityNotFoundNotice renders the fixed two-line notice for a kb_rag
// task that came back with no matching entity (spec.md scenario 5).
func kbEntityNotFoundNotice(s turnstate.RunState) (string, bool) {
	for _, t := range s.Tasks {
		if t.Kind != turnstate.TaskKBRAG {
			continue
		}
		res, ok := s.ToolOutputs[t.ID]
		if !ok || !res.OK {
			continue
		}
		hint, found := res.Data["entity_not_found"]
		if !found {
			continue
		}
		hintStr, _ := hint.(string)
		return "## Knowledge Base Result\nNo entry matching \"" + hintStr + "\" was found in the knowledge base.", true
	}
	return "", false
}

// synthesize builds the full prompt and streams the completion, returning
// the accumulated text.
func (sy *Synthesizer) synthesize(ctx context.Context, s turnstate.RunState) (string, error) {
	msgs := []llm.Message{
		{Role: "system", Content: sy.systemPrompt(s)},
		{Role: "user", Content: s.UserText},
	}

	var b strings.Builder
	h := &tokenStreamHandler{bus: sy.Bus, onDelta: func(d string) { b.WriteString(d) }}
	if err := sy.Provider.ChatStream(ctx, msgs, nil, sy.Model, h); err != nil {
		return "", err
	}
	return b.String(), nil
}

// rewriteGreeting asks for a one-sentence compression of an over-long
// greeting answer, synchronously and without streaming (spec.md §4.9's
// "rewritten once ... via a low-temperature synchronous call").
func (sy *Synthesizer) rewriteGreeting(ctx context.Context, text string) (string, error) {
	msgs := []llm.Message{
		{Role: "system", Content: "Rewrite the following into one short, friendly sentence of no more than 14 words. Respond with only the rewritten sentence."},
		{Role: "user", Content: text},
	}
	reply, err := sy.Provider.Chat(ctx, msgs, nil, sy.Model)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply.Content), nil
}

func (sy *Synthesizer) streamAll(text string) {
	if sy.Bus == nil {
		return
	}
	sy.Bus.Publish(events.Event{Type: events.TypeToken, Data: map[string]any{"text": text}})
}

type tokenStreamHandler struct {
	bus     *events.Bus
	onDelta func(string)
}

func (h *tokenStreamHandler) OnDelta(content string) {
	h.onDelta(content)
	if h.bus != nil {
		h.bus.Publish(events.Event{Type: events.TypeToken, Data: map[string]any{"text": content}})
	}
}
func (h *tokenStreamHandler) OnToolCall(llm.ToolCall)    {}
func (h *tokenStreamHandler) OnImage(llm.GeneratedImage) {}
func (h *tokenStreamHandler) OnThoughtSummary(string)    {}

// systemPrompt assembles the role preamble, length policy, tool-context
// digest, ranked evidence, and conflict signals into the synthesizer's
// system message.
func (sy *Synthesizer) systemPrompt(s turnstate.RunState) string {
	var b strings.Builder
	b.WriteString("You are the answering stage of a multimodal assistant. ")
	b.WriteString(s.ResponseContract.ResearcherBrief)
	b.WriteString(" ")
	b.WriteString(s.ResponseContract.WriterPlan)
	if s.Plan.Text.Instruction != "" {
		b.WriteString(" Target length: " + s.Plan.Text.Instruction + ".")
	}
	for _, check := range s.ResponseContract.CriticChecks {
		b.WriteString("\nBefore answering, check: " + check + ".")
	}

	if digest := buildToolDigest(s); digest != "" {
		b.WriteString("\n\nTool context gathered this turn:\n")
		b.WriteString(digest)
	}

	if evidence := rankedEvidence(s); len(evidence) > 0 {
		b.WriteString("\n\nMost relevant evidence, ranked:\n")
		for i, e := range evidence {
			b.WriteString(strconv.Itoa(i+1) + ". (" + e.source + ") " + truncateDigest(e.text, digestSnippetChars) + "\n")
		}
	}

	if signal := conflictSignal(s); signal != "" {
		b.WriteString("\n\nConflict signal: " + signal)
	}

	return b.String()
}

// buildToolDigest renders RAG/KB snippets (top 4 at 500 chars), web lines
// (title/url/published/summary), and vision/doc summaries.
func buildToolDigest(s turnstate.RunState) string {
	var b strings.Builder

	for _, t := range s.Tasks {
		res, ok := s.ToolOutputs[t.ID]
		if !ok || !res.OK {
			continue
		}
		switch t.Kind {
		case turnstate.TaskRAG, turnstate.TaskKBRAG:
			n := len(res.Citations)
			if n > digestSnippetsPerLane {
				n = digestSnippetsPerLane
			}
			for _, c := range res.Citations[:n] {
				b.WriteString("- [" + string(t.Kind) + "] " + c.Title + ": " + truncateDigest(c.Snippet, digestSnippetChars) + "\n")
			}
		case turnstate.TaskWeb:
			items, _ := res.Data["items"].([]web.Item)
			for _, it := range items {
				b.WriteString("- [web] " + it.Title + " | " + it.URL)
				if it.Published != "" {
					b.WriteString(" | " + it.Published)
				}
				if it.Summary != "" {
					b.WriteString(" | " + truncateDigest(it.Summary, digestSnippetChars))
				}
				b.WriteString("\n")
			}
		case turnstate.TaskVision:
			if text, _ := res.Data["text"].(string); text != "" {
				b.WriteString("- [vision] " + truncateDigest(text, digestSnippetChars) + "\n")
			}
		case turnstate.TaskDoc:
			if t.Instruction == turnstate.DocExtract {
				if text, _ := res.Data["text"].(string); text != "" {
					b.WriteString("- [doc] " + truncateDigest(text, digestSnippetChars) + "\n")
				}
			}
		}
	}

	return b.String()
}

type evidenceRow struct {
	source string
	text   string
	score  int
}

// rankedEvidence ranks every citation/summary gathered this turn by word
// overlap between the query and (source name + text), keeping the top 5.
func rankedEvidence(s turnstate.RunState) []evidenceRow {
	queryTerms := significantWords(s.UserText)
	if len(queryTerms) == 0 {
		return nil
	}

	var rows []evidenceRow
	for _, t := range s.Tasks {
		res, ok := s.ToolOutputs[t.ID]
		if !ok || !res.OK {
			continue
		}
		if t.Kind == turnstate.TaskWeb {
			// web's own Citations are a copy of the same items appended
			// below; only one of the two must feed ranking or every web hit
			// would be double-counted.
			items, _ := res.Data["items"].([]web.Item)
			for _, it := range items {
				rows = append(rows, evidenceRow{
					source: it.Title,
					text:   it.Summary,
					score:  overlapScore(queryTerms, it.Title+" "+it.Summary),
				})
			}
			continue
		}
		for _, c := range res.Citations {
			rows = append(rows, evidenceRow{
				source: c.Title,
				text:   c.Snippet,
				score:  overlapScore(queryTerms, c.Title+" "+c.Snippet),
			})
		}
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].score > rows[j].score })
	if len(rows) > rankedEvidenceCount {
		rows = rows[:rankedEvidenceCount]
	}
	return rows
}

func significantWords(s string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?\"'")
		if len(w) >= 3 {
			out = append(out, w)
		}
	}
	return out
}

func overlapScore(queryTerms []string, text string) int {
	lower := strings.ToLower(text)
	score := 0
	for _, term := range queryTerms {
		if strings.Contains(lower, term) {
			score++
		}
	}
	return score
}

var whoIsPattern = regexp.MustCompile(`(?i)who\s+is\s+"?([a-z][a-z .'-]{1,60}?)"?\s*\??$`)

// conflictSignal detects entity bleed for "who is X" queries: if gathered
// citations exist but none mention the asked-about entity, the synthesizer
// is warned so it doesn't silently answer about the wrong person.
func conflictSignal(s turnstate.RunState) string {
	m := whoIsPattern.FindStringSubmatch(strings.TrimSpace(s.UserText))
	if m == nil {
		return ""
	}
	entity := strings.ToLower(strings.TrimSpace(m[1]))
	if entity == "" {
		return ""
	}

	var anyCitation bool
	var anyMention bool
	for _, res := range s.ToolOutputs {
		for _, c := range res.Citations {
			anyCitation = true
			if strings.Contains(strings.ToLower(c.Title+" "+c.Snippet), entity) {
				anyMention = true
			}
		}
	}
	if anyCitation && !anyMention {
		return "the retrieved evidence does not clearly mention \"" + entity + "\"; say so rather than guessing."
	}
	return ""
}

func truncateDigest(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
