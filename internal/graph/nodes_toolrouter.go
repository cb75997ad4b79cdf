package graph

import (
	"regexp"
	"strings"

	"context"

	"lanecore/internal/turnstate"
)

const defaultTopK = 4

// ToolRouterNode materializes a concrete Tasks list from the plan's flags
// (spec.md §4.7).
func ToolRouterNode(ctx context.Context, s turnstate.RunState) (turnstate.StateUpdate, error) {
	flags := s.Plan.Flags
	isImageEdit := s.Intent.Type == turnstate.IntentEdit && s.LinkedArtifact != nil

	// Guardrail: a pure image-gen ask (no vision/tts/doc lane also requested)
	// must not pull web/rag/kb_rag lanes even if a cue word accidentally
	// triggered one of them during classification.
	pureImageGen := (flags.NeedsImageGen || isImageEdit) &&
		!flags.NeedsVision && !flags.NeedsTTS && !flags.NeedsDoc
	if pureImageGen {
		flags.NeedsWeb = false
		flags.NeedsRAG = false
		flags.NeedsKBRAG = false
	}

	var tasks []turnstate.Task
	var matchedClauses []string

	if flags.NeedsWeb {
		t, clause := buildWebTask(s)
		tasks = append(tasks, t)
		matchedClauses = append(matchedClauses, clause)
	}
	if flags.NeedsRAG {
		tasks = append(tasks, turnstate.Task{
			ID:   turnstate.NewTaskID(),
			Kind: turnstate.TaskRAG,
			Query: s.UserText,
			TopK: clampTopK(defaultTopK),
		})
	}
	if flags.NeedsKBRAG {
		tasks = append(tasks, turnstate.Task{
			ID:   turnstate.NewTaskID(),
			Kind: turnstate.TaskKBRAG,
			Query: s.UserText,
			TopK: clampTopK(defaultTopK),
		})
	}
	if flags.NeedsImageGen || isImageEdit {
		tasks = append(tasks, buildImageGenTask(s, isImageEdit))
	}
	if flags.NeedsTTS {
		if clause, ok := extractTTSClause(s.UserText); ok {
			tasks = append(tasks, turnstate.Task{
				ID:   turnstate.NewTaskID(),
				Kind: turnstate.TaskTTS,
				Text: clause,
			})
			matchedClauses = append(matchedClauses, clause)
		}
	}
	if flags.NeedsDoc {
		tasks = append(tasks, buildDocTask(s))
	}
	if flags.NeedsVision {
		if att := attachmentOfKind(s.Attachments, turnstate.AttachmentImage); att != nil {
			tasks = append(tasks, turnstate.Task{
				ID:                turnstate.NewTaskID(),
				Kind:              turnstate.TaskVision,
				Prompt:            s.UserText,
				ImageAttachmentID: att.ID,
			})
		}
	}

	textQuery := stripClauses(s.UserText, matchedClauses)

	plan := s.Plan
	plan.Flags = flags

	return turnstate.StateUpdate{
		Plan:     &plan,
		AddTasks: tasks,
		AppendNotes: []string{"tool_router: text_query=" + textQuery},
	}, nil
}

func clampTopK(k int) int {
	if k < 1 {
		return 1
	}
	if k > 8 {
		return 8
	}
	return k
}

var newsLikePattern = regexp.MustCompile(`(?i)\b(latest|recent|news|headlines|today|breaking)\b`)

func buildWebTask(s turnstate.RunState) (turnstate.Task, string) {
	sources := []turnstate.WebSource{s.Plan.WebSource}
	if s.Plan.WebSource == turnstate.WebSourceTavily && !newsLikePattern.MatchString(s.UserText) {
		sources = append(sources, turnstate.WebSourceWikipedia)
	}
	return turnstate.Task{
		ID:      turnstate.NewTaskID(),
		Kind:    turnstate.TaskWeb,
		Query:   s.UserText,
		TopK:    clampTopK(defaultTopK),
		Sources: sources,
	}, s.UserText
}

func buildImageGenTask(s turnstate.RunState, isEdit bool) turnstate.Task {
	prompt := s.UserText
	if isEdit && s.LinkedArtifact != nil {
		prompt = s.LinkedArtifact.PromptOrText + "; apply this edit: " + s.UserText
	}
	return turnstate.Task{
		ID:          turnstate.NewTaskID(),
		Kind:        turnstate.TaskImageGen,
		Prompt:      prompt,
		Size:        "1024x1024",
		SubjectLock: s.PlanRuntime.SubjectLock,
	}
}

var ttsVerbPattern = regexp.MustCompile(`(?i)\b(read|say|speak|narrate)\b\s+(?:this\s*:?\s*|out loud\s*:?\s*)?(.+)$`)
var quotedPattern = regexp.MustCompile(`"([^"]+)"`)

// extractTTSClause extracts the quoted or post-verb clause the user wants
// spoken, returning ok=false when the user didn't explicitly ask for audio.
func extractTTSClause(text string) (string, bool) {
	if m := quotedPattern.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	if m := ttsVerbPattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[2]), true
	}
	return "", false
}

var docFormatCues = []struct {
	cue    string
	format turnstate.DocFormat
}{
	{"pdf", turnstate.FormatPDF},
	{"doc", turnstate.FormatDoc},
	{"txt", turnstate.FormatTXT},
	{"md", turnstate.FormatMD},
}

func buildDocTask(s turnstate.RunState) turnstate.Task {
	if att := attachmentOfKind(s.Attachments, turnstate.AttachmentDoc); att != nil {
		return turnstate.Task{
			ID:           turnstate.NewTaskID(),
			Kind:         turnstate.TaskDoc,
			Instruction:  turnstate.DocExtract,
			AttachmentID: att.ID,
		}
	}
	format := turnstate.FormatMD
	lower := strings.ToLower(s.UserText)
	for _, c := range docFormatCues {
		if strings.Contains(lower, c.cue) {
			format = c.format
			break
		}
	}
	return turnstate.Task{
		ID:          turnstate.NewTaskID(),
		Kind:        turnstate.TaskDoc,
		Instruction: turnstate.DocGenerate,
		Format:      format,
		Prompt:      s.UserText,
	}
}

func stripClauses(text string, clauses []string) string {
	out := text
	for _, c := range clauses {
		if c == "" {
			continue
		}
		out = strings.ReplaceAll(out, c, "")
	}
	return strings.TrimSpace(out)
}
