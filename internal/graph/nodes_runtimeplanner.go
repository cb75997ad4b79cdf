package graph

import (
	"context"
	"regexp"
	"strings"

	"lanecore/internal/turnstate"
)

// RuntimePlannerNode computes the per-turn iteration/replan/rewrite budget
// and, for image edits, a subject lock extracted from the linked artifact's
// prompt (spec.md §4.5).
func RuntimePlannerNode(ctx context.Context, s turnstate.RunState) (turnstate.StateUpdate, error) {
	rt := turnstate.PlanRuntime{
		MaxRewrites: 1,
	}

	isImageEdit := s.Intent.Type == turnstate.IntentEdit && s.LinkedArtifact != nil
	if isImageEdit {
		rt.MaxReplans = 1
		rt.SubjectLock = extractSubjectLock(s.LinkedArtifact.PromptOrText)
	} else {
		rt.MaxReplans = 0
	}

	if anyToolLane(s.Plan.Flags) {
		rt.MaxIterations = 2
	} else {
		rt.MaxIterations = 1
	}

	return turnstate.StateUpdate{PlanRuntime: &rt}, nil
}

func anyToolLane(f turnstate.PlanFlags) bool {
	return f.NeedsWeb || f.NeedsRAG || f.NeedsKBRAG || f.NeedsDoc ||
		f.NeedsVision || f.NeedsTTS || f.NeedsImageGen
}

var subjectOfPattern = regexp.MustCompile(`(?i)(?:image|photo|picture)\s+of\s+(.+)$`)

// extractSubjectLock pulls a 1-3 word subject out of an image prompt: either
// the object of an "image/photo/picture of X" pattern, or the prompt's
// trailing tail when that pattern isn't present.
func extractSubjectLock(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ""
	}
	if m := subjectOfPattern.FindStringSubmatch(prompt); m != nil {
		return firstWords(m[1], 3)
	}
	words := strings.Fields(prompt)
	if len(words) == 0 {
		return ""
	}
	n := 3
	if len(words) < n {
		n = len(words)
	}
	return strings.Join(words[len(words)-n:], " ")
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.TrimRight(strings.Join(words, " "), ".,;:!?")
}
