package graph

import (
	"context"
	"strings"

	"lanecore/internal/turnstate"
)

// TextRouterNode sets text.enabled per the plan and chooses style/length
// policy by cue words (spec.md §4.6).
func TextRouterNode(ctx context.Context, s turnstate.RunState) (turnstate.StateUpdate, error) {
	plan := s.Plan
	if !plan.Text.Enabled {
		return turnstate.StateUpdate{}, nil
	}

	lower := strings.ToLower(s.UserText)
	plan.Text.Style = styleFromCueWords(lower)
	plan.Text.Instruction = lengthPolicy(lower, greetingPattern.MatchString(s.UserText))

	return turnstate.StateUpdate{Plan: &plan}, nil
}

func styleFromCueWords(lower string) turnstate.TextStyle {
	switch {
	case containsAny(lower, "bullet", "bullets", "points"):
		return turnstate.StyleBullet
	case containsAny(lower, "detail", "deep", "explain"):
		return turnstate.StyleDetailed
	default:
		return turnstate.StyleDirect
	}
}

func lengthPolicy(lower string, isGreeting bool) string {
	switch {
	case isGreeting:
		return "1-4 lines"
	case containsAny(lower, "explain", "why", "how does", "what is", "detail"):
		return "~1 page (350-500 words)"
	default:
		return "proportional to the question"
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
