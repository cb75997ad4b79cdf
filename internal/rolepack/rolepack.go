// Package rolepack builds the compact researcher/writer/critic contract the
// synthesizer renders its prompt against. A template on disk (YAML) can
// override the default phrasing per role/style; absent a template, built-in
// defaults apply.
package rolepack

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"lanecore/internal/turnstate"
)

// Template is the on-disk override format for role-pack phrasing.
type Template struct {
	ResearcherBrief string   `yaml:"researcher_brief"`
	WriterPlan      string   `yaml:"writer_plan"`
	CriticChecks    []string `yaml:"critic_checks"`
}

var defaultCriticChecks = []string{
	"does the answer address every part of the user's question",
	"are cited facts actually present in the retrieved evidence",
	"is the length and tone consistent with the requested style",
}

// Load reads a role-pack template from path. A missing file is not an
// error: callers should fall back to Build's defaults.
func Load(path string) (*Template, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("rolepack: read template: %w", err)
	}
	var t Template
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("rolepack: parse template: %w", err)
	}
	return &t, nil
}

// Build composes the ResponseContract for a turn, applying tpl's overrides
// (if non-nil) over the style/mode-derived defaults.
func Build(tpl *Template, plan turnstate.RunPlan, intent turnstate.Intent) turnstate.ResponseContract {
	c := turnstate.ResponseContract{
		ResearcherBrief: researcherBrief(plan, intent),
		WriterPlan:      writerPlan(plan),
		CriticChecks:    append([]string(nil), defaultCriticChecks...),
	}
	if tpl == nil {
		return c
	}
	if tpl.ResearcherBrief != "" {
		c.ResearcherBrief = tpl.ResearcherBrief
	}
	if tpl.WriterPlan != "" {
		c.WriterPlan = tpl.WriterPlan
	}
	if len(tpl.CriticChecks) > 0 {
		c.CriticChecks = tpl.CriticChecks
	}
	return c
}

func researcherBrief(plan turnstate.RunPlan, intent turnstate.Intent) string {
	lanes := activeLanes(plan.Flags)
	if len(lanes) == 0 {
		return "No retrieval lanes ran; answer from general knowledge only."
	}
	return "Ground the answer in the " + strings.Join(lanes, ", ") + " evidence gathered this turn; prefer it over prior knowledge when they conflict."
}

func writerPlan(plan turnstate.RunPlan) string {
	switch plan.Text.Style {
	case turnstate.StyleBullet:
		return "Write as a scannable bullet list, " + plan.Text.Instruction + "."
	case turnstate.StyleDetailed:
		return "Write a thorough explanation, " + plan.Text.Instruction + "."
	default:
		return "Write a direct answer, " + plan.Text.Instruction + "."
	}
}

func activeLanes(f turnstate.PlanFlags) []string {
	var out []string
	if f.NeedsWeb {
		out = append(out, "web search")
	}
	if f.NeedsRAG {
		out = append(out, "document retrieval")
	}
	if f.NeedsKBRAG {
		out = append(out, "knowledge base")
	}
	if f.NeedsVision {
		out = append(out, "image analysis")
	}
	return out
}
