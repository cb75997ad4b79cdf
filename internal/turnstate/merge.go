package turnstate

// StateUpdate is the partial result a graph node returns. Every field is a
// pointer/slice/map that is nil when the node made no change to it; Merge
// applies only the non-nil fields onto a RunState, last-write-wins.
type StateUpdate struct {
	Context        *ContextBundle
	LinkedArtifact *Artifact

	Intent *Intent
	Plan   *RunPlan

	PlanRuntime *PlanRuntime

	// AddTasks appends new tasks (after dedup against existing Tasks).
	AddTasks []Task

	// MergeToolOutputs is folded into ToolOutputs keyed by TaskID.
	MergeToolOutputs map[string]ToolResult

	ResponseContract *ResponseContract

	// AppendNotes is appended to AgentMemory.Notes.
	AppendNotes []string

	FinalText *string
}

// Merge applies u onto s and returns the resulting RunState. s is not
// mutated; a new value is returned so callers can keep the pre-merge
// snapshot for logging/lineage purposes.
func Merge(s RunState, u StateUpdate) RunState {
	out := s

	if u.Context != nil {
		out.Context = *u.Context
	}
	if u.LinkedArtifact != nil {
		out.LinkedArtifact = u.LinkedArtifact
	}
	if u.Intent != nil {
		out.Intent = *u.Intent
	}
	if u.Plan != nil {
		out.Plan = *u.Plan
	}
	if u.PlanRuntime != nil {
		out.PlanRuntime = *u.PlanRuntime
	}

	if len(u.AddTasks) > 0 {
		seen := make(map[string]struct{}, len(out.Tasks))
		for _, t := range out.Tasks {
			seen[t.DedupKey()] = struct{}{}
		}
		tasks := out.Tasks
		for _, t := range u.AddTasks {
			key := t.DedupKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			tasks = append(tasks, t)
		}
		out.Tasks = tasks
	}

	if len(u.MergeToolOutputs) > 0 {
		merged := make(map[string]ToolResult, len(out.ToolOutputs)+len(u.MergeToolOutputs))
		for k, v := range out.ToolOutputs {
			merged[k] = v
		}
		for k, v := range u.MergeToolOutputs {
			merged[k] = v
		}
		out.ToolOutputs = merged
	}

	if u.ResponseContract != nil {
		out.ResponseContract = *u.ResponseContract
	}

	if len(u.AppendNotes) > 0 {
		mem := out.AgentMemory
		for _, n := range u.AppendNotes {
			mem.AddNote(n)
		}
		out.AgentMemory = mem
	}

	if u.FinalText != nil {
		out.FinalText = *u.FinalText
	}

	return out
}
