// Package lanes implements the two-cohort concurrent Lane Executor
// (spec.md §4.8): the knowledge cohort (web, rag, kb_rag, vision) and the
// other/media cohort (image_gen, tts, doc) run concurrently with each
// other, and every task within a cohort runs concurrently with its
// siblings. Lane failures never cancel siblings; only a caller-cancelled
// context does.
package lanes

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"lanecore/internal/events"
	"lanecore/internal/turnstate"
	"lanecore/internal/workers"
)

const defaultImageGenTimeout = 90 * time.Second

// Executor dispatches tasks to their workers and frames each with
// block_start/block_end events on Bus.
type Executor struct {
	Workers         workers.Registry
	Bus             *events.Bus
	ImageGenTimeout time.Duration
}

// RunResult carries the two cohorts' results, each delivered once on its
// channel. The graph's executor node receives from both channels before it
// returns, so the synthesizer starts only after both cohorts have finished.
type RunResult struct {
	Knowledge <-chan map[string]turnstate.ToolResult
	Other     <-chan map[string]turnstate.ToolResult
}

var knowledgeKinds = map[turnstate.TaskKind]bool{
	turnstate.TaskWeb:    true,
	turnstate.TaskRAG:    true,
	turnstate.TaskKBRAG:  true,
	turnstate.TaskVision: true,
}

// Run splits tasks into the knowledge and other cohorts and launches both
// concurrently, returning immediately with channels each cohort will
// deliver its merged result map on exactly once.
func (e *Executor) Run(ctx context.Context, tasks []turnstate.Task, rt turnstate.PlanRuntime, linked *turnstate.Artifact) RunResult {
	var knowledge, other []turnstate.Task
	for _, t := range tasks {
		if knowledgeKinds[t.Kind] {
			knowledge = append(knowledge, t)
		} else {
			other = append(other, t)
		}
	}

	kch := make(chan map[string]turnstate.ToolResult, 1)
	och := make(chan map[string]turnstate.ToolResult, 1)

	go func() {
		kch <- e.runCohort(ctx, knowledge, rt, linked)
		close(kch)
	}()
	go func() {
		och <- e.runCohort(ctx, other, rt, linked)
		close(och)
	}()

	return RunResult{Knowledge: kch, Other: och}
}

// runCohort executes every task in the cohort concurrently and joins on
// completion. Like the teacher's WARPP orchestration, goroutines always
// return nil to errgroup so one task's failure never cancels its siblings
// via ctx; failures are captured in the task's own ToolResult instead.
func (e *Executor) runCohort(ctx context.Context, tasks []turnstate.Task, rt turnstate.PlanRuntime, linked *turnstate.Artifact) map[string]turnstate.ToolResult {
	results := make(map[string]turnstate.ToolResult, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			res := e.runOne(gctx, task, rt, linked)
			mu.Lock()
			results[task.ID] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// runOne frames a single task with block_start/block_end, dispatches it to
// its worker (with a hard timeout for image_gen), and applies the
// subject-lock retry rule for image edits.
func (e *Executor) runOne(ctx context.Context, task turnstate.Task, rt turnstate.PlanRuntime, linked *turnstate.Artifact) turnstate.ToolResult {
	e.publish(events.TypeLaneStart, map[string]any{
		"task_id": task.ID,
		"kind":    string(task.Kind),
		"title":   titleForTask(task),
	})

	res := e.dispatch(ctx, task)

	if task.Kind == turnstate.TaskImageGen {
		res = e.enforceSubjectLock(ctx, task, res, rt)
	}

	e.publish(events.TypeLaneEnd, map[string]any{
		"task_id": task.ID,
		"kind":    string(task.Kind),
		"result":  res,
	})
	return res
}

func (e *Executor) dispatch(ctx context.Context, task turnstate.Task) turnstate.ToolResult {
	w, ok := e.Workers[task.Kind]
	if !ok {
		return turnstate.ToolResult{TaskID: task.ID, Kind: task.Kind, OK: false, Error: "no worker registered for kind " + string(task.Kind)}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if task.Kind == turnstate.TaskImageGen {
		timeout := e.ImageGenTimeout
		if timeout <= 0 {
			timeout = defaultImageGenTimeout
		}
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan turnstate.ToolResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- turnstate.ToolResult{TaskID: task.ID, Kind: task.Kind, OK: false, Error: "worker panicked"}
			}
		}()
		done <- w.Run(runCtx, task)
	}()

	select {
	case res := <-done:
		return res
	case <-runCtx.Done():
		return turnstate.ToolResult{TaskID: task.ID, Kind: task.Kind, OK: false, Error: timeoutMessage(task.Kind)}
	}
}

func timeoutMessage(kind turnstate.TaskKind) string {
	switch kind {
	case turnstate.TaskImageGen:
		return "image generation timed out"
	case turnstate.TaskWeb:
		return "web search timed out"
	default:
		return "task timed out"
	}
}

// enforceSubjectLock retries an image_gen task once per remaining replan
// when the generated prompt doesn't mention the subject lock, appending a
// constraint clause (spec.md §4.8 step 3).
func (e *Executor) enforceSubjectLock(ctx context.Context, task turnstate.Task, res turnstate.ToolResult, rt turnstate.PlanRuntime) turnstate.ToolResult {
	if !res.OK || task.SubjectLock == "" {
		return res
	}

	attempts := 1
	maxAttempts := rt.MaxReplans + 1
	for attempts < maxAttempts && !subjectLockHonored(res, task.SubjectLock) {
		task.Prompt = task.Prompt + ". CRITICAL CONSTRAINT: keep the subject \"" + task.SubjectLock + "\" unchanged"
		res = e.dispatch(ctx, task)
		attempts++
	}
	return res
}

func subjectLockHonored(res turnstate.ToolResult, subjectLock string) bool {
	tokens := significantTokens(subjectLock, 2)
	if len(tokens) == 0 {
		return true
	}
	prompt, _ := res.Data["prompt"].(string)
	prompt = strings.ToLower(prompt)
	for _, tok := range tokens {
		if !strings.Contains(prompt, tok) {
			return false
		}
	}
	return true
}

// significantTokens returns the first n tokens of s that are at least 3
// characters long.
func significantTokens(s string, n int) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(s)) {
		if len(w) >= 3 {
			out = append(out, w)
			if len(out) == n {
				break
			}
		}
	}
	return out
}

func titleForTask(t turnstate.Task) string {
	switch t.Kind {
	case turnstate.TaskWeb:
		if len(t.Sources) == 1 && t.Sources[0] == turnstate.WebSourceArxiv {
			return "Results from Arxiv"
		}
		srcs := make([]string, 0, len(t.Sources))
		for _, s := range t.Sources {
			srcs = append(srcs, string(s))
		}
		if len(srcs) > 0 {
			return "Searching " + strings.Join(srcs, ", ") + " for: " + t.Query
		}
		return "Searching the web for: " + t.Query
	case turnstate.TaskRAG:
		return "Searching uploaded documents for: " + t.Query
	case turnstate.TaskKBRAG:
		return "Searching the knowledge base for: " + t.Query
	case turnstate.TaskVision:
		return "Analyzing the image"
	case turnstate.TaskImageGen:
		return "Generating an image"
	case turnstate.TaskTTS:
		return "Synthesizing audio"
	case turnstate.TaskDoc:
		if t.Instruction == turnstate.DocExtract {
			return "Reading the attached document"
		}
		return "Generating a document"
	default:
		return string(t.Kind)
	}
}

func (e *Executor) publish(typ events.Type, data map[string]any) {
	if e.Bus == nil {
		return
	}
	e.Bus.Publish(events.Event{Type: typ, Data: data})
}
