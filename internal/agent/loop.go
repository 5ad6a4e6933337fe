// Package agent implements the Agent Core think–act–observe loop
// (spec.md §4.5): one goroutine per task, driving the Router, Risk
// Assessor, Rate Limiter, and Tool Registry to a terminal task status.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nlbuilder/agentd/internal/bus"
	"github.com/nlbuilder/agentd/internal/conductor"
	"github.com/nlbuilder/agentd/internal/providers"
	"github.com/nlbuilder/agentd/internal/ratelimit"
	"github.com/nlbuilder/agentd/internal/risk"
	"github.com/nlbuilder/agentd/internal/store"
	"github.com/nlbuilder/agentd/internal/tools"
)

// ErrIterationLimitExceeded is returned when a task exceeds its
// configured iteration cap without reaching a FinalAnswer.
var ErrIterationLimitExceeded = errors.New("agent: iteration limit exceeded")

// ErrRateLimited is returned when the Rate Limiter rejects a tool call.
var ErrRateLimited = errors.New("agent: rate limited")

// ErrCancelled is returned when the task's cancellation signal fires.
var ErrCancelled = errors.New("agent: task cancelled")

// Loop drives one task through Think/Act/Observe to a terminal status.
type Loop struct {
	Router    *providers.Router
	Tools     *tools.Registry
	Risk      *risk.Assessor
	RateLimit *ratelimit.Limiter
	Store     *store.Store
	Events    bus.EventPublisher

	// Assembler, ProjectScanner, Skills, and SystemInstructions feed the
	// Context Assembler that builds each task's initial prompt (spec.md
	// §4.7). Assembler may be nil, in which case Run falls back to a bare
	// user-message prompt.
	Assembler          *conductor.Assembler
	ProjectScanner     *conductor.ProjectScanner
	Skills             []conductor.Skill
	SystemInstructions string

	// Planner drives multi-step Conductor plans (spec.md §4.6). Nil
	// disables planning: every task runs as a single think/act/observe
	// loop over the raw request.
	Planner *conductor.Planner

	MaxIterations int
	SessionBudget int
	Sensitive     bool
}

// RunRequest is the input to a single task run.
type RunRequest struct {
	TaskID string
	Input  string
}

// RunResult is returned once the loop reaches a terminal status.
type RunResult struct {
	TaskID       string
	Answer       string
	ProviderUsed string
	Status       store.TaskStatus
	DurationMs   int64
	Iterations   int
}

// stepOutcome is what one think/act/observe iteration produced.
type stepOutcome struct {
	providerName string
	toolName     string
	isFinal      bool
	finalAnswer  string
}

// Run executes the think/act/observe loop for one task until it reaches
// a terminal status or ctx is cancelled. It persists every step and
// broadcasts a TaskEvent per transition. If Planner is set, it first asks
// the Planner for a multi-step plan and executes that; otherwise (or if
// planning fails) it falls back to a single-shot loop over the raw input.
func (l *Loop) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	start := time.Now()

	if err := l.Store.UpdateTaskStatus(ctx, req.TaskID, store.StatusRunning, nil); err != nil {
		return nil, fmt.Errorf("agent: mark running: %w", err)
	}
	l.emit(req.TaskID, "task.started", nil)

	result := &RunResult{TaskID: req.TaskID}

	if l.Planner != nil {
		plan, err := l.Planner.Plan(ctx, req.Input)
		if err != nil {
			slog.Warn("agent: planning failed, falling back to single-shot", "task_id", req.TaskID, "error", err)
		} else {
			return l.runPlan(ctx, req, start, result, plan)
		}
	}

	return l.runSingleShot(ctx, req, start, result, req.Input)
}

// runSingleShot drives the classic single think/act/observe loop,
// seeding its prompt from the Context Assembler (system instructions,
// project memory, active skills, episodic recall, session history) when
// one is configured.
func (l *Loop) runSingleShot(ctx context.Context, req RunRequest, start time.Time, result *RunResult, query string) (*RunResult, error) {
	mem := NewWorkingMemory(l.SessionBudget)
	for _, msg := range l.buildInitialMessages(ctx, req.TaskID, query) {
		mem.Append(msg)
	}

	for iteration := 1; iteration <= l.MaxIterations; iteration++ {
		select {
		case <-ctx.Done():
			return l.finish(ctx, req.TaskID, start, result, iteration-1, store.StatusCancelled, "", ErrCancelled)
		default:
		}

		result.Iterations = iteration

		outcome, err := l.think(ctx, req.TaskID, mem, iteration)
		if err != nil {
			return l.finish(ctx, req.TaskID, start, result, iteration, store.StatusFailed, "", err)
		}
		result.ProviderUsed = outcome.providerName

		if outcome.isFinal {
			result.Answer = outcome.finalAnswer
			return l.finish(ctx, req.TaskID, start, result, iteration, store.StatusCompleted, outcome.finalAnswer, nil)
		}
	}

	return l.finish(ctx, req.TaskID, start, result, l.MaxIterations, store.StatusFailed, "", ErrIterationLimitExceeded)
}

// runPlan executes a Conductor plan's steps in dependency order, running
// each step as its own bounded think/act/observe loop, and stopping as
// soon as the Evaluator says to (spec.md §4.6).
func (l *Loop) runPlan(ctx context.Context, req RunRequest, start time.Time, result *RunResult, plan *conductor.ConductorPlan) (*RunResult, error) {
	l.emit(req.TaskID, "task.planned", map[string]interface{}{"steps": len(plan.Steps)})

	totalIterations := 0
	executor := conductor.NewExecutor(func(ctx context.Context, step conductor.PlanStep) (conductor.StepResult, error) {
		stepResult, iterations := l.runPlanStep(ctx, req.TaskID, step)
		totalIterations += iterations
		return stepResult, nil
	})

	report, err := executor.Run(ctx, *plan)
	if err != nil {
		return l.finish(ctx, req.TaskID, start, result, totalIterations, store.StatusFailed, "", err)
	}
	result.Iterations = totalIterations

	var answer strings.Builder
	for _, r := range report.Results {
		if r.ContextExtracted != "" {
			fmt.Fprintf(&answer, "%s\n", r.ContextExtracted)
		}
	}

	if !conductor.NewEvaluator().IsGoalMet(*plan, report.Results) {
		cause := report.StopCause
		if cause == nil {
			cause = fmt.Errorf("conductor: plan did not complete all steps")
		}
		return l.finish(ctx, req.TaskID, start, result, totalIterations, store.StatusFailed, answer.String(), cause)
	}

	return l.finish(ctx, req.TaskID, start, result, totalIterations, store.StatusCompleted, strings.TrimSpace(answer.String()), nil)
}

// runPlanStep drives one PlanStep through its own think/act/observe loop
// (bounded by MaxIterations) and reports a conductor.StepResult for the
// Evaluator.
func (l *Loop) runPlanStep(ctx context.Context, taskID string, step conductor.PlanStep) (conductor.StepResult, int) {
	mem := NewWorkingMemory(l.SessionBudget)
	for _, msg := range l.buildInitialMessages(ctx, taskID, step.Description) {
		mem.Append(msg)
	}

	var toolsUsed []string
	var logs strings.Builder

	for iteration := 1; iteration <= l.MaxIterations; iteration++ {
		select {
		case <-ctx.Done():
			return conductor.StepResult{StepID: step.ID, Success: false, ToolsUsed: toolsUsed, Logs: logs.String()}, iteration - 1
		default:
		}

		outcome, err := l.think(ctx, taskID, mem, iteration)
		if err != nil {
			fmt.Fprintf(&logs, "error: %s\n", err.Error())
			return conductor.StepResult{StepID: step.ID, Success: false, ToolsUsed: toolsUsed, Logs: logs.String()}, iteration
		}
		if outcome.toolName != "" {
			toolsUsed = append(toolsUsed, outcome.toolName)
		}
		if outcome.isFinal {
			return conductor.StepResult{
				StepID:           step.ID,
				Success:          true,
				ToolsUsed:        toolsUsed,
				Logs:             logs.String(),
				ContextExtracted: outcome.finalAnswer,
			}, iteration
		}
	}

	return conductor.StepResult{StepID: step.ID, Success: false, ToolsUsed: toolsUsed, Logs: logs.String()}, l.MaxIterations
}

// think runs one Router call over mem, persists the resulting step(s),
// and either dispatches a tool call (appending its observation to mem) or
// recognizes a final answer.
func (l *Loop) think(ctx context.Context, taskID string, mem *WorkingMemory, iteration int) (stepOutcome, error) {
	resp, providerName, err := l.Router.Generate(ctx, providers.ChatRequest{
		Messages: mem.Messages(),
		Tools:    l.Tools.Definitions(),
	}, providers.GenerateOptions{Sensitive: l.Sensitive, ExpectedTokens: l.SessionBudget})
	if err != nil {
		return stepOutcome{}, err
	}
	outcome := stepOutcome{providerName: providerName}

	if err := l.appendStep(ctx, taskID, iteration, store.StepThought, resp.Content); err != nil {
		return stepOutcome{}, err
	}

	recognized := providers.RecognizeResponse(resp.Content)
	if !recognized.IsToolCall {
		if err := l.appendStep(ctx, taskID, iteration, store.StepFinalAnswer, recognized.FinalAnswer); err != nil {
			return stepOutcome{}, err
		}
		outcome.isFinal = true
		outcome.finalAnswer = recognized.FinalAnswer
		return outcome, nil
	}

	call := recognized.ToolCall
	tier, err := l.Risk.Check(call.Name)
	if err != nil {
		return stepOutcome{}, err
	}
	if !l.RateLimit.Allow(call.Name, tier) {
		return stepOutcome{}, fmt.Errorf("%w: tool %q tier %d", ErrRateLimited, call.Name, tier)
	}

	callContent := fmt.Sprintf("%s(%s)", call.Name, call.ArgumentsJSON)
	if err := l.appendStep(ctx, taskID, iteration, store.StepToolCall, callContent); err != nil {
		return stepOutcome{}, err
	}
	l.emit(taskID, "task.step", map[string]string{"type": "tool_call", "tool": call.Name})

	toolResult := l.Tools.Dispatch(ctx, call)

	if err := l.appendStep(ctx, taskID, iteration, store.StepObservation, toolResult.ForLLM); err != nil {
		return stepOutcome{}, err
	}

	mem.Append(providers.Message{Role: "assistant", Content: resp.Content})
	mem.Append(providers.Message{Role: "tool", Content: toolResult.ForLLM, ToolCallID: call.ID})

	outcome.toolName = call.Name
	return outcome, nil
}

// buildInitialMessages assembles the prompt for query via the Context
// Assembler: project memory, matched skills, episodic recall, and system
// instructions. Without an Assembler it falls back to a bare user message
// (spec.md §2's data flow is then not fully honored, but the loop still
// runs — useful for tests that construct a Loop without wiring Conductor).
func (l *Loop) buildInitialMessages(ctx context.Context, taskID, query string) []providers.Message {
	if l.Assembler == nil {
		return []providers.Message{{Role: "user", Content: query}}
	}

	var project *conductor.ProjectMemory
	if l.ProjectScanner != nil {
		if pm, err := l.ProjectScanner.Scan(); err == nil {
			project = pm
		} else {
			slog.Warn("agent: project scan failed", "task_id", taskID, "error", err)
		}
	}

	var episodic []conductor.EpisodicHit
	if l.Store != nil {
		if hits, err := l.Store.SearchEpisodes(ctx, taskID, query, 3); err == nil {
			for _, h := range hits {
				episodic = append(episodic, conductor.EpisodicHit{TaskID: h.TaskID, Content: h.Content})
			}
		} else {
			slog.Warn("agent: episodic search failed", "task_id", taskID, "error", err)
		}
	}

	skills := conductor.MatchSkills(l.Skills, query)

	return l.Assembler.Assemble(l.SystemInstructions, project, nil, episodic, skills, query)
}

func (l *Loop) appendStep(ctx context.Context, taskID string, index int, stepType store.StepType, content string) error {
	err := l.Store.AppendStep(ctx, store.TaskStep{
		TaskID:    taskID,
		Index:     index,
		StepType:  stepType,
		Content:   content,
		CreatedAt: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("agent: append step: %w", err)
	}
	return nil
}

func (l *Loop) finish(ctx context.Context, taskID string, start time.Time, result *RunResult, iterations int, status store.TaskStatus, answer string, err error) (*RunResult, error) {
	result.Iterations = iterations
	result.Status = status
	result.Answer = answer
	result.DurationMs = time.Since(start).Milliseconds()

	completedAt := time.Now().Unix()
	if uerr := l.Store.UpdateTaskStatus(ctx, taskID, status, &completedAt); uerr != nil {
		slog.Error("agent: failed to persist terminal status", "task_id", taskID, "error", uerr)
	}

	if err != nil {
		l.emit(taskID, "task.failed", map[string]string{"error": err.Error()})
		return result, err
	}
	l.emit(taskID, "task.completed", map[string]string{"answer": answer})
	return result, nil
}

func (l *Loop) emit(taskID, name string, payload interface{}) {
	if l.Events == nil {
		return
	}
	l.Events.Broadcast(bus.TaskEvent{Name: name, TaskID: taskID, Payload: payload})
}
