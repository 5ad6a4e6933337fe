package conductor

import (
	"errors"
	"hash/fnv"
	"log/slog"
	"strings"
)

// loopHistorySize bounds the rolling window of recent step-log hashes
// used for loop detection, matching the original evaluator's history size.
const loopHistorySize = 5

var (
	// ErrStepFailed means the step reported success=false.
	ErrStepFailed = errors.New("conductor: step failed")
	// ErrLogsContainError means the step's logs contain an "error:"/"Error:" marker.
	ErrLogsContainError = errors.New("conductor: logs contain error marker")
	// ErrLoopDetected means this step's log hash repeats one of the last
	// loopHistorySize steps' hashes.
	ErrLoopDetected = errors.New("conductor: loop detected")
	// ErrEmptyOutput means both logs and context_extracted are empty,
	// a likely hallucinated or no-op step.
	ErrEmptyOutput = errors.New("conductor: empty output")
)

// Evaluator applies the ordered rule chain from spec.md §4.6 to decide
// whether the plan can continue after a step.
type Evaluator struct {
	recentLogHashes []uint64
}

func NewEvaluator() *Evaluator {
	return &Evaluator{recentLogHashes: make([]uint64, 0, loopHistorySize)}
}

// Evaluate returns nil if the plan should continue, or one of the
// sentinel errors above describing why it should stop. Rules are applied
// in order; the first rule that fires wins.
func (e *Evaluator) Evaluate(result StepResult) error {
	if !result.Success {
		return ErrStepFailed
	}

	if containsErrorMarker(result.Logs) {
		return ErrLogsContainError
	}

	if e.detectLoop(result.Logs) {
		slog.Warn("conductor: loop detected", "step_id", result.StepID)
		return ErrLoopDetected
	}

	if result.Logs == "" && result.ContextExtracted == "" {
		slog.Warn("conductor: possible hallucination", "step_id", result.StepID)
		return ErrEmptyOutput
	}

	return nil
}

func containsErrorMarker(logs string) bool {
	return strings.Contains(logs, "error:") || strings.Contains(logs, "Error:")
}

// detectLoop hashes logs and checks it against the rolling window,
// maintaining the window afterward regardless of outcome.
func (e *Evaluator) detectLoop(logs string) bool {
	h := fnv.New64a()
	h.Write([]byte(logs))
	sum := h.Sum64()

	isRepeat := false
	for _, prev := range e.recentLogHashes {
		if prev == sum {
			isRepeat = true
			break
		}
	}

	if len(e.recentLogHashes) >= loopHistorySize {
		e.recentLogHashes = e.recentLogHashes[1:]
	}
	e.recentLogHashes = append(e.recentLogHashes, sum)

	return isRepeat
}

// IsGoalMet reports whether every PlanStep in plan has a corresponding
// successful StepResult.
func (e *Evaluator) IsGoalMet(plan ConductorPlan, completed []StepResult) bool {
	for _, step := range plan.Steps {
		ok := false
		for _, r := range completed {
			if r.StepID == step.ID && r.Success {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Reset clears the loop-detection history for a new plan.
func (e *Evaluator) Reset() {
	e.recentLogHashes = e.recentLogHashes[:0]
}
