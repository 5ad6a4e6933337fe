package conductor

import (
	"context"
	"fmt"
)

// StepRunner executes one PlanStep and reports its result. The Agent
// Core's Loop is the concrete runner in production; tests supply a fake.
type StepRunner func(ctx context.Context, step PlanStep) (StepResult, error)

// Executor runs a ConductorPlan's steps in topological order (Kahn's
// algorithm over the dependency DAG — no teacher/pack equivalent exists
// for this; it is authored directly from spec.md §4.6's DAG requirement),
// stopping as soon as the Evaluator says to.
type Executor struct {
	evaluator *Evaluator
	run       StepRunner
}

func NewExecutor(run StepRunner) *Executor {
	return &Executor{evaluator: NewEvaluator(), run: run}
}

// ExecutionReport summarizes one Run call.
type ExecutionReport struct {
	Results   []StepResult
	StoppedAt string // step id the evaluator stopped on, empty if the plan completed
	StopCause error
}

// Run executes plan.Steps in dependency order, invoking the Evaluator
// after each step. It stops at the first step whose result fails
// evaluation, recording the reason.
func (e *Executor) Run(ctx context.Context, plan ConductorPlan) (*ExecutionReport, error) {
	order, err := topologicalOrder(plan.Steps)
	if err != nil {
		return nil, err
	}

	e.evaluator.Reset()
	report := &ExecutionReport{}

	for _, step := range order {
		select {
		case <-ctx.Done():
			report.StoppedAt = step.ID
			report.StopCause = ctx.Err()
			return report, nil
		default:
		}

		result, err := e.run(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("conductor: run step %q: %w", step.ID, err)
		}
		report.Results = append(report.Results, result)

		if cause := e.evaluator.Evaluate(result); cause != nil {
			report.StoppedAt = step.ID
			report.StopCause = cause
			return report, nil
		}
	}

	return report, nil
}

// topologicalOrder applies Kahn's algorithm over the PlanStep dependency
// DAG, returning steps in an order where every dependency precedes its
// dependents. Ties break by the steps' original slice order.
func topologicalOrder(steps []PlanStep) ([]PlanStep, error) {
	indexByID := make(map[string]int, len(steps))
	for i, s := range steps {
		indexByID[s.ID] = i
	}

	inDegree := make([]int, len(steps))
	dependents := make([][]int, len(steps))

	for i, s := range steps {
		for _, dep := range s.Dependencies {
			depIdx, ok := indexByID[dep]
			if !ok {
				return nil, fmt.Errorf("conductor: step %q depends on unknown step %q", s.ID, dep)
			}
			inDegree[i]++
			dependents[depIdx] = append(dependents[depIdx], i)
		}
	}

	queue := make([]int, 0, len(steps))
	for i, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, i)
		}
	}

	var order []PlanStep
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		order = append(order, steps[idx])

		for _, dep := range dependents[idx] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(order) != len(steps) {
		return nil, fmt.Errorf("conductor: dependency graph contains a cycle")
	}
	return order, nil
}
