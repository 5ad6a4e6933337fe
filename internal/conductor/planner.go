package conductor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nlbuilder/agentd/internal/providers"
)

// ErrInvalidPlan means the Router's response did not parse into a
// well-formed ConductorPlan, or its dependency graph is not a DAG over
// earlier steps.
type ErrInvalidPlan struct {
	Reason string
}

func (e *ErrInvalidPlan) Error() string {
	return fmt.Sprintf("conductor: invalid plan: %s", e.Reason)
}

const planningInstructions = `You are a planning assistant. Given a goal, respond with ONLY a JSON object of this exact shape:
{"id": "...", "goal": "...", "steps": [{"id": "...", "description": "...", "step_type": "Research|Execute|Verify", "dependencies": ["..."], "expected_outcome": "..."}]}
Every step's "dependencies" must reference only ids of steps appearing earlier in the list. Respond with the JSON object only, no surrounding text.`

// Planner asks the Router to emit a ConductorPlan for a goal (spec.md
// §4.6). The plan's dependency DAG is validated before being returned.
type Planner struct {
	router *providers.Router
}

func NewPlanner(router *providers.Router) *Planner {
	return &Planner{router: router}
}

func (p *Planner) Plan(ctx context.Context, goal string) (*ConductorPlan, error) {
	resp, _, err := p.router.Generate(ctx, providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: planningInstructions},
			{Role: "user", Content: goal},
		},
	}, providers.GenerateOptions{})
	if err != nil {
		return nil, fmt.Errorf("conductor: plan generation: %w", err)
	}

	var plan ConductorPlan
	text := strings.TrimSpace(resp.Content)
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return nil, &ErrInvalidPlan{Reason: "not valid JSON: " + err.Error()}
	}

	if err := validateDAG(plan.Steps); err != nil {
		return nil, err
	}

	return &plan, nil
}

// validateDAG checks that every step's dependencies reference only ids
// of steps appearing earlier in the slice (spec.md §3 invariant).
func validateDAG(steps []PlanStep) error {
	seen := make(map[string]bool, len(steps))
	for _, step := range steps {
		for _, dep := range step.Dependencies {
			if !seen[dep] {
				return &ErrInvalidPlan{Reason: fmt.Sprintf("step %q depends on %q which is not an earlier step", step.ID, dep)}
			}
		}
		if seen[step.ID] {
			return &ErrInvalidPlan{Reason: fmt.Sprintf("duplicate step id %q", step.ID)}
		}
		seen[step.ID] = true
	}
	return nil
}
