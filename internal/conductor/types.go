// Package conductor implements multi-step planning on top of the Agent
// Core: the Planner asks the Router for a JSON plan, the Executor runs
// its steps in dependency order, and the Evaluator decides whether each
// step's result lets the plan continue (spec.md §4.6).
package conductor

// StepType classifies a PlanStep's intent.
type StepType string

const (
	StepResearch StepType = "Research"
	StepExecute  StepType = "Execute"
	StepVerify   StepType = "Verify"
)

// PlanStep is one node in a ConductorPlan's dependency DAG. Dependencies
// must reference only earlier step ids (spec.md §3 invariant).
type PlanStep struct {
	ID              string   `json:"id"`
	Description     string   `json:"description"`
	StepType        StepType `json:"step_type"`
	Dependencies    []string `json:"dependencies"`
	ExpectedOutcome string   `json:"expected_outcome"`
}

// ConductorPlan is an ordered set of PlanSteps pursuing one goal.
type ConductorPlan struct {
	ID        string     `json:"id"`
	Goal      string     `json:"goal"`
	Steps     []PlanStep `json:"steps"`
	CreatedAt int64      `json:"created_at"`
}

// StepResult is what a PlanStep's execution produced.
type StepResult struct {
	StepID            string
	Success           bool
	ToolsUsed         []string
	Logs              string
	ContextExtracted  string
}

// MemoryBudget partitions the Context Assembler's total token budget
// across system, project, episodic, and session content.
type MemoryBudget struct {
	SystemTokens   int
	ProjectTokens  int
	EpisodicTokens int
	SessionTokens  int
	TotalLimit     int
}
