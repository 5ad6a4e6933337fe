package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/nlbuilder/agentd/internal/bus"
	"github.com/nlbuilder/agentd/internal/conductor"
	"github.com/nlbuilder/agentd/internal/providers"
	"github.com/nlbuilder/agentd/internal/ratelimit"
	"github.com/nlbuilder/agentd/internal/risk"
	"github.com/nlbuilder/agentd/internal/store"
	"github.com/nlbuilder/agentd/internal/tools"
)

// scriptedProvider returns each response in sequence, one per Generate call.
type scriptedProvider struct {
	responses []string
	calls     int
}

func (p *scriptedProvider) Name() string                   { return "scripted" }
func (p *scriptedProvider) DefaultModel() string            { return "test-model" }
func (p *scriptedProvider) IsLocal() bool                   { return true }
func (p *scriptedProvider) EstimatedCost(int) float64       { return 0 }
func (p *scriptedProvider) CheckHealth(context.Context) bool { return true }

func (p *scriptedProvider) Generate(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	if p.calls >= len(p.responses) {
		return &providers.ChatResponse{Content: "NO MORE SCRIPTED RESPONSES"}, nil
	}
	resp := p.responses[p.calls]
	p.calls++
	return &providers.ChatResponse{Content: resp}, nil
}

// echoTool just echoes its "value" argument back.
type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes its input" }
func (echoTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}
func (echoTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	v, _ := args["value"].(string)
	return tools.NewResult(v)
}

func newTestLoop(t *testing.T, responses []string) (*Loop, *store.Store, string) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Init(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	taskID := "task-1"
	if err := st.CreateTask(context.Background(), store.Task{
		ID: taskID, Input: "test", Source: store.SourceLocal, Status: store.StatusPending, CreatedAt: 1,
	}); err != nil {
		t.Fatalf("create task: %v", err)
	}

	router := providers.NewRouter(0.5, &scriptedProvider{responses: responses})
	registry := tools.NewRegistry(tools.NewInjectionDetector())
	registry.Register(echoTool{})

	loop := &Loop{
		Router:        router,
		Tools:         registry,
		Risk:          risk.New(map[string]int{"echo": 0}, 0, 2),
		RateLimit:     ratelimit.New(60, nil),
		Store:         st,
		Events:        bus.NewBroadcaster(),
		MaxIterations: 10,
		SessionBudget: 100000,
	}
	return loop, st, taskID
}

func TestLoop_LocalArithmetic(t *testing.T) {
	loop, st, taskID := newTestLoop(t, []string{"42"})

	result, err := loop.Run(context.Background(), RunRequest{TaskID: taskID, Input: "What is 15 + 27?"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Answer != "42" {
		t.Errorf("answer = %q, want 42", result.Answer)
	}
	if result.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", result.Iterations)
	}
	if result.Status != store.StatusCompleted {
		t.Errorf("status = %q, want Completed", result.Status)
	}

	steps, err := st.ListSteps(context.Background(), taskID)
	if err != nil {
		t.Fatalf("list steps: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2 (Thought, FinalAnswer)", len(steps))
	}
	if steps[0].StepType != store.StepThought || steps[1].StepType != store.StepFinalAnswer {
		t.Errorf("unexpected step types: %q, %q", steps[0].StepType, steps[1].StepType)
	}

	task, err := st.GetTask(context.Background(), taskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Status != store.StatusCompleted {
		t.Errorf("persisted task status = %q, want Completed", task.Status)
	}
}

func TestLoop_ToolCallThenFinalAnswer(t *testing.T) {
	toolCall := `{"function": "echo", "arguments": {"value": "hello"}}`
	loop, st, taskID := newTestLoop(t, []string{toolCall, "done"})

	result, err := loop.Run(context.Background(), RunRequest{TaskID: taskID, Input: "echo hello"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Answer != "done" {
		t.Errorf("answer = %q, want done", result.Answer)
	}
	if result.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", result.Iterations)
	}

	steps, err := st.ListSteps(context.Background(), taskID)
	if err != nil {
		t.Fatalf("list steps: %v", err)
	}
	// iteration 1: Thought, ToolCall, Observation; iteration 2: Thought, FinalAnswer
	if len(steps) != 5 {
		t.Fatalf("got %d steps, want 5", len(steps))
	}
	if steps[2].StepType != store.StepObservation || steps[2].Content != "hello" {
		t.Errorf("observation step = %+v, want content 'hello'", steps[2])
	}
}

func TestLoop_IterationLimitExceeded(t *testing.T) {
	toolCall := `{"function": "echo", "arguments": {"value": "again"}}`
	loop, st, taskID := newTestLoop(t, []string{toolCall, toolCall, toolCall})
	loop.MaxIterations = 2

	result, err := loop.Run(context.Background(), RunRequest{TaskID: taskID, Input: "loop forever"})
	if err == nil {
		t.Fatal("expected iteration limit error")
	}
	if result.Status != store.StatusFailed {
		t.Errorf("status = %q, want Failed", result.Status)
	}

	task, err := st.GetTask(context.Background(), taskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Status != store.StatusFailed {
		t.Errorf("persisted task status = %q, want Failed", task.Status)
	}
}

func TestLoop_RiskDenied(t *testing.T) {
	toolCall := `{"function": "echo", "arguments": {"value": "x"}}`
	loop, _, taskID := newTestLoop(t, []string{toolCall})
	loop.Risk = risk.New(map[string]int{"echo": 2}, 0, 1) // tool tier 2 > max tier 1

	result, err := loop.Run(context.Background(), RunRequest{TaskID: taskID, Input: "risky"})
	if err == nil {
		t.Fatal("expected risk denied error")
	}
	if result.Status != store.StatusFailed {
		t.Errorf("status = %q, want Failed", result.Status)
	}
}

func TestLoop_UnknownTool(t *testing.T) {
	toolCall := `{"function": "does_not_exist", "arguments": {}}`
	loop, st, taskID := newTestLoop(t, []string{toolCall, "recovered"})

	result, err := loop.Run(context.Background(), RunRequest{TaskID: taskID, Input: "bad tool"})
	if err != nil {
		t.Fatalf("unknown tool should not be fatal to the task: %v", err)
	}
	if result.Answer != "recovered" {
		t.Errorf("answer = %q, want recovered", result.Answer)
	}

	steps, err := st.ListSteps(context.Background(), taskID)
	if err != nil {
		t.Fatalf("list steps: %v", err)
	}
	found := false
	for _, s := range steps {
		if s.StepType == store.StepObservation && s.Content[:5] == "ERROR" {
			found = true
		}
	}
	if !found {
		t.Error("expected an ERROR observation for the unknown tool")
	}
}

func TestLoop_ConductorPlanDrivesMultiStepTask(t *testing.T) {
	loop, st, taskID := newTestLoop(t, []string{"step one done"})

	planJSON := `{"id":"p1","goal":"test goal","steps":[` +
		`{"id":"s1","description":"do the one thing","step_type":"Execute","dependencies":[],"expected_outcome":"done"}` +
		`]}`
	planRouter := providers.NewRouter(0.5, &scriptedProvider{responses: []string{planJSON}})
	loop.Planner = conductor.NewPlanner(planRouter)

	result, err := loop.Run(context.Background(), RunRequest{TaskID: taskID, Input: "test goal"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Status != store.StatusCompleted {
		t.Fatalf("status = %q, want Completed", result.Status)
	}
	if !strings.Contains(result.Answer, "step one done") {
		t.Errorf("answer = %q, want it to contain the step's result", result.Answer)
	}

	task, err := st.GetTask(context.Background(), taskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Status != store.StatusCompleted {
		t.Errorf("persisted task status = %q, want Completed", task.Status)
	}
}

func TestLoop_ConductorPlanningFailureFallsBackToSingleShot(t *testing.T) {
	loop, _, taskID := newTestLoop(t, []string{"fallback answer"})

	// The planner's router returns text that isn't valid plan JSON.
	planRouter := providers.NewRouter(0.5, &scriptedProvider{responses: []string{"not json"}})
	loop.Planner = conductor.NewPlanner(planRouter)

	result, err := loop.Run(context.Background(), RunRequest{TaskID: taskID, Input: "whatever"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Answer != "fallback answer" {
		t.Errorf("answer = %q, want single-shot fallback answer", result.Answer)
	}
	if result.Status != store.StatusCompleted {
		t.Errorf("status = %q, want Completed", result.Status)
	}
}

func TestLoop_BuildInitialMessagesUsesAssembler(t *testing.T) {
	loop, _, taskID := newTestLoop(t, []string{"42"})
	loop.Assembler = conductor.NewAssembler(conductor.MemoryBudget{SystemTokens: 1000, SessionTokens: 1000})
	loop.SystemInstructions = "You are a test agent."

	msgs := loop.buildInitialMessages(context.Background(), taskID, "hello")
	if len(msgs) < 2 {
		t.Fatalf("expected at least system + user messages, got %d", len(msgs))
	}
	if msgs[0].Role != "system" || !strings.Contains(msgs[0].Content, "You are a test agent.") {
		t.Errorf("system message = %+v, want it to carry SystemInstructions", msgs[0])
	}
	if msgs[len(msgs)-1].Content != "hello" {
		t.Errorf("last message content = %q, want the raw query", msgs[len(msgs)-1].Content)
	}
}
