package store

import (
	"context"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return st
}

func TestTask_CreateGetUpdate(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	task := Task{ID: "t1", Input: "do a thing", Source: SourceLocal, Status: StatusPending, CreatedAt: 100}
	if err := st.CreateTask(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	got, err := st.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Input != task.Input || got.Status != StatusPending {
		t.Errorf("got %+v, want input/status to match %+v", got, task)
	}

	completedAt := int64(200)
	if err := st.UpdateTaskStatus(ctx, "t1", StatusCompleted, &completedAt); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, err = st.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("get task after update: %v", err)
	}
	if got.Status != StatusCompleted || got.CompletedAt == nil || *got.CompletedAt != 200 {
		t.Errorf("got %+v, want Completed with completed_at=200", got)
	}
}

func TestTask_GetMissing(t *testing.T) {
	st := openTestStore(t)
	if _, err := st.GetTask(context.Background(), "missing"); err != ErrTaskNotFound {
		t.Errorf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestTask_ListFiltersByStatus(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	st.CreateTask(ctx, Task{ID: "t1", Input: "a", Source: SourceLocal, Status: StatusCompleted, CreatedAt: 1})
	st.CreateTask(ctx, Task{ID: "t2", Input: "b", Source: SourceLocal, Status: StatusFailed, CreatedAt: 2})
	st.CreateTask(ctx, Task{ID: "t3", Input: "c", Source: SourceLocal, Status: StatusCompleted, CreatedAt: 3})

	completed, err := st.ListTasks(ctx, StatusCompleted, 10)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(completed) != 2 {
		t.Fatalf("got %d completed tasks, want 2", len(completed))
	}
	// newest first
	if completed[0].ID != "t3" {
		t.Errorf("expected newest-first order, got %q first", completed[0].ID)
	}
}

func TestSteps_AppendAndList(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	st.CreateTask(ctx, Task{ID: "t1", Input: "a", Source: SourceLocal, Status: StatusRunning, CreatedAt: 1})

	steps := []TaskStep{
		{TaskID: "t1", Index: 1, StepType: StepThought, Content: "thinking about 15+27", CreatedAt: 10},
		{TaskID: "t1", Index: 2, StepType: StepFinalAnswer, Content: "42", CreatedAt: 11},
	}
	for _, s := range steps {
		if err := st.AppendStep(ctx, s); err != nil {
			t.Fatalf("append step: %v", err)
		}
	}

	got, err := st.ListSteps(ctx, "t1")
	if err != nil {
		t.Fatalf("list steps: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d steps, want 2", len(got))
	}
	if got[0].Index != 1 || got[1].Index != 2 {
		t.Errorf("steps out of order: %+v", got)
	}
}

func TestSteps_EpisodicSearchFindsIndexedContent(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	st.CreateTask(ctx, Task{ID: "t1", Input: "a", Source: SourceLocal, Status: StatusRunning, CreatedAt: 1})

	st.AppendStep(ctx, TaskStep{TaskID: "t1", Index: 1, StepType: StepObservation, Content: "the quick brown fox", CreatedAt: 10})
	st.AppendStep(ctx, TaskStep{TaskID: "t1", Index: 2, StepType: StepObservation, Content: "jumped over the lazy dog", CreatedAt: 11})

	hits, err := st.SearchEpisodes(ctx, "t1", "fox", 5)
	if err != nil {
		t.Fatalf("search episodes: %v", err)
	}
	if len(hits) != 1 || hits[0].Index != 1 {
		t.Fatalf("got %+v, want one hit at index 1", hits)
	}
}

func TestPlugins_UpsertAndEnable(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	p := Plugin{
		ID: "p1", Name: "example", Version: "1.0.0", WasmPath: "/plugins/example.wasm",
		WasmHash: "abc123", ManifestJSON: "{}", TrustTier: TierCommunity, Enabled: false,
		CreatedAt: 1, UpdatedAt: 1,
	}
	if err := st.UpsertPlugin(ctx, p); err != nil {
		t.Fatalf("upsert plugin: %v", err)
	}

	if err := st.SetPluginEnabled(ctx, "example", true, 2); err != nil {
		t.Fatalf("set plugin enabled: %v", err)
	}

	got, err := st.GetPluginByName(ctx, "example")
	if err != nil {
		t.Fatalf("get plugin: %v", err)
	}
	if !got.Enabled {
		t.Error("expected plugin to be enabled after consent")
	}
	if got.TrustTier != TierCommunity {
		t.Errorf("trust tier = %q, want community", got.TrustTier)
	}
}

func TestSecretsCache_PutGetDelete(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.PutSecret(ctx, "api_key", []byte("encrypted-bytes"), nil, 1); err != nil {
		t.Fatalf("put secret: %v", err)
	}

	val, _, err := st.GetSecret(ctx, "api_key")
	if err != nil {
		t.Fatalf("get secret: %v", err)
	}
	if string(val) != "encrypted-bytes" {
		t.Errorf("got %q, want encrypted-bytes", val)
	}

	if err := st.DeleteSecret(ctx, "api_key"); err != nil {
		t.Fatalf("delete secret: %v", err)
	}
	if _, _, err := st.GetSecret(ctx, "api_key"); err != ErrSecretNotFound {
		t.Errorf("err = %v, want ErrSecretNotFound", err)
	}
}
