package tools

import "context"

// Tool execution context keys. Values are injected by the Registry before
// dispatch and read by individual tools during Execute, keeping tools
// stateless and safe for concurrent use across tasks.

type toolContextKey string

const (
	ctxWorkspace toolContextKey = "tool_workspace"
	ctxTaskID    toolContextKey = "tool_task_id"
)

func WithWorkspace(ctx context.Context, workspace string) context.Context {
	return context.WithValue(ctx, ctxWorkspace, workspace)
}

func WorkspaceFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxWorkspace).(string)
	return v
}

func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, ctxTaskID, taskID)
}

func TaskIDFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxTaskID).(string)
	return v
}
