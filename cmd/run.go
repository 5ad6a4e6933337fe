package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nlbuilder/agentd/internal/config"
	"github.com/nlbuilder/agentd/internal/store"
	"github.com/nlbuilder/agentd/internal/wsclient"
	"github.com/nlbuilder/agentd/pkg/protocol"
)

func runCmd() *cobra.Command {
	var serve bool

	cmd := &cobra.Command{
		Use:   "run [task description]",
		Short: "Run one natural-language task locally, or serve remote tasks over WebSocket with --serve",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if serve {
				return runServe(cmd.Context())
			}
			if len(args) == 0 {
				return fmt.Errorf("run requires a task description, or --serve to wait for remote tasks")
			}
			return runLocalTask(cmd.Context(), strings.Join(args, " "))
		},
	}

	cmd.Flags().BoolVar(&serve, "serve", false, "connect to the configured WebSocket server and serve submitted tasks")
	return cmd
}

func runLocalTask(ctx context.Context, input string) error {
	logger := newLogger()
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := buildRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	taskID := uuid.NewString()
	now := time.Now().Unix()
	if err := rt.store.CreateTask(ctx, store.Task{
		ID:        taskID,
		Input:     input,
		Source:    store.SourceLocal,
		Status:    store.StatusPending,
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	result, err := rt.loop.Run(ctx, agentRunRequest(taskID, input))
	if err != nil {
		fmt.Printf("task %s failed: %v\n", taskID, err)
		return err
	}

	fmt.Printf("task %s completed via %s in %d iteration(s):\n\n%s\n", taskID, result.ProviderUsed, result.Iterations, result.Answer)
	return nil
}

// runServe connects to the configured WebSocket server and hands every
// submit_task message off to the Agent Core loop, reporting completion or
// failure back over the same connection.
func runServe(ctx context.Context) error {
	logger := newLogger()
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.WS.URL == "" {
		return fmt.Errorf("no ws.url configured; set it in the config file or AGENTD_WS_URL")
	}

	rt, err := buildRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reconnectWait := time.Duration(cfg.WS.ReconnectDelaySec) * time.Second
	handler := &taskHandler{rt: rt, logger: logger}
	client := wsclient.New(cfg.WS.URL, cfg.WS.AuthToken, reconnectWait, handler, logger)
	handler.client = client

	logger.Info("agentd: serving tasks over websocket", "url", cfg.WS.URL)
	return client.Run(ctx)
}

// taskHandler bridges wsclient.Handler to the Agent Core loop: each
// submit_task is run in its own goroutine so a slow task never blocks the
// read loop from dispatching the next one.
type taskHandler struct {
	rt     *daemon
	logger *slog.Logger
	client *wsclient.Client
}

func (h *taskHandler) SubmitTask(ctx context.Context, msg protocol.SubmitTask) {
	if err := h.rt.store.CreateTask(ctx, store.Task{
		ID:        msg.TaskID,
		Input:     msg.Input,
		Source:    store.SourceRemote,
		Status:    store.StatusPending,
		CreatedAt: time.Now().Unix(),
	}); err != nil {
		h.logger.Error("taskHandler: create task failed", "task_id", msg.TaskID, "err", err)
		return
	}

	if err := h.client.SendTaskSubmitted(ctx, msg.TaskID); err != nil {
		h.logger.Warn("taskHandler: send task_submitted failed", "task_id", msg.TaskID, "err", err)
	}

	go func() {
		result, err := h.rt.loop.Run(ctx, agentRunRequest(msg.TaskID, msg.Input))
		if err != nil {
			if sendErr := h.client.SendTaskFailed(ctx, msg.TaskID, err.Error()); sendErr != nil {
				h.logger.Warn("taskHandler: send task_failed failed", "task_id", msg.TaskID, "err", sendErr)
			}
			return
		}
		if sendErr := h.client.SendTaskCompleted(ctx, msg.TaskID, result.Answer); sendErr != nil {
			h.logger.Warn("taskHandler: send task_completed failed", "task_id", msg.TaskID, "err", sendErr)
		}
	}()
}
