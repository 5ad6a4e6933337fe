// Package wsclient is a thin coder/websocket adapter over the trimmed
// message vocabulary in pkg/protocol (spec.md §5/§6): connect, send
// auth_hello, dispatch submit_task/ping, reply task_submitted/task_completed/
// task_failed/pong, and auto-reconnect with backoff on disconnect.
package wsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/nlbuilder/agentd/pkg/protocol"
)

// Handler reacts to inbound server messages. Implementations should not
// block for long — SubmitTask typically hands the task off to the Agent
// Core loop and returns.
type Handler interface {
	SubmitTask(ctx context.Context, msg protocol.SubmitTask)
}

// Client maintains one WebSocket connection to the remote server, with
// automatic reconnect on disconnect.
type Client struct {
	url           string
	authToken     string
	reconnectWait time.Duration
	handler       Handler
	logger        *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func New(url, authToken string, reconnectWait time.Duration, handler Handler, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if reconnectWait <= 0 {
		reconnectWait = 5 * time.Second
	}
	return &Client{url: url, authToken: authToken, reconnectWait: reconnectWait, handler: handler, logger: logger}
}

// Run connects and serves inbound messages until ctx is cancelled,
// reconnecting with a fixed backoff on any disconnect.
func (c *Client) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := c.runOnce(ctx); err != nil {
			c.logger.Warn("wsclient: connection lost", "err", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.reconnectWait):
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{HTTPClient: &http.Client{}})
	if err != nil {
		return fmt.Errorf("wsclient: dial: %w", err)
	}
	conn.SetReadLimit(1 << 20)
	defer conn.Close(websocket.StatusNormalClosure, "")

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if err := c.send(ctx, protocol.MsgAuthHello, protocol.AuthHello{AuthToken: c.authToken}); err != nil {
		return fmt.Errorf("wsclient: auth_hello: %w", err)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if err := c.dispatch(ctx, data); err != nil {
			c.logger.Warn("wsclient: dispatch failed", "err", err)
		}
	}
}

func (c *Client) dispatch(ctx context.Context, data []byte) error {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case protocol.MsgSubmitTask:
		var msg protocol.SubmitTask
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("decode submit_task: %w", err)
		}
		if c.handler != nil {
			c.handler.SubmitTask(ctx, msg)
		}
	case protocol.MsgPing:
		return c.send(ctx, protocol.MsgPong, struct{}{})
	default:
		return fmt.Errorf("unknown message type %q", env.Type)
	}
	return nil
}

// SendTaskSubmitted, SendTaskCompleted, and SendTaskFailed let the Agent
// Core report task lifecycle transitions back over the current connection.

func (c *Client) SendTaskSubmitted(ctx context.Context, taskID string) error {
	return c.send(ctx, protocol.MsgTaskSubmitted, protocol.TaskSubmitted{TaskID: taskID})
}

func (c *Client) SendTaskCompleted(ctx context.Context, taskID, answer string) error {
	return c.send(ctx, protocol.MsgTaskCompleted, protocol.TaskCompleted{TaskID: taskID, Answer: answer})
}

func (c *Client) SendTaskFailed(ctx context.Context, taskID, errMsg string) error {
	return c.send(ctx, protocol.MsgTaskFailed, protocol.TaskFailed{TaskID: taskID, Error: errMsg})
}

// send marshals payload with a "type" discriminator merged in and writes it
// as a single text frame.
func (c *Client) send(ctx context.Context, msgType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msgType, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return fmt.Errorf("encode %s: %w", msgType, err)
	}
	fields["type"] = json.RawMessage(fmt.Sprintf("%q", msgType))

	out, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msgType, err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("wsclient: not connected")
	}
	return conn.Write(ctx, websocket.MessageText, out)
}
