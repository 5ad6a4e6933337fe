package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// MCPTool adapts one remote tool exposed by an MCP server (spec.md §9's
// plugin surface) to the local Tool interface. The underlying client
// connects lazily on first Execute and is reused afterward.
type MCPTool struct {
	name        string
	description string
	parameters  map[string]interface{}

	command string
	args    []string
	env     []string

	mu     sync.Mutex
	client *client.Client
}

// NewMCPTool describes a single tool named remoteName, served by an MCP
// server launched as command/args/env over stdio.
func NewMCPTool(remoteName, description string, parameters map[string]interface{}, command string, args, env []string) *MCPTool {
	return &MCPTool{
		name:        remoteName,
		description: description,
		parameters:  parameters,
		command:     command,
		args:        args,
		env:         env,
	}
}

func (t *MCPTool) Name() string                      { return t.name }
func (t *MCPTool) Description() string               { return t.description }
func (t *MCPTool) Parameters() map[string]interface{} { return t.parameters }

func (t *MCPTool) connect(ctx context.Context) (*client.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		return t.client, nil
	}

	c, err := client.NewStdioMCPClient(t.command, t.env, t.args...)
	if err != nil {
		return nil, fmt.Errorf("mcp: start %s: %w", t.command, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "agentd", Version: "0.1.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, fmt.Errorf("mcp: initialize %s: %w", t.name, err)
	}

	t.client = c
	return c, nil
}

func (t *MCPTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	c, err := t.connect(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = t.name
	req.Params.Arguments = args

	res, err := c.CallTool(ctx, req)
	if err != nil {
		return ErrorResult(fmt.Sprintf("mcp: call %s: %v", t.name, err))
	}

	text := renderMCPContent(res.Content)
	if res.IsError {
		return ErrorResult(text)
	}
	return NewResult(text)
}

// renderMCPContent flattens an MCP tool result's content blocks into the
// plain text the Agent Core's session memory expects. Non-text blocks
// (images, embedded resources) are summarized by type rather than dropped
// silently.
func renderMCPContent(blocks []mcp.Content) string {
	var parts []string
	for _, b := range blocks {
		switch c := b.(type) {
		case mcp.TextContent:
			parts = append(parts, c.Text)
		case mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[image content: %s]", c.MIMEType))
		default:
			parts = append(parts, fmt.Sprintf("[unsupported mcp content block %T]", c))
		}
	}
	return strings.Join(parts, "\n")
}

// Close shuts down the underlying MCP client if it was ever connected.
func (t *MCPTool) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}
