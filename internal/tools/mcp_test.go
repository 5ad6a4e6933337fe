package tools

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func TestRenderMCPContent_JoinsTextBlocks(t *testing.T) {
	blocks := []mcp.Content{
		mcp.TextContent{Type: "text", Text: "first line"},
		mcp.TextContent{Type: "text", Text: "second line"},
	}
	got := renderMCPContent(blocks)
	want := "first line\nsecond line"
	if got != want {
		t.Errorf("renderMCPContent() = %q, want %q", got, want)
	}
}

func TestRenderMCPContent_SummarizesImageBlock(t *testing.T) {
	blocks := []mcp.Content{
		mcp.ImageContent{Type: "image", MIMEType: "image/png"},
	}
	got := renderMCPContent(blocks)
	want := "[image content: image/png]"
	if got != want {
		t.Errorf("renderMCPContent() = %q, want %q", got, want)
	}
}

func TestNewMCPTool_ExposesConfiguredMetadata(t *testing.T) {
	params := map[string]interface{}{"path": "string"}
	tool := NewMCPTool("read_file", "reads a file over MCP", params, "mcp-fs-server", []string{"--root", "/tmp"}, nil)

	if tool.Name() != "read_file" {
		t.Errorf("Name() = %q, want %q", tool.Name(), "read_file")
	}
	if tool.Description() != "reads a file over MCP" {
		t.Errorf("Description() = %q, want %q", tool.Description(), "reads a file over MCP")
	}
	if tool.Parameters()["path"] != "string" {
		t.Error("Parameters() did not round-trip the configured schema")
	}
}

func TestMCPTool_CloseWithoutConnectIsNoop(t *testing.T) {
	tool := NewMCPTool("noop_tool", "", nil, "does-not-exist", nil, nil)
	if err := tool.Close(); err != nil {
		t.Errorf("Close() on an unconnected tool should be a no-op, got %v", err)
	}
}
