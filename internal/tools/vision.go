package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"
)

// CaptureScreenTool implements the "capture_screen" tool by shelling out to
// an OS-specific, allowlisted screenshot binary — never via a general
// Command Executor call, since the binary and its argv shape are fixed
// per platform rather than model-chosen.
type CaptureScreenTool struct {
	guard    *FilesystemGuard
	binaries map[string]string // GOOS -> binary name, e.g. "darwin" -> "screencapture"
	timeout  time.Duration
}

func NewCaptureScreenTool(guard *FilesystemGuard, binaries map[string]string) *CaptureScreenTool {
	return &CaptureScreenTool{guard: guard, binaries: binaries, timeout: 30 * time.Second}
}

func (t *CaptureScreenTool) Name() string        { return "capture_screen" }
func (t *CaptureScreenTool) Description() string { return "Capture a screenshot to a file in the workspace" }
func (t *CaptureScreenTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"output_file": map[string]interface{}{"type": "string", "description": "workspace-relative path for the PNG file"},
		},
		"required": []string{"output_file"},
	}
}

func (t *CaptureScreenTool) argvFor(binary, outputPath string) []string {
	switch binary {
	case "screencapture":
		return []string{binary, "-x", outputPath}
	case "scrot":
		return []string{binary, outputPath}
	default:
		return []string{binary, outputPath}
	}
}

func (t *CaptureScreenTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	outputFile, _ := args["output_file"].(string)
	if outputFile == "" {
		return ErrorResult("output_file is required")
	}

	binary, ok := t.binaries[runtime.GOOS]
	if !ok {
		return ErrorResult(fmt.Sprintf("screen capture is not supported on %s", runtime.GOOS))
	}

	resolvedOutputPath, err := t.guard.ValidateForWrite(outputFile)
	if err != nil {
		return ErrorResult(err.Error())
	}

	argv := t.argvFor(binary, resolvedOutputPath)

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() != nil {
			return ErrorResult(fmt.Sprintf("screen capture timed out after %s", t.timeout))
		}
		msg := stderr.String()
		if msg == "" {
			msg = err.Error()
		}
		return ErrorResult(fmt.Sprintf("screen capture failed: %s", msg))
	}

	return NewResult(fmt.Sprintf("Screenshot saved to %s", resolvedOutputPath))
}
