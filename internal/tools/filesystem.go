package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
)

// ErrPathDenied is returned by FilesystemGuard.Validate for any rejected path.
var ErrPathDenied = errors.New("path denied")

// FilesystemGuard validates every path before filesystem I/O, per spec.md
// §4.1: resolve absolute, canonicalize, enforce workspace-root prefix,
// reject deny-listed segments, reject symlink/hardlink escapes.
type FilesystemGuard struct {
	workspace    string
	deniedPaths  []string // workspace-relative segments, e.g. ".ssh", ".gnupg"
}

func NewFilesystemGuard(workspace string, deniedPaths []string) *FilesystemGuard {
	return &FilesystemGuard{workspace: workspace, deniedPaths: deniedPaths}
}

func (g *FilesystemGuard) Workspace() string { return g.workspace }

// Validate resolves path (relative paths join the workspace root),
// canonicalizes it, and applies all four gates in order. It returns the
// canonical absolute path or ErrPathDenied.
func (g *FilesystemGuard) Validate(path string) (string, error) {
	var candidate string
	if filepath.IsAbs(path) {
		candidate = filepath.Clean(path)
	} else {
		candidate = filepath.Clean(filepath.Join(g.workspace, path))
	}

	absWorkspace, _ := filepath.Abs(g.workspace)
	wsReal, err := filepath.EvalSymlinks(absWorkspace)
	if err != nil {
		wsReal = absWorkspace // workspace not yet created — use as-is
	}

	real, err := g.canonicalize(candidate, wsReal)
	if err != nil {
		return "", err
	}

	if !isPathInside(real, wsReal) {
		slog.Warn("fs_guard: path escapes workspace", "path", path, "resolved", real)
		return "", fmt.Errorf("%w: path outside workspace", ErrPathDenied)
	}

	if err := g.checkDenied(real, wsReal); err != nil {
		return "", err
	}

	if hasMutableSymlinkParent(real) {
		slog.Warn("fs_guard: mutable symlink parent", "path", path, "resolved", real)
		return "", fmt.Errorf("%w: path contains mutable symlink component", ErrPathDenied)
	}

	if err := checkHardlink(real); err != nil {
		return "", err
	}

	return real, nil
}

// ValidateForWrite is like Validate but tolerates a non-existent target
// file, canonicalizing and validating its parent directory instead and
// creating missing parent directories within the workspace only.
func (g *FilesystemGuard) ValidateForWrite(path string) (string, error) {
	if _, err := os.Stat(g.joinCandidate(path)); err == nil {
		return g.Validate(path)
	}

	candidate := g.joinCandidate(path)
	parent := filepath.Dir(candidate)

	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}

	validatedParent, err := g.Validate(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(validatedParent, filepath.Base(candidate)), nil
}

func (g *FilesystemGuard) joinCandidate(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(g.workspace, path))
}

// canonicalize resolves all symlinks in candidate, handling broken symlinks
// by resolving through the deepest existing ancestor (catches chained
// symlinks whose intermediate targets escape the workspace).
func (g *FilesystemGuard) canonicalize(candidate, wsReal string) (string, error) {
	real, err := filepath.EvalSymlinks(candidate)
	if err == nil {
		return real, nil
	}
	if !os.IsNotExist(err) {
		slog.Warn("fs_guard: resolve failed", "path", candidate, "err", err)
		return "", fmt.Errorf("%w: cannot resolve path", ErrPathDenied)
	}

	if linfo, lerr := os.Lstat(candidate); lerr == nil && linfo.Mode()&os.ModeSymlink != 0 {
		target, readErr := os.Readlink(candidate)
		if readErr != nil {
			return "", fmt.Errorf("%w: cannot resolve symlink", ErrPathDenied)
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(candidate), target)
		}
		resolved, resolveErr := resolveThroughExistingAncestors(filepath.Clean(target))
		if resolveErr != nil {
			return "", fmt.Errorf("%w: cannot resolve broken symlink target", ErrPathDenied)
		}
		if !isPathInside(resolved, wsReal) {
			return "", fmt.Errorf("%w: broken symlink target outside workspace", ErrPathDenied)
		}
		return resolved, nil
	}

	parentReal, parentErr := filepath.EvalSymlinks(filepath.Dir(candidate))
	if parentErr != nil {
		return "", fmt.Errorf("%w: cannot resolve path", ErrPathDenied)
	}
	return filepath.Join(parentReal, filepath.Base(candidate)), nil
}

func (g *FilesystemGuard) checkDenied(resolved, wsReal string) error {
	for _, seg := range g.deniedPaths {
		denied := filepath.Join(wsReal, seg)
		if isPathInside(resolved, denied) {
			return fmt.Errorf("%w: %s is restricted", ErrPathDenied, seg)
		}
	}
	return nil
}

func isPathInside(child, parent string) bool {
	if child == parent {
		return true
	}
	return strings.HasPrefix(child, parent+string(filepath.Separator))
}

func resolveThroughExistingAncestors(target string) (string, error) {
	if real, err := filepath.EvalSymlinks(target); err == nil {
		return real, nil
	}
	current := target
	var tail []string
	for {
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		tail = append([]string{filepath.Base(current)}, tail...)
		current = parent
		if realParent, err := filepath.EvalSymlinks(current); err == nil {
			result := realParent
			for _, component := range tail {
				result = filepath.Join(result, component)
			}
			return result, nil
		}
	}
	return filepath.Clean(target), nil
}

func hasMutableSymlinkParent(path string) bool {
	clean := filepath.Clean(path)
	components := strings.Split(clean, string(filepath.Separator))
	current := string(filepath.Separator)
	for _, comp := range components {
		if comp == "" {
			continue
		}
		current = filepath.Join(current, comp)
		info, err := os.Lstat(current)
		if err != nil {
			break
		}
		if info.Mode()&os.ModeSymlink != 0 {
			parentDir := filepath.Dir(current)
			if syscall.Access(parentDir, 0x2 /* W_OK */) == nil {
				return true
			}
		}
	}
	return false
}

func checkHardlink(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return nil
	}
	if info.IsDir() {
		return nil
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		if stat.Nlink > 1 {
			slog.Warn("fs_guard: hardlink rejected", "path", path, "nlink", stat.Nlink)
			return fmt.Errorf("%w: hardlinked file not allowed", ErrPathDenied)
		}
	}
	return nil
}

// --- Filesystem tools ---

// ReadFileTool implements the "read_file" tool.
type ReadFileTool struct{ guard *FilesystemGuard }

func NewReadFileTool(guard *FilesystemGuard) *ReadFileTool { return &ReadFileTool{guard: guard} }

func (t *ReadFileTool) Name() string        { return "read_file" }
func (t *ReadFileTool) Description() string { return "Read the contents of a file" }
func (t *ReadFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"path": map[string]interface{}{"type": "string", "description": "relative/or/absolute/path"}},
		"required":   []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	if path == "" {
		return ErrorResult("path is required")
	}
	resolved, err := t.guard.Validate(path)
	if err != nil {
		return ErrorResult(err.Error())
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to read %s: %v", path, err))
	}
	return NewResult(string(data))
}

// WriteFileTool implements the "write_file" tool.
type WriteFileTool struct{ guard *FilesystemGuard }

func NewWriteFileTool(guard *FilesystemGuard) *WriteFileTool { return &WriteFileTool{guard: guard} }

func (t *WriteFileTool) Name() string        { return "write_file" }
func (t *WriteFileTool) Description() string { return "Write content to a file (creates parent directories if needed)" }
func (t *WriteFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":    map[string]interface{}{"type": "string"},
			"content": map[string]interface{}{"type": "string"},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	if path == "" {
		return ErrorResult("path is required")
	}
	resolved, err := t.guard.ValidateForWrite(path)
	if err != nil {
		return ErrorResult(err.Error())
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("failed to write %s: %v", path, err))
	}
	return NewResult(fmt.Sprintf("Wrote %d bytes to %s", len(content), path))
}

// ListDirTool implements the "list_dir" tool.
type ListDirTool struct{ guard *FilesystemGuard }

func NewListDirTool(guard *FilesystemGuard) *ListDirTool { return &ListDirTool{guard: guard} }

func (t *ListDirTool) Name() string        { return "list_dir" }
func (t *ListDirTool) Description() string { return "List files and directories at a path" }
func (t *ListDirTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"path": map[string]interface{}{"type": "string"}},
		"required":   []string{"path"},
	}
}

func (t *ListDirTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	resolved, err := t.guard.Validate(path)
	if err != nil {
		return ErrorResult(err.Error())
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to read directory %s: %v", path, err))
	}

	var dirs, files, links []string
	for _, e := range entries {
		name := e.Name()
		switch {
		case e.IsDir():
			dirs = append(dirs, "d  "+name+"/")
		case e.Type()&os.ModeSymlink != 0:
			links = append(links, "l  "+name)
		default:
			info, _ := e.Info()
			size := int64(0)
			if info != nil {
				size = info.Size()
			}
			files = append(files, fmt.Sprintf("f  %8s  %s", formatSize(size), name))
		}
	}
	sort.Strings(dirs)
	sort.Strings(files)
	sort.Strings(links)

	out := make([]string, 0, len(dirs)+len(files)+len(links)+1)
	out = append(out, fmt.Sprintf("%s/  (%d entries)", resolved, len(dirs)+len(files)+len(links)))
	out = append(out, dirs...)
	out = append(out, files...)
	out = append(out, links...)
	return NewResult(strings.Join(out, "\n"))
}

func formatSize(bytes int64) string {
	switch {
	case bytes < 1024:
		return fmt.Sprintf("%d B", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024.0)
	case bytes < 1024*1024*1024:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024.0*1024.0))
	default:
		return fmt.Sprintf("%.1f GB", float64(bytes)/(1024.0*1024.0*1024.0))
	}
}

// FileExistsTool implements the "file_exists" tool.
type FileExistsTool struct{ guard *FilesystemGuard }

func NewFileExistsTool(guard *FilesystemGuard) *FileExistsTool { return &FileExistsTool{guard: guard} }

func (t *FileExistsTool) Name() string        { return "file_exists" }
func (t *FileExistsTool) Description() string { return "Check if a file or directory exists" }
func (t *FileExistsTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"path": map[string]interface{}{"type": "string"}},
		"required":   []string{"path"},
	}
}

func (t *FileExistsTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	if path == "" {
		return ErrorResult("path is required")
	}
	resolved, err := t.guard.Validate(path)
	if err != nil {
		return NewResult("false")
	}
	if _, err := os.Stat(resolved); err != nil {
		return NewResult("false")
	}
	return NewResult("true")
}
