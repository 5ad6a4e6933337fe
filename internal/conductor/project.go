package conductor

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// languageMarkers maps a top-level filename to the language it implies.
var languageMarkers = map[string]string{
	"Cargo.toml":       "Rust",
	"package.json":     "JavaScript/TypeScript",
	"go.mod":           "Go",
	"requirements.txt": "Python",
	"pyproject.toml":   "Python",
}

var ignoredTopLevel = map[string]bool{
	"target":       true,
	"node_modules": true,
}

// ProjectMemory summarizes a workspace: its top-level files and the
// languages those files imply (spec.md §4.7 supplemented feature).
type ProjectMemory struct {
	WorkspacePath   string
	TopLevelFiles   []string
	LikelyLanguages []string
}

// ProjectScanner caches a ProjectMemory scan, invalidating it when the
// workspace root's mtime changes — avoids rescanning on every task.
type ProjectScanner struct {
	mu        sync.Mutex
	workspace string
	cached    *ProjectMemory
	scannedAt int64
}

func NewProjectScanner(workspace string) *ProjectScanner {
	return &ProjectScanner{workspace: workspace}
}

// Scan returns the cached ProjectMemory, rescanning if the workspace
// directory's mtime has advanced since the last scan.
func (s *ProjectScanner) Scan() (*ProjectMemory, error) {
	info, err := os.Stat(s.workspace)
	if err != nil {
		return nil, fmt.Errorf("conductor: stat workspace: %w", err)
	}
	mtime := info.ModTime().Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && s.scannedAt == mtime {
		return s.cached, nil
	}

	pm, err := scanWorkspace(s.workspace)
	if err != nil {
		return nil, err
	}
	s.cached = pm
	s.scannedAt = mtime
	return pm, nil
}

func scanWorkspace(workspace string) (*ProjectMemory, error) {
	entries, err := os.ReadDir(workspace)
	if err != nil {
		return nil, fmt.Errorf("conductor: read workspace: %w", err)
	}

	var files []string
	langSet := make(map[string]bool)

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || ignoredTopLevel[name] {
			continue
		}
		files = append(files, name)
		if lang, ok := languageMarkers[name]; ok {
			langSet[lang] = true
		}
	}

	sort.Strings(files)
	languages := make([]string, 0, len(langSet))
	for lang := range langSet {
		languages = append(languages, lang)
	}
	sort.Strings(languages)

	return &ProjectMemory{
		WorkspacePath:   workspace,
		TopLevelFiles:   files,
		LikelyLanguages: languages,
	}, nil
}

// FormatForPrompt renders the project memory as a system-prompt injection.
func (pm *ProjectMemory) FormatForPrompt() string {
	languages := "Unknown"
	if len(pm.LikelyLanguages) > 0 {
		languages = strings.Join(pm.LikelyLanguages, ", ")
	}
	return fmt.Sprintf("Workspace: %s\nLanguages: %s\nFiles: %s",
		pm.WorkspacePath, languages, strings.Join(pm.TopLevelFiles, ", "))
}
