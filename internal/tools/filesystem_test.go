package tools

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestGuard(t *testing.T, denied []string) (*FilesystemGuard, string) {
	t.Helper()
	ws := t.TempDir()
	return NewFilesystemGuard(ws, denied), ws
}

func TestFilesystemGuard_RejectsEscapeOutsideWorkspace(t *testing.T) {
	guard, _ := newTestGuard(t, nil)

	_, err := guard.Validate("../outside")
	if !errors.Is(err, ErrPathDenied) {
		t.Fatalf("Validate(../outside) error = %v, want ErrPathDenied", err)
	}
}

func TestFilesystemGuard_RejectsAbsoluteEscape(t *testing.T) {
	guard, ws := newTestGuard(t, nil)

	outside := filepath.Dir(ws) // a real directory, but not under ws
	_, err := guard.Validate(outside)
	if !errors.Is(err, ErrPathDenied) {
		t.Fatalf("Validate(%s) error = %v, want ErrPathDenied", outside, err)
	}
}

func TestFilesystemGuard_AllowsPathInsideWorkspace(t *testing.T) {
	guard, ws := newTestGuard(t, nil)

	target := filepath.Join(ws, "notes.txt")
	if err := os.WriteFile(target, []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	resolved, err := guard.Validate("notes.txt")
	if err != nil {
		t.Fatalf("Validate(notes.txt) error = %v", err)
	}
	if resolved != target {
		// target may itself need symlink resolution (e.g. macOS /tmp -> /private/tmp)
		real, _ := filepath.EvalSymlinks(target)
		if resolved != real {
			t.Errorf("resolved = %q, want %q", resolved, target)
		}
	}
}

func TestFilesystemGuard_RejectsDeniedSegment(t *testing.T) {
	guard, ws := newTestGuard(t, []string{".ssh"})

	if err := os.MkdirAll(filepath.Join(ws, ".ssh"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ws, ".ssh", "id_rsa"), []byte("key"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := guard.Validate(".ssh/id_rsa")
	if !errors.Is(err, ErrPathDenied) {
		t.Fatalf("Validate(.ssh/id_rsa) error = %v, want ErrPathDenied", err)
	}
}

func TestFilesystemGuard_RejectsSymlinkEscape(t *testing.T) {
	guard, ws := newTestGuard(t, nil)

	outsideDir := t.TempDir()
	outsideFile := filepath.Join(outsideDir, "secret.txt")
	if err := os.WriteFile(outsideFile, []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}

	link := filepath.Join(ws, "link.txt")
	if err := os.Symlink(outsideFile, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	_, err := guard.Validate("link.txt")
	if !errors.Is(err, ErrPathDenied) {
		t.Fatalf("Validate(link.txt) error = %v, want ErrPathDenied", err)
	}
}

func TestFilesystemGuard_RejectsHardlinkedFile(t *testing.T) {
	guard, ws := newTestGuard(t, nil)

	original := filepath.Join(ws, "original.txt")
	if err := os.WriteFile(original, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	linked := filepath.Join(ws, "linked.txt")
	if err := os.Link(original, linked); err != nil {
		t.Skipf("hardlinks unsupported: %v", err)
	}

	_, err := guard.Validate("linked.txt")
	if !errors.Is(err, ErrPathDenied) {
		t.Fatalf("Validate(linked.txt) error = %v, want ErrPathDenied", err)
	}
}

func TestFilesystemGuard_ValidateForWrite_CreatesMissingParents(t *testing.T) {
	guard, ws := newTestGuard(t, nil)

	resolved, err := guard.ValidateForWrite("nested/dir/new.txt")
	if err != nil {
		t.Fatalf("ValidateForWrite error = %v", err)
	}
	if filepath.Dir(resolved) != filepath.Join(ws, "nested/dir") {
		// allow for symlink-resolved tmp dirs
		if _, err := os.Stat(filepath.Join(ws, "nested", "dir")); err != nil {
			t.Errorf("expected nested/dir to be created, got resolved=%q", resolved)
		}
	}
}

func TestFilesystemGuard_ValidateForWrite_RejectsEscapingParent(t *testing.T) {
	guard, _ := newTestGuard(t, nil)

	_, err := guard.ValidateForWrite("../escape.txt")
	if !errors.Is(err, ErrPathDenied) {
		t.Fatalf("ValidateForWrite(../escape.txt) error = %v, want ErrPathDenied", err)
	}
}

func TestReadWriteFileTools_RoundTrip(t *testing.T) {
	guard, _ := newTestGuard(t, nil)
	write := NewWriteFileTool(guard)
	read := NewReadFileTool(guard)

	res := write.Execute(nil, map[string]interface{}{"path": "hello.txt", "content": "hello world"})
	if res.IsError {
		t.Fatalf("write failed: %s", res.ForLLM)
	}

	res = read.Execute(nil, map[string]interface{}{"path": "hello.txt"})
	if res.IsError || res.ForLLM != "hello world" {
		t.Fatalf("read returned %+v", res)
	}
}

func TestReadFileTool_PathOutsideWorkspaceIsError(t *testing.T) {
	guard, _ := newTestGuard(t, nil)
	read := NewReadFileTool(guard)

	res := read.Execute(nil, map[string]interface{}{"path": "../../etc/passwd"})
	if !res.IsError {
		t.Fatalf("expected error result for escaping path, got %+v", res)
	}
}

func TestFileExistsTool(t *testing.T) {
	guard, ws := newTestGuard(t, nil)
	exists := NewFileExistsTool(guard)

	if err := os.WriteFile(filepath.Join(ws, "there.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if res := exists.Execute(nil, map[string]interface{}{"path": "there.txt"}); res.ForLLM != "true" {
		t.Errorf("file_exists(there.txt) = %q, want true", res.ForLLM)
	}
	if res := exists.Execute(nil, map[string]interface{}{"path": "missing.txt"}); res.ForLLM != "false" {
		t.Errorf("file_exists(missing.txt) = %q, want false", res.ForLLM)
	}
}
