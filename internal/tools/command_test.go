package tools

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCommandExecutor_RejectsShellMetacharacters(t *testing.T) {
	exec := NewCommandExecutor(t.TempDir(), []string{"ls"}, time.Second)

	res := exec.Execute(context.Background(), map[string]interface{}{"command": "ls; rm -rf /"})
	if !res.IsError {
		t.Fatalf("expected error result for shell metacharacters, got %+v", res)
	}

	err := exec.validate([]string{"ls", "; rm -rf /"})
	if !errors.Is(err, ErrCommandDenied) {
		t.Fatalf("validate error = %v, want ErrCommandDenied", err)
	}
}

func TestCommandExecutor_RejectsBinaryNotInAllowlist(t *testing.T) {
	exec := NewCommandExecutor(t.TempDir(), []string{"ls"}, time.Second)

	res := exec.Execute(context.Background(), map[string]interface{}{"command": "rm -rf /"})
	if !res.IsError {
		t.Fatalf("expected error result for non-allowlisted binary, got %+v", res)
	}
}

func TestCommandExecutor_RunsAllowlistedCommand(t *testing.T) {
	dir := t.TempDir()
	exec := NewCommandExecutor(dir, []string{"echo"}, time.Second)

	res := exec.Execute(context.Background(), map[string]interface{}{"command": "echo hello"})
	if res.IsError {
		t.Fatalf("echo failed: %s", res.ForLLM)
	}
}

func TestCommandExecutor_TimesOut(t *testing.T) {
	exec := NewCommandExecutor(t.TempDir(), []string{"sleep"}, 10*time.Millisecond)

	res := exec.Execute(context.Background(), map[string]interface{}{"command": "sleep 2"})
	if !res.IsError {
		t.Fatalf("expected timeout error, got %+v", res)
	}
}

func TestCommandExecutor_RequiresCommand(t *testing.T) {
	exec := NewCommandExecutor(t.TempDir(), []string{"ls"}, time.Second)

	res := exec.Execute(context.Background(), map[string]interface{}{"command": "   "})
	if !res.IsError {
		t.Fatalf("expected error for blank command, got %+v", res)
	}
}

func TestSplitArgv(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{`ls -la`, []string{"ls", "-la"}},
		{`echo "hello world"`, []string{"echo", "hello world"}},
		{`git commit -m 'fix bug'`, []string{"git", "commit", "-m", "fix bug"}},
	}

	for _, c := range cases {
		got, err := splitArgv(c.in)
		if err != nil {
			t.Fatalf("splitArgv(%q) error = %v", c.in, err)
		}
		if len(got) != len(c.want) {
			t.Fatalf("splitArgv(%q) = %v, want %v", c.in, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("splitArgv(%q)[%d] = %q, want %q", c.in, i, got[i], c.want[i])
			}
		}
	}
}

func TestSplitArgv_UnterminatedQuote(t *testing.T) {
	_, err := splitArgv(`echo "unterminated`)
	if !errors.Is(err, ErrCommandDenied) {
		t.Fatalf("splitArgv unterminated quote error = %v, want ErrCommandDenied", err)
	}
}
